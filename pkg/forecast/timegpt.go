package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/series"
)

const dayLayout = "2006-01-02"

// TimeGPT calls the Nixtla TimeGPT forecasting endpoint.
type TimeGPT struct {
	endpoint string
	token    string
	model    string
	client   *http.Client
}

// NewTimeGPT creates a TimeGPT adapter posting to endpoint with a bearer token.
func NewTimeGPT(endpoint, token string) *TimeGPT {
	return &TimeGPT{
		endpoint: endpoint,
		token:    token,
		model:    "timegpt-1",
		client: &http.Client{
			Timeout: config.ForecastTimeout,
		},
	}
}

type timeGPTRequest struct {
	Model         string           `json:"model"`
	Freq          string           `json:"freq"`
	FH            int              `json:"fh"`
	Y             map[string]int64 `json:"y"`
	CleanExFirst  bool             `json:"clean_ex_first"`
	FinetuneSteps int              `json:"finetune_steps"`
	FinetuneLoss  string           `json:"finetune_loss"`
}

type timeGPTResponse struct {
	Data *struct {
		Timestamp []string  `json:"timestamp"`
		Value     []float64 `json:"value"`
	} `json:"data"`
	Message string `json:"message"`
}

// Predict sends s as a daily series and returns horizonDays predicted points.
// Service-side refusals come back as *Failure with the service's message.
func (c *TimeGPT) Predict(ctx context.Context, s series.Series, horizonDays int) (series.Series, error) {
	if len(s) == 0 {
		return nil, ErrEmptySeries
	}
	if horizonDays < 1 {
		return nil, fmt.Errorf("horizon must be at least one day, got %d", horizonDays)
	}

	y := make(map[string]int64, len(s))
	for _, p := range s {
		day := p.Time().Format(dayLayout)
		if _, dup := y[day]; dup {
			log.Printf("Repeated day %s in forecast input, keeping the later value", day)
		}
		y[day] = p.Value
	}

	body, err := json.Marshal(timeGPTRequest{
		Model:         c.model,
		Freq:          "D",
		FH:            horizonDays,
		Y:             y,
		CleanExFirst:  true,
		FinetuneSteps: 0,
		FinetuneLoss:  "default",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal forecast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send forecast request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxUpstreamBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read forecast response: %w", err)
	}

	var parsed timeGPTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("forecast request failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("invalid forecast response: %w", err)
	}

	if parsed.Data == nil {
		if parsed.Message == "" {
			return nil, fmt.Errorf("forecast request failed with status %d", resp.StatusCode)
		}
		return nil, &Failure{Reason: parsed.Message}
	}

	return decodePoints(parsed.Data.Timestamp, parsed.Data.Value)
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	dayLayout,
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func decodePoints(timestamps []string, values []float64) (series.Series, error) {
	if len(timestamps) != len(values) {
		return nil, errors.New("forecast response has mismatched timestamp and value counts")
	}

	out := make(series.Series, 0, len(timestamps))
	for i, raw := range timestamps {
		t, err := parseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, series.Sample{
			Timestamp: t.UnixMilli(),
			Value:     int64(math.Round(values[i])),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}
