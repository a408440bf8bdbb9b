// Package pepy reads daily PyPI download counts from pepy.tech.
package pepy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/series"
)

// ErrInvalidPackage is returned for names that cannot be a PyPI project.
var ErrInvalidPackage = errors.New("invalid package name")

var packagePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// APIError carries the message of a pepy error payload.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pepy: status %d", e.Status)
	}
	return fmt.Sprintf("pepy: %s", e.Message)
}

// Client fetches download statistics.
type Client struct {
	baseURL string
	key     string
	client  *http.Client
}

// New creates a pepy client authenticating with key.
func New(baseURL, key string) *Client {
	if baseURL == "" {
		baseURL = config.PepyBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  &http.Client{Timeout: config.UpstreamTimeout},
	}
}

type projectResponse struct {
	ID        string                      `json:"id"`
	Downloads map[string]map[string]int64 `json:"downloads"`
	Message   string                      `json:"message"`
}

// Downloads returns the total downloads of pkg per day, summed over versions.
func (c *Client) Downloads(ctx context.Context, pkg string) (series.Series, error) {
	if !packagePattern.MatchString(pkg) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPackage, pkg)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/projects/"+pkg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set("X-Api-Key", c.key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxUpstreamBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed projectResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("invalid response for %s: %w", pkg, err)
	}
	if parsed.Downloads == nil {
		return nil, &APIError{Status: resp.StatusCode, Message: parsed.Message}
	}

	samples := make([]series.Sample, 0, len(parsed.Downloads))
	for date, versions := range parsed.Downloads {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q for %s: %w", date, pkg, err)
		}
		var total int64
		for _, n := range versions {
			total += n
		}
		samples = append(samples, series.Sample{Timestamp: day.UnixMilli(), Value: total})
	}
	return series.Normalize(samples), nil
}
