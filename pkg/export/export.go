package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nicktill/starcast/pkg/series"
)

// Version of the JSON export envelope
const Version = "1.0"

// Dataset is one named series, e.g. a repository's stars or its forecast.
type Dataset struct {
	Label  string        `json:"label"`
	Points series.Series `json:"points"`
}

// Metadata describes a JSON export.
type Metadata struct {
	ExportedAt   time.Time `json:"exported_at"`
	DatasetCount int       `json:"dataset_count"`
	Version      string    `json:"version"`
}

// Document is the JSON export envelope.
type Document struct {
	Metadata Metadata  `json:"metadata"`
	Datasets []Dataset `json:"datasets"`
}

// WriteJSON writes datasets as an indented JSON document.
func WriteJSON(w io.Writer, datasets ...Dataset) error {
	doc := Document{
		Metadata: Metadata{
			ExportedAt:   time.Now().UTC(),
			DatasetCount: len(datasets),
			Version:      Version,
		},
		Datasets: make([]Dataset, 0, len(datasets)),
	}
	for _, d := range datasets {
		if d.Points == nil {
			d.Points = series.Series{}
		}
		doc.Datasets = append(doc.Datasets, d)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteCSV writes one label,timestamp,date,value row per point.
func WriteCSV(w io.Writer, datasets ...Dataset) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"label", "timestamp", "date", "value"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, d := range datasets {
		for _, p := range d.Points {
			row := []string{
				d.Label,
				strconv.FormatInt(p.Timestamp, 10),
				p.Time().Format("2006-01-02"),
				strconv.FormatInt(p.Value, 10),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
