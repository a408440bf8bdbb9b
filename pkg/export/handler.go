package export

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Supported formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ErrInvalidFormat is returned for formats other than json and csv.
var ErrInvalidFormat = errors.New("invalid format, must be 'json' or 'csv'")

// ParseFormat validates a format query value (empty = json).
func ParseFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", ErrInvalidFormat
	}
}

// Write renders datasets as a downloadable file named after name.
func Write(w http.ResponseWriter, format, name string, datasets ...Dataset) error {
	format, err := ParseFormat(format)
	if err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("starcast-%s-%s.%s", sanitize(name), timestamp, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if format == FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		return WriteCSV(w, datasets...)
	}
	w.Header().Set("Content-Type", "application/json")
	return WriteJSON(w, datasets...)
}

// sanitize keeps filenames to a safe character set.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
