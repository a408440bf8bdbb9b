package forecast

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicktill/starcast/pkg/series"
)

// Adapter predicts future points of a reconstructed series.
type Adapter interface {
	// Predict returns horizonDays of daily points after the last input timestamp
	Predict(ctx context.Context, s series.Series, horizonDays int) (series.Series, error)
}

// Failure carries the forecasting service's own reason for not producing a
// prediction. Callers should show Reason as is.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return f.Reason
}

var (
	// ErrTooSparse is returned by Gate when the counter is past the point
	// where its history can support a forecast.
	ErrTooSparse = errors.New("history too sparse to forecast")

	// ErrEmptySeries is returned when there is nothing to forecast from.
	ErrEmptySeries = errors.New("cannot forecast an empty series")
)

// Gate rejects series whose current total exceeds threshold. Beyond that
// count the source stops exposing recent events, so any forecast would be
// extrapolating from stale data.
func Gate(s series.Series, threshold int64) error {
	last, ok := s.Last()
	if !ok {
		return ErrEmptySeries
	}
	if last.Value > threshold {
		return fmt.Errorf("%w: %d exceeds %d", ErrTooSparse, last.Value, threshold)
	}
	return nil
}
