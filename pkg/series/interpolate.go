package series

import "fmt"

// OutOfRangeError is returned when the target time lies outside the interval.
type OutOfRangeError struct {
	T          int64
	Start, End int64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("t %d out of range [%d, %d]", e.T, e.Start, e.End)
}

// DegenerateIntervalError is returned when both samples share a timestamp.
type DegenerateIntervalError struct {
	Timestamp int64
}

func (e *DegenerateIntervalError) Error() string {
	return fmt.Sprintf("degenerate interval at %d", e.Timestamp)
}

// Interpolate returns the linear interpolation between a and b at time t.
// The result may be fractional; callers decide how to round it.
func Interpolate(a, b Sample, t int64) (float64, error) {
	if a.Timestamp == b.Timestamp {
		return 0, &DegenerateIntervalError{Timestamp: a.Timestamp}
	}
	if t < a.Timestamp || t > b.Timestamp {
		return 0, &OutOfRangeError{T: t, Start: a.Timestamp, End: b.Timestamp}
	}

	// exact at the endpoints, no float drift
	switch t {
	case a.Timestamp:
		return float64(a.Value), nil
	case b.Timestamp:
		return float64(b.Value), nil
	}

	dx := float64(b.Timestamp - a.Timestamp)
	dy := float64(b.Value - a.Value)
	return float64(a.Value) + float64(t-a.Timestamp)*dy/dx, nil
}
