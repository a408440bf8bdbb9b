package series

import (
	"fmt"
	"sort"
	"time"
)

// Sample is one observation of a cumulative counter.
type Sample struct {
	// Timestamp in Unix milliseconds
	Timestamp int64 `json:"timestamp"`

	// Value is the cumulative count at Timestamp
	Value int64 `json:"value"`
}

// Series is an ordered list of samples. An empty Series means no history is available.
type Series []Sample

// Time returns the sample timestamp as a time.Time in UTC.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

// Last returns the final sample of the series.
func (s Series) Last() (Sample, bool) {
	if len(s) == 0 {
		return Sample{}, false
	}
	return s[len(s)-1], true
}

// Clone returns a copy that shares no memory with s.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Normalize deduplicates points by timestamp and sorts them ascending.
// When two points share a timestamp the one appearing later in points wins.
// The input slice is left untouched.
func Normalize(points []Sample) Series {
	if len(points) == 0 {
		return Series{}
	}

	byTimestamp := make(map[int64]int64, len(points))
	for _, p := range points {
		byTimestamp[p.Timestamp] = p.Value
	}

	out := make(Series, 0, len(byTimestamp))
	for ts, v := range byTimestamp {
		out = append(out, Sample{Timestamp: ts, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// TruncateTimestamp rounds a Unix millisecond timestamp down to a multiple of resolution.
// A resolution of zero or less returns ts unchanged.
func TruncateTimestamp(ts int64, resolution time.Duration) int64 {
	step := resolution.Milliseconds()
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// Warning is a non-fatal data quality problem found in a series.
type Warning struct {
	Entity string
	Index  int
	Reason string
}

func (w Warning) String() string {
	if w.Index < 0 {
		return fmt.Sprintf("%s: %s", w.Entity, w.Reason)
	}
	return fmt.Sprintf("%s[%d]: %s", w.Entity, w.Index, w.Reason)
}

// Check reports data quality warnings for s: an empty series, and every
// point whose value is lower than the one before it.
func Check(entity string, s Series) []Warning {
	if len(s) == 0 {
		return []Warning{{Entity: entity, Index: -1, Reason: "empty series"}}
	}

	var warnings []Warning
	for i := 1; i < len(s); i++ {
		if s[i].Value < s[i-1].Value {
			warnings = append(warnings, Warning{
				Entity: entity,
				Index:  i,
				Reason: fmt.Sprintf("value decreased from %d to %d", s[i-1].Value, s[i].Value),
			})
		}
	}
	return warnings
}
