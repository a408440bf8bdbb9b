package aggregate

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/nicktill/starcast/pkg/series"
)

// cursor walks one entity's series forward in lockstep with the union timeline.
// It is owned by a single aggregation pass.
type cursor struct {
	entity string
	points series.Series
	idx    int
}

func (c *cursor) current() series.Sample {
	return c.points[c.idx]
}

func (c *cursor) next() (series.Sample, bool) {
	if c.idx+1 >= len(c.points) {
		return series.Sample{}, false
	}
	return c.points[c.idx+1], true
}

// valueAt returns the entity's contribution at t and advances the cursor as
// far as t allows. Timestamps must be visited in ascending order.
func (c *cursor) valueAt(t int64) (float64, error) {
	// assume zero before the first observation
	if t < c.current().Timestamp {
		return 0, nil
	}

	for {
		next, ok := c.next()
		if !ok || next.Timestamp > t {
			break
		}
		c.idx++
	}

	next, ok := c.next()
	if !ok {
		// flat extrapolation past the last point
		return float64(c.current().Value), nil
	}
	return series.Interpolate(c.current(), next, t)
}

// Aggregate sums independently sampled series onto the union of all their
// timestamps, interpolating each entity linearly between its own points.
//
// Empty series are dropped with a warning and contribute zero. Sums are
// rounded to the nearest integer once per timestamp.
func Aggregate(inputs map[string]series.Series) (series.Series, error) {
	entities := make([]string, 0, len(inputs))
	for entity := range inputs {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	var cursors []*cursor
	timeline := make(map[int64]struct{})
	for _, entity := range entities {
		s := inputs[entity]
		for _, w := range series.Check(entity, s) {
			log.Printf("Data quality warning: %s", w)
		}
		if len(s) == 0 {
			continue
		}

		// cursors require strictly increasing timestamps
		points := series.Normalize(s)
		for _, p := range points {
			timeline[p.Timestamp] = struct{}{}
		}
		cursors = append(cursors, &cursor{entity: entity, points: points})
	}

	timestamps := make([]int64, 0, len(timeline))
	for ts := range timeline {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i] < timestamps[j]
	})

	out := make(series.Series, 0, len(timestamps))
	for _, t := range timestamps {
		var total float64
		for _, c := range cursors {
			v, err := c.valueAt(t)
			if err != nil {
				return nil, fmt.Errorf("aggregate %s at %d: %w", c.entity, t, err)
			}
			total += v
		}
		out = append(out, series.Sample{Timestamp: t, Value: int64(math.Round(total))})
	}
	return out, nil
}
