package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/starcast/pkg/series"
)

func TestAggregate_TwoEntities(t *testing.T) {
	got, err := Aggregate(map[string]series.Series{
		"a": {{Timestamp: 0, Value: 0}, {Timestamp: 10, Value: 10}},
		"b": {{Timestamp: 5, Value: 5}, {Timestamp: 10, Value: 15}},
	})
	require.NoError(t, err)

	want := series.Series{
		{Timestamp: 0, Value: 0},
		{Timestamp: 5, Value: 10},
		{Timestamp: 10, Value: 25},
	}
	assert.Equal(t, want, got)
}

func TestAggregate_EmptySeriesContributesZero(t *testing.T) {
	rest := map[string]series.Series{
		"a": {{Timestamp: 0, Value: 2}, {Timestamp: 10, Value: 12}},
		"b": {{Timestamp: 4, Value: 1}, {Timestamp: 8, Value: 3}},
	}
	want, err := Aggregate(rest)
	require.NoError(t, err)

	withEmpty := map[string]series.Series{
		"a":     rest["a"],
		"b":     rest["b"],
		"empty": {},
		"nil":   nil,
	}
	got, err := Aggregate(withEmpty)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAggregate_NoInputs(t *testing.T) {
	got, err := Aggregate(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Aggregate(map[string]series.Series{"empty": {}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregate_SingleEntityRoundTrip(t *testing.T) {
	s := series.Series{
		{Timestamp: 100, Value: 3},
		{Timestamp: 250, Value: 7},
		{Timestamp: 900, Value: 7},
		{Timestamp: 1000, Value: 42},
	}
	got, err := Aggregate(map[string]series.Series{"only": s})
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestAggregate_IdentityWithZeroSeries(t *testing.T) {
	agg, err := Aggregate(map[string]series.Series{
		"a": {{Timestamp: 0, Value: 0}, {Timestamp: 10, Value: 10}},
		"b": {{Timestamp: 5, Value: 5}, {Timestamp: 10, Value: 15}},
	})
	require.NoError(t, err)

	zero := make(series.Series, len(agg))
	for i, p := range agg {
		zero[i] = series.Sample{Timestamp: p.Timestamp}
	}

	again, err := Aggregate(map[string]series.Series{"agg": agg, "zero": zero})
	require.NoError(t, err)
	assert.Equal(t, agg, again)

	again, err = Aggregate(map[string]series.Series{"agg": agg, "zero": {}})
	require.NoError(t, err)
	assert.Equal(t, agg, again)
}

func TestAggregate_CursorCatchesUpOverSeveralPoints(t *testing.T) {
	// "dense" has several points between consecutive timestamps of "sparse"
	got, err := Aggregate(map[string]series.Series{
		"dense": {
			{Timestamp: 0, Value: 0},
			{Timestamp: 1, Value: 100},
			{Timestamp: 2, Value: 100},
			{Timestamp: 3, Value: 100},
			{Timestamp: 20, Value: 120},
		},
		"sparse": {
			{Timestamp: 0, Value: 0},
			{Timestamp: 10, Value: 10},
			{Timestamp: 20, Value: 20},
		},
	})
	require.NoError(t, err)

	byTimestamp := make(map[int64]int64, len(got))
	for _, p := range got {
		byTimestamp[p.Timestamp] = p.Value
	}

	assert.Equal(t, []int64{0, 1, 2, 3, 10, 20}, timestampsOf(got))
	assert.Equal(t, int64(100+1), byTimestamp[1])
	assert.Equal(t, int64(100+3), byTimestamp[3])
	// dense at t=10 sits on the 3..20 segment: 100 + 7*20/17
	assert.Equal(t, int64(108+10), byTimestamp[10])
	assert.Equal(t, int64(120+20), byTimestamp[20])
}

func TestAggregate_FlatExtrapolationAndZeroBefore(t *testing.T) {
	got, err := Aggregate(map[string]series.Series{
		"early": {{Timestamp: 0, Value: 5}, {Timestamp: 2, Value: 9}},
		"late":  {{Timestamp: 6, Value: 1}, {Timestamp: 8, Value: 3}},
	})
	require.NoError(t, err)

	assert.Equal(t, series.Series{
		{Timestamp: 0, Value: 5},
		{Timestamp: 2, Value: 9},
		{Timestamp: 6, Value: 10},
		{Timestamp: 8, Value: 12},
	}, got)
}

func TestAggregate_NonMonotoneIsUsedAsGiven(t *testing.T) {
	got, err := Aggregate(map[string]series.Series{
		"wobbly": {{Timestamp: 0, Value: 10}, {Timestamp: 10, Value: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, series.Series{{Timestamp: 0, Value: 10}, {Timestamp: 10, Value: 4}}, got)
}

func TestAggregate_DoesNotMutateInputs(t *testing.T) {
	a := series.Series{{Timestamp: 10, Value: 1}, {Timestamp: 0, Value: 0}}
	original := a.Clone()

	_, err := Aggregate(map[string]series.Series{"a": a})
	require.NoError(t, err)
	assert.Equal(t, original, a)
}

func timestampsOf(s series.Series) []int64 {
	out := make([]int64, len(s))
	for i, p := range s {
		out[i] = p.Timestamp
	}
	return out
}

func TestCursor_AdvancesPastSkippedPoints(t *testing.T) {
	c := &cursor{entity: "dense", points: series.Series{
		{Timestamp: 0, Value: 0},
		{Timestamp: 1, Value: 100},
		{Timestamp: 2, Value: 100},
		{Timestamp: 3, Value: 100},
		{Timestamp: 20, Value: 120},
	}}

	v, err := c.valueAt(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	// jump straight to t=10 without visiting 1, 2 or 3
	v, err = c.valueAt(10)
	require.NoError(t, err)
	assert.Equal(t, 3, c.idx)
	assert.InDelta(t, 100+7.0*20/17, v, 1e-9)

	v, err = c.valueAt(25)
	require.NoError(t, err)
	assert.Equal(t, 4, c.idx)
	assert.Equal(t, 120.0, v)
}
