package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/starcast/pkg/forecast"
	"github.com/nicktill/starcast/pkg/github"
	"github.com/nicktill/starcast/pkg/pypi"
	"github.com/nicktill/starcast/pkg/series"
)

type fakeStars struct {
	mu      sync.Mutex
	series  map[string]series.Series
	failing map[string]bool
	calls   []string
}

func (f *fakeStars) Sample(ctx context.Context, repo string) (series.Series, error) {
	f.mu.Lock()
	f.calls = append(f.calls, repo)
	f.mu.Unlock()
	if f.failing[repo] {
		return nil, errors.New("upstream exploded")
	}
	return f.series[repo], nil
}

type fakeRepos struct {
	repos []github.Repo
	err   error
}

func (f fakeRepos) ListRepos(ctx context.Context, owner string) ([]github.Repo, error) {
	return f.repos, f.err
}

type fakePackages map[string]pypi.Info

func (f fakePackages) Info(ctx context.Context, pkg string) (pypi.Info, error) {
	info, ok := f[pkg]
	if !ok {
		return pypi.Info{}, &pypi.APIError{Status: 404, Message: "Not Found"}
	}
	return info, nil
}

type fakeDownloads series.Series

func (f fakeDownloads) Downloads(ctx context.Context, pkg string) (series.Series, error) {
	return series.Series(f), nil
}

type fakeForecaster struct {
	out     series.Series
	err     error
	horizon int
}

func (f *fakeForecaster) Predict(ctx context.Context, s series.Series, horizonDays int) (series.Series, error) {
	f.horizon = horizonDays
	return f.out, f.err
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) Publish(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) types() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, u := range r.updates {
		counts[u.Type]++
	}
	return counts
}

func TestService_RepoStars(t *testing.T) {
	stars := &fakeStars{series: map[string]series.Series{"a/b": {{Timestamp: 1, Value: 1}}}}
	rec := &recorder{}
	svc := New(DefaultConfig(), Deps{Stars: stars, Notifier: rec})

	got, err := svc.RepoStars(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, series.Series{{Timestamp: 1, Value: 1}}, got)
	require.Len(t, rec.updates, 1)
	assert.Equal(t, Update{Type: UpdateEntity, Label: "a/b", Points: got}, rec.updates[0])
}

func TestService_OrgStars(t *testing.T) {
	stars := &fakeStars{
		series: map[string]series.Series{
			"acme/one": {{Timestamp: 0, Value: 0}, {Timestamp: 10, Value: 10}},
			"acme/two": {{Timestamp: 5, Value: 0}, {Timestamp: 10, Value: 20}},
		},
		failing: map[string]bool{"acme/broken": true},
	}
	repos := fakeRepos{repos: []github.Repo{
		{Name: "acme/one", Stars: 10},
		{Name: "acme/two", Stars: 20},
		{Name: "acme/empty", Stars: 0},
		{Name: "acme/broken", Stars: 3},
	}}
	rec := &recorder{}
	svc := New(Config{OrgConcurrency: 2}, Deps{Stars: stars, Repos: repos, Notifier: rec})

	org, err := svc.OrgStars(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, series.Series{
		{Timestamp: 0, Value: 0},
		{Timestamp: 5, Value: 5},
		{Timestamp: 10, Value: 30},
	}, org.Total)
	assert.Len(t, org.Repos, 4)
	assert.Equal(t, series.Series{}, org.Repos["acme/empty"])
	assert.Equal(t, series.Series{}, org.Repos["acme/broken"])
	assert.Equal(t, []string{"acme/broken"}, org.Failed)

	assert.NotContains(t, stars.calls, "acme/empty", "zero-star repos are not sampled")
	assert.Equal(t, map[string]int{UpdateEntity: 2, UpdateAggregate: 1}, rec.types())
}

func TestService_OrgStars_ListingFails(t *testing.T) {
	svc := New(DefaultConfig(), Deps{Stars: &fakeStars{}, Repos: fakeRepos{err: &github.APIError{Status: 404}}})

	_, err := svc.OrgStars(context.Background(), "ghost")
	assert.True(t, github.IsNotFound(err))
}

func TestService_OrgStars_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := New(DefaultConfig(), Deps{
		Stars: &fakeStars{failing: map[string]bool{"acme/one": true}},
		Repos: fakeRepos{repos: []github.Repo{{Name: "acme/one", Stars: 1}}},
	})
	_, err := svc.OrgStars(ctx, "acme")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_OrgStars_CancelledPublishesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	svc := New(DefaultConfig(), Deps{
		Stars: &fakeStars{series: map[string]series.Series{
			"acme/one": {{Timestamp: 1, Value: 1}},
			"acme/two": {{Timestamp: 1, Value: 2}},
		}},
		Repos: fakeRepos{repos: []github.Repo{
			{Name: "acme/one", Stars: 1},
			{Name: "acme/two", Stars: 2},
		}},
		Notifier: rec,
	})
	_, err := svc.OrgStars(ctx, "acme")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.types())
}

func TestService_PackageStars(t *testing.T) {
	stars := &fakeStars{series: map[string]series.Series{"pypa/sampleproject": {{Timestamp: 1, Value: 3}}}}
	packages := fakePackages{
		"sampleproject": {ProjectURLs: map[string]string{"Source": "https://github.com/pypa/sampleproject"}},
		"elsewhere":     {ProjectURLs: map[string]string{"Homepage": "https://example.com/x/y"}},
	}
	svc := New(DefaultConfig(), Deps{Stars: stars, Packages: packages})

	repo, got, err := svc.PackageStars(context.Background(), "sampleproject")
	require.NoError(t, err)
	assert.Equal(t, "pypa/sampleproject", repo)
	assert.Equal(t, series.Series{{Timestamp: 1, Value: 3}}, got)

	_, _, err = svc.PackageStars(context.Background(), "elsewhere")
	assert.ErrorIs(t, err, pypi.ErrNotGitHub)

	_, _, err = svc.PackageStars(context.Background(), "missing")
	var apiErr *pypi.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestService_PackageDownloads(t *testing.T) {
	want := series.Series{{Timestamp: 1, Value: 100}}
	svc := New(DefaultConfig(), Deps{Downloads: fakeDownloads(want)})

	got, err := svc.PackageDownloads(context.Background(), "requests")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestService_Forecast(t *testing.T) {
	predicted := series.Series{{Timestamp: 100, Value: 50}}
	fc := &fakeForecaster{out: predicted}
	rec := &recorder{}
	svc := New(Config{ForecastDays: 30, ForecastThreshold: 1000}, Deps{Forecaster: fc, Notifier: rec})

	input := series.Series{{Timestamp: 1, Value: 10}}

	res := svc.Forecast(context.Background(), "a/b", input, 0, true)
	assert.Equal(t, Result{Series: predicted}, res)
	assert.Equal(t, 30, fc.horizon)
	assert.Equal(t, map[string]int{UpdateForecast: 1}, rec.types())

	res = svc.Forecast(context.Background(), "a/b", input, 7, true)
	assert.Empty(t, res.Err)
	assert.Equal(t, 7, fc.horizon)
}

func TestService_Forecast_Gated(t *testing.T) {
	fc := &fakeForecaster{out: series.Series{{Timestamp: 100, Value: 1}}}
	svc := New(Config{ForecastThreshold: 1000}, Deps{Forecaster: fc})

	big := series.Series{{Timestamp: 1, Value: 5000}}

	res := svc.Forecast(context.Background(), "a/b", big, 0, true)
	assert.Nil(t, res.Series)
	assert.Contains(t, res.Err, forecast.ErrTooSparse.Error())

	res = svc.Forecast(context.Background(), "requests", big, 0, false)
	assert.Empty(t, res.Err, "download forecasts are not gated")
}

func TestService_Forecast_FailureReasonIsKept(t *testing.T) {
	fc := &fakeForecaster{err: &forecast.Failure{Reason: "Not enough data points"}}
	svc := New(DefaultConfig(), Deps{Forecaster: fc})

	res := svc.Forecast(context.Background(), "a/b", series.Series{{Timestamp: 1, Value: 1}}, 0, true)
	assert.Equal(t, Result{Err: "Not enough data points"}, res)
}

func TestService_Forecast_Disabled(t *testing.T) {
	svc := New(DefaultConfig(), Deps{})
	res := svc.Forecast(context.Background(), "a/b", series.Series{{Timestamp: 1, Value: 1}}, 0, true)
	assert.Equal(t, ErrForecastDisabled.Error(), res.Err)
}
