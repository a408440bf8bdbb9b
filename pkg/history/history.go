// Package history assembles star and download histories from the upstream
// clients, the sampler, the aggregator and the forecaster.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nicktill/starcast/pkg/aggregate"
	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/forecast"
	"github.com/nicktill/starcast/pkg/github"
	"github.com/nicktill/starcast/pkg/pypi"
	"github.com/nicktill/starcast/pkg/series"
)

// ErrForecastDisabled is reported when no forecaster is configured.
var ErrForecastDisabled = errors.New("forecasting is not configured")

// StarSampler reconstructs the star history of one owner/repo.
type StarSampler interface {
	Sample(ctx context.Context, repo string) (series.Series, error)
}

// RepoLister lists the repositories of an organization or user.
type RepoLister interface {
	ListRepos(ctx context.Context, owner string) ([]github.Repo, error)
}

// PackageInfo resolves PyPI project metadata.
type PackageInfo interface {
	Info(ctx context.Context, pkg string) (pypi.Info, error)
}

// DownloadSource returns daily download counts of a package.
type DownloadSource interface {
	Downloads(ctx context.Context, pkg string) (series.Series, error)
}

// Config tunes the service.
type Config struct {
	// OrgConcurrency bounds the number of repositories sampled at once
	OrgConcurrency int

	// ForecastDays is the horizon used when a caller does not pick one
	ForecastDays int

	// ForecastThreshold is the star count above which forecasts are refused
	ForecastThreshold int64
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		OrgConcurrency:    config.DefaultOrgConcurrency,
		ForecastDays:      config.DefaultForecastDays,
		ForecastThreshold: config.ForecastStarThreshold,
	}
}

// Deps are the collaborators of a Service. Forecaster and Notifier may be nil.
type Deps struct {
	Stars      StarSampler
	Repos      RepoLister
	Packages   PackageInfo
	Downloads  DownloadSource
	Forecaster forecast.Adapter
	Notifier   Notifier
}

// Service answers history queries.
type Service struct {
	cfg  Config
	deps Deps
}

// New creates a history service.
func New(cfg Config, deps Deps) *Service {
	if cfg.OrgConcurrency < 1 {
		cfg.OrgConcurrency = 1
	}
	if cfg.ForecastDays < 1 {
		cfg.ForecastDays = config.DefaultForecastDays
	}
	if cfg.ForecastThreshold <= 0 {
		cfg.ForecastThreshold = config.ForecastStarThreshold
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &Service{cfg: cfg, deps: deps}
}

// RepoStars returns the star history of repo (owner/repo).
func (s *Service) RepoStars(ctx context.Context, repo string) (series.Series, error) {
	points, err := s.deps.Stars.Sample(ctx, repo)
	if err != nil {
		return nil, err
	}
	s.publish(UpdateEntity, repo, points)
	return points, nil
}

// Org is the star history of every repository of an owner and their sum.
type Org struct {
	Total series.Series            `json:"total"`
	Repos map[string]series.Series `json:"repos"`

	// Failed lists repositories whose history could not be fetched and
	// were counted as zero
	Failed []string `json:"failed,omitempty"`
}

// OrgStars samples every repository of owner and aggregates them. A repository
// that fails to sample is logged and contributes nothing to the total.
func (s *Service) OrgStars(ctx context.Context, owner string) (Org, error) {
	repos, err := s.deps.Repos.ListRepos(ctx, owner)
	if err != nil {
		return Org{}, err
	}

	results := make([]series.Series, len(repos))
	failed := make([]bool, len(repos))

	var g errgroup.Group
	g.SetLimit(s.cfg.OrgConcurrency)
	for i, repo := range repos {
		if repo.Stars == 0 {
			results[i] = series.Series{}
			continue
		}
		g.Go(func() error {
			points, err := s.deps.Stars.Sample(ctx, repo.Name)
			// an abandoned request leaves nothing behind, not even updates
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				log.Printf("Failed to sample %s, counting it as empty: %v", repo.Name, err)
				results[i] = series.Series{}
				failed[i] = true
				return nil
			}
			results[i] = points
			s.publish(UpdateEntity, repo.Name, points)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Org{}, err
	}

	org := Org{Repos: make(map[string]series.Series, len(repos))}
	for i, repo := range repos {
		org.Repos[repo.Name] = results[i]
		if failed[i] {
			org.Failed = append(org.Failed, repo.Name)
		}
	}
	sort.Strings(org.Failed)

	total, err := aggregate.Aggregate(org.Repos)
	if err != nil {
		return Org{}, fmt.Errorf("failed to aggregate %s: %w", owner, err)
	}
	org.Total = total
	s.publish(UpdateAggregate, owner, total)
	return org, nil
}

// PackageStars resolves the GitHub repository of a PyPI package and returns
// its star history together with the repository name.
func (s *Service) PackageStars(ctx context.Context, pkg string) (string, series.Series, error) {
	info, err := s.deps.Packages.Info(ctx, pkg)
	if err != nil {
		return "", nil, err
	}
	repo, err := pypi.SourceRepo(info)
	if err != nil {
		return "", nil, fmt.Errorf("package %s: %w", pkg, err)
	}
	points, err := s.RepoStars(ctx, repo)
	if err != nil {
		return repo, nil, err
	}
	return repo, points, nil
}

// PackageDownloads returns the daily downloads of pkg.
func (s *Service) PackageDownloads(ctx context.Context, pkg string) (series.Series, error) {
	points, err := s.deps.Downloads.Downloads(ctx, pkg)
	if err != nil {
		return nil, err
	}
	s.publish(UpdateEntity, pkg, points)
	return points, nil
}

// Result is a forecast or the reason there is none. A failed forecast never
// fails the history it was requested for.
type Result struct {
	Series series.Series `json:"series,omitempty"`
	Err    string        `json:"error,omitempty"`
}

// Forecast predicts horizonDays (0 = configured default) past the end of s.
// Star histories pass gate=true and are refused above the sparsity threshold.
func (s *Service) Forecast(ctx context.Context, label string, points series.Series, horizonDays int, gate bool) Result {
	if s.deps.Forecaster == nil {
		return Result{Err: ErrForecastDisabled.Error()}
	}
	if horizonDays <= 0 {
		horizonDays = s.cfg.ForecastDays
	}
	if gate {
		if err := forecast.Gate(points, s.cfg.ForecastThreshold); err != nil {
			return Result{Err: err.Error()}
		}
	}

	predicted, err := s.deps.Forecaster.Predict(ctx, points, horizonDays)
	if err != nil {
		log.Printf("Forecast for %s failed: %v", label, err)
		return Result{Err: err.Error()}
	}
	s.publish(UpdateForecast, label, predicted)
	return Result{Series: predicted}
}

func (s *Service) publish(kind, label string, points series.Series) {
	s.deps.Notifier.Publish(Update{Type: kind, Label: label, Points: points})
}
