package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nicktill/starcast/pkg/cache"
	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/series"
)

// ErrInvalidConfig is returned by New when the configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid sampler config")

// Config controls how many requests a sample may issue and how dense the output is.
type Config struct {
	// RequestBudget is the maximum number of pages fetched per entity
	RequestBudget int

	// MaxPoints caps the output cardinality of a dense scan
	MaxPoints int

	// PageSize is the number of events per full page at the source
	PageSize int

	// Resolution truncates sample timestamps before deduplication (0 = keep as is)
	Resolution time.Duration
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		RequestBudget: config.DefaultRequestBudget,
		MaxPoints:     config.DefaultMaxPoints,
		PageSize:      config.DefaultPageSize,
		Resolution:    config.DefaultResolution,
	}
}

// Sampler reconstructs an approximate growth curve for a paginated cumulative counter.
type Sampler struct {
	cfg    Config
	pages  PageSource
	totals TotalSource
	cache  cache.Cache
	now    func() time.Time
}

// Option customizes a Sampler.
type Option func(*Sampler)

// WithCache stores full, non-final pages in c and reads them back on later samples.
// Such pages never change once written because the source is ordered oldest first.
func WithCache(c cache.Cache) Option {
	return func(s *Sampler) {
		s.cache = c
	}
}

// WithClock replaces time.Now for the final "current total" sample.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		s.now = now
	}
}

// New creates a sampler reading events from pages and the current total from totals.
func New(pages PageSource, totals TotalSource, cfg Config, opts ...Option) (*Sampler, error) {
	if cfg.RequestBudget < 1 {
		return nil, fmt.Errorf("%w: request budget must be at least 1, got %d", ErrInvalidConfig, cfg.RequestBudget)
	}
	if cfg.MaxPoints < 1 {
		return nil, fmt.Errorf("%w: max points must be at least 1, got %d", ErrInvalidConfig, cfg.MaxPoints)
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("%w: page size must be at least 1, got %d", ErrInvalidConfig, cfg.PageSize)
	}

	s := &Sampler{
		cfg:    cfg,
		pages:  pages,
		totals: totals,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sample returns an ordered, deduplicated sparse series for entity that always
// ends with the true current total at "now". Any fetch failure fails the whole
// sample; no partial series is returned.
func (s *Sampler) Sample(ctx context.Context, entity string) (series.Series, error) {
	first, err := s.pages.FetchPage(ctx, entity, 1)
	if err != nil {
		return nil, &FetchError{Entity: entity, Page: 1, Err: err}
	}
	if len(first.Events) == 0 || first.TotalPages == 0 {
		log.Printf("No events for %s, returning empty series", entity)
		return series.Series{}, nil
	}

	totalPages := first.TotalPages
	if totalPages < 0 {
		totalPages = 1
	}
	selected := PagesToFetch(totalPages, s.cfg.RequestBudget)

	events := make([][]int64, len(selected))
	var total int64

	g, gctx := errgroup.WithContext(ctx)
	for i, page := range selected {
		if page == 1 {
			events[i] = first.Events
			continue
		}
		g.Go(func() error {
			evs, err := s.fetchPage(gctx, entity, page, totalPages)
			if err != nil {
				return &FetchError{Entity: entity, Page: page, Err: err}
			}
			events[i] = evs
			return nil
		})
	}
	g.Go(func() error {
		n, err := s.totals.CurrentTotal(gctx, entity)
		if err != nil {
			return &FetchError{Entity: entity, Err: err}
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var points []series.Sample
	if len(selected) < s.cfg.MaxPoints {
		points = s.densePoints(selected, events)
	} else {
		points = s.sparsePoints(selected, events)
	}
	points = append(points, series.Sample{Timestamp: s.now().UnixMilli(), Value: total})

	for i := range points {
		points[i].Timestamp = series.TruncateTimestamp(points[i].Timestamp, s.cfg.Resolution)
	}
	out := series.Normalize(points)

	for _, w := range series.Check(entity, out) {
		log.Printf("Data quality warning: %s", w)
	}
	return out, nil
}

// densePoints assigns every event its position in the overall ordering and keeps
// every stride-th event so at most MaxPoints points come out.
func (s *Sampler) densePoints(selected []int, events [][]int64) []series.Sample {
	// A contiguous selection starting at page 1 is a full scan, so the flat
	// index is the exact count regardless of the source's page size.
	fullScan := len(selected) > 0 && selected[len(selected)-1] == len(selected)

	type event struct {
		ts    int64
		count int64
	}
	var flat []event
	for i, page := range selected {
		for j, ts := range events[i] {
			count := int64(len(flat) + 1)
			if !fullScan {
				count = int64(s.cfg.PageSize*(page-1) + j + 1)
			}
			flat = append(flat, event{ts: ts, count: count})
		}
	}

	stride := len(flat) / s.cfg.MaxPoints
	if stride < 1 {
		stride = 1
	}

	points := make([]series.Sample, 0, len(flat)/stride+1)
	for i := 0; i < len(flat); i += stride {
		points = append(points, series.Sample{Timestamp: flat[i].ts, Value: flat[i].count})
	}
	return points
}

// sparsePoints keeps only the first event of each fetched page.
func (s *Sampler) sparsePoints(selected []int, events [][]int64) []series.Sample {
	points := make([]series.Sample, 0, len(selected))
	for i, page := range selected {
		if len(events[i]) == 0 {
			continue
		}
		points = append(points, series.Sample{
			Timestamp: events[i][0],
			Value:     int64(s.cfg.PageSize * (page - 1)),
		})
	}
	return points
}

func (s *Sampler) fetchPage(ctx context.Context, entity string, page, totalPages int) ([]int64, error) {
	cacheable := s.cache != nil && page < totalPages
	key := pageKey(entity, s.cfg.PageSize, page)

	if cacheable {
		data, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Printf("Cache read failed for %s: %v", key, err)
		} else if ok {
			var evs []int64
			if err := json.Unmarshal(data, &evs); err == nil {
				return evs, nil
			}
			log.Printf("Discarding corrupt cache entry %s", key)
		}
	}

	p, err := s.pages.FetchPage(ctx, entity, page)
	if err != nil {
		return nil, err
	}

	if cacheable && len(p.Events) == s.cfg.PageSize {
		data, err := json.Marshal(p.Events)
		if err == nil {
			err = s.cache.Set(ctx, key, data)
		}
		if err != nil {
			log.Printf("Cache write failed for %s: %v", key, err)
		}
	}
	return p.Events, nil
}

func pageKey(entity string, pageSize, page int) string {
	return fmt.Sprintf("page/%s/%d/%d", entity, pageSize, page)
}

// PagesToFetch selects which pages to request for a source with totalPages pages.
//
// Small histories (totalPages < budget) are scanned completely. Otherwise budget
// indices are spread evenly with round(i*totalPages/budget)-1, page 1 is always
// included, and if that pushes the count over budget the index closest to page 1
// is dropped.
func PagesToFetch(totalPages, budget int) []int {
	if totalPages <= 0 {
		return nil
	}
	if budget < 1 {
		budget = 1
	}

	if totalPages < budget {
		pages := make([]int, totalPages)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}

	set := map[int]struct{}{1: {}}
	for i := 1; i <= budget; i++ {
		page := int(math.Round(float64(i)*float64(totalPages)/float64(budget))) - 1
		if page < 1 {
			page = 1
		}
		if page > totalPages {
			page = totalPages
		}
		set[page] = struct{}{}
	}

	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	for len(pages) > budget {
		pages = append(pages[:1], pages[2:]...)
	}
	return pages
}
