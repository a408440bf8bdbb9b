package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/export"
	"github.com/nicktill/starcast/pkg/github"
	"github.com/nicktill/starcast/pkg/history"
	"github.com/nicktill/starcast/pkg/httpx"
	"github.com/nicktill/starcast/pkg/pepy"
	"github.com/nicktill/starcast/pkg/pypi"
	"github.com/nicktill/starcast/pkg/series"
	"github.com/nicktill/starcast/pkg/server/monitor"
)

var startTime = time.Now()

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string              `json:"status"`
	Version  string              `json:"version"`
	Uptime   string              `json:"uptime"`
	Upstream monitor.FetchStatus `json:"upstream"`
}

// SeriesResponse is the JSON body of the single-series endpoints.
type SeriesResponse struct {
	Label    string          `json:"label"`
	Repo     string          `json:"repo,omitempty"`
	Points   series.Series   `json:"points"`
	Forecast *history.Result `json:"forecast,omitempty"`
}

// OrgResponse is the JSON body of the organization stars endpoint.
type OrgResponse struct {
	Label string `json:"label"`
	history.Org
	Forecast *history.Result `json:"forecast,omitempty"`
}

// Handler serves the history API.
type Handler struct {
	svc      *history.Service
	repos    history.RepoLister
	fetches  *monitor.FetchMonitor
	cacheMon *monitor.CacheMonitor
}

// NewHandler creates the API handler.
func NewHandler(svc *history.Service, repos history.RepoLister, fetches *monitor.FetchMonitor, cacheMon *monitor.CacheMonitor) *Handler {
	return &Handler{svc: svc, repos: repos, fetches: fetches, cacheMon: cacheMon}
}

// forecastParam reports whether a forecast was requested and for how many days.
func forecastParam(r *http.Request) (int, bool, error) {
	if !r.URL.Query().Has("forecast") {
		return 0, false, nil
	}
	days, err := httpx.QueryInt(r, "forecast", config.DefaultForecastDays, 1, config.MaxForecastDays)
	if err != nil {
		return 0, false, err
	}
	return days, true, nil
}

// forecast runs a forecast on its own deadline so a slow prediction cannot
// eat into the history request.
func (h *Handler) forecast(r *http.Request, label string, points series.Series, days int, gate bool) *history.Result {
	ctx, cancel := context.WithTimeout(r.Context(), config.ForecastTimeout)
	defer cancel()
	res := h.svc.Forecast(ctx, label, points, days, gate)
	return &res
}

// handleRepoStars handles GET /v1/repos/{owner}/{repo}/stars
// Query params:
//   - forecast: days to predict (optional, 1-365, empty = 90)
//   - format: "json" or "csv" to download instead of the API response
func (h *Handler) handleRepoStars(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	repo := vars["owner"] + "/" + vars["repo"]

	days, wantForecast, err := forecastParam(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.RequestTimeout)
	defer cancel()

	points, err := h.svc.RepoStars(ctx, repo)
	if h.fail(w, err) {
		return
	}

	resp := SeriesResponse{Label: repo, Points: points}
	if wantForecast {
		resp.Forecast = h.forecast(r, repo, points, days, true)
	}
	h.respondSeries(w, r, resp)
}

// handleOrgStars handles GET /v1/orgs/{org}/stars
func (h *Handler) handleOrgStars(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]

	days, wantForecast, err := forecastParam(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.RequestTimeout)
	defer cancel()

	result, err := h.svc.OrgStars(ctx, org)
	if h.fail(w, err) {
		return
	}

	resp := OrgResponse{Label: org, Org: result}
	if wantForecast {
		// the sparse-history gate applies to single repositories, not sums
		resp.Forecast = h.forecast(r, org, result.Total, days, false)
	}

	if format := r.URL.Query().Get("format"); format != "" {
		datasets := []export.Dataset{{Label: org, Points: result.Total}}
		if resp.Forecast != nil && resp.Forecast.Series != nil {
			datasets = append(datasets, export.Dataset{Label: org + " (forecast)", Points: resp.Forecast.Series})
		}
		for _, name := range sortedKeys(result.Repos) {
			datasets = append(datasets, export.Dataset{Label: name, Points: result.Repos[name]})
		}
		h.download(w, format, org, datasets)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

// handleOrgRepos handles GET /v1/orgs/{org}/repos
func (h *Handler) handleOrgRepos(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.RequestTimeout)
	defer cancel()

	repos, err := h.repos.ListRepos(ctx, mux.Vars(r)["org"])
	if h.fail(w, err) {
		return
	}
	if repos == nil {
		repos = []github.Repo{}
	}
	httpx.RespondJSON(w, http.StatusOK, repos)
}

// handlePackageStars handles GET /v1/packages/{pkg}/stars
func (h *Handler) handlePackageStars(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["pkg"]

	days, wantForecast, err := forecastParam(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.RequestTimeout)
	defer cancel()

	repo, points, err := h.svc.PackageStars(ctx, pkg)
	if h.fail(w, err) {
		return
	}

	resp := SeriesResponse{Label: pkg, Repo: repo, Points: points}
	if wantForecast {
		resp.Forecast = h.forecast(r, repo, points, days, true)
	}
	h.respondSeries(w, r, resp)
}

// handlePackageDownloads handles GET /v1/packages/{pkg}/downloads
func (h *Handler) handlePackageDownloads(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["pkg"]

	days, wantForecast, err := forecastParam(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.RequestTimeout)
	defer cancel()

	points, err := h.svc.PackageDownloads(ctx, pkg)
	if h.fail(w, err) {
		return
	}

	resp := SeriesResponse{Label: pkg, Points: points}
	if wantForecast {
		resp.Forecast = h.forecast(r, pkg, points, days, false)
	}
	h.respondSeries(w, r, resp)
}

// handleHealth returns service health status.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.fetches.Status()
	overall := "healthy"
	code := http.StatusOK
	if !status.Healthy {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}

	httpx.RespondJSON(w, code, HealthResponse{
		Status:   overall,
		Version:  Version,
		Uptime:   time.Since(startTime).Round(time.Second).String(),
		Upstream: status,
	})
}

// handleCacheUsage returns current cache usage.
func (h *Handler) handleCacheUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.cacheMon.Usage(r.Context())
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, usage)
}

func (h *Handler) respondSeries(w http.ResponseWriter, r *http.Request, resp SeriesResponse) {
	if resp.Points == nil {
		resp.Points = series.Series{}
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		httpx.RespondJSON(w, http.StatusOK, resp)
		return
	}

	datasets := []export.Dataset{{Label: resp.Label, Points: resp.Points}}
	if resp.Forecast != nil && resp.Forecast.Series != nil {
		datasets = append(datasets, export.Dataset{Label: resp.Label + " (forecast)", Points: resp.Forecast.Series})
	}
	h.download(w, format, resp.Label, datasets)
}

func (h *Handler) download(w http.ResponseWriter, format, name string, datasets []export.Dataset) {
	if _, err := export.ParseFormat(format); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if err := export.Write(w, format, name, datasets...); err != nil {
		log.Printf("Export of %s failed: %v", name, err)
	}
}

// fail maps err to a response and records the upstream outcome. It reports
// whether the request is finished. A request the client abandoned says
// nothing about upstream health and gets no body.
func (h *Handler) fail(w http.ResponseWriter, err error) bool {
	status := statusFor(err)
	switch {
	case err == nil:
		h.fetches.RecordSuccess()
		return false
	case status == StatusClientClosedRequest:
		w.WriteHeader(status)
		return true
	case status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		h.fetches.RecordFailure(err)
	case status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		h.fetches.RecordSuccess()
	}
	httpx.RespondError(w, status, err)
	return true
}

// StatusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready.
const StatusClientClosedRequest = 499

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var pypiErr *pypi.APIError
	var pepyErr *pepy.APIError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, github.ErrInvalidRepo),
		errors.Is(err, github.ErrInvalidOwner),
		errors.Is(err, pypi.ErrInvalidPackage),
		errors.Is(err, pepy.ErrInvalidPackage),
		errors.Is(err, export.ErrInvalidFormat),
		errors.Is(err, httpx.ErrBadParam):
		return http.StatusBadRequest
	case errors.Is(err, pypi.ErrNoSource),
		errors.Is(err, pypi.ErrNotGitHub),
		errors.Is(err, pypi.ErrNoRepo):
		return http.StatusUnprocessableEntity
	case github.IsNotFound(err),
		errors.As(err, &pypiErr) && pypiErr.Status == http.StatusNotFound,
		errors.As(err, &pepyErr) && pepyErr.Status == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func sortedKeys(m map[string]series.Series) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
