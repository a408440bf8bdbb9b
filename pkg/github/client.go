package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/sampler"
)

// starAccept makes the stargazers endpoint include starred_at timestamps.
const starAccept = "application/vnd.github.v3.star+json"

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ErrInvalidRepo is returned for names that are not of the form owner/repo.
var ErrInvalidRepo = errors.New("repository must be of the form owner/repo")

// ValidRepo reports whether name is a well-formed owner/repo pair.
func ValidRepo(name string) bool {
	if !repoPattern.MatchString(name) {
		return false
	}
	owner, repo, _ := strings.Cut(name, "/")
	return validSegment(owner) && validSegment(repo)
}

func validSegment(s string) bool {
	return s != "." && s != ".."
}

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: status %d", e.Status)
	}
	return fmt.Sprintf("github: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Config holds GitHub client settings.
type Config struct {
	BaseURL string
	Token   string
	PerPage int

	// RequestsPerSecond throttles all calls made by the client (0 = unlimited)
	RequestsPerSecond float64
}

// Client reads stargazer pages, star counts and repository listings.
// It satisfies sampler.PageSource and sampler.TotalSource with entities of the form owner/repo.
type Client struct {
	baseURL string
	token   string
	perPage int
	client  *http.Client
	limiter *rate.Limiter
}

var (
	_ sampler.PageSource  = (*Client)(nil)
	_ sampler.TotalSource = (*Client)(nil)
)

// New creates a GitHub API client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.GitHubBaseURL
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = config.DefaultPageSize
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		perPage: perPage,
		client: &http.Client{
			Timeout: config.UpstreamTimeout,
		},
		limiter: limiter,
	}
}

// Limiter returns the client's rate limiter so other GitHub traffic can share its budget.
func (c *Client) Limiter() *rate.Limiter {
	return c.limiter
}

// PerPage returns the page size used for paginated requests.
func (c *Client) PerPage() int {
	return c.perPage
}

type stargazer struct {
	StarredAt time.Time `json:"starred_at"`
}

// FetchPage returns one page of stargazer timestamps, oldest first.
func (c *Client) FetchPage(ctx context.Context, repo string, page int) (sampler.Page, error) {
	if !ValidRepo(repo) {
		return sampler.Page{}, fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}

	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", strconv.Itoa(page))

	var stars []stargazer
	header, err := c.getJSON(ctx, "/repos/"+repo+"/stargazers?"+q.Encode(), starAccept, &stars)
	if err != nil {
		return sampler.Page{}, err
	}

	events := make([]int64, len(stars))
	for i, s := range stars {
		events[i] = s.StarredAt.UnixMilli()
	}
	// without a rel="last" link this page is the last one
	totalPages := LastPage(header.Get("Link"))
	if totalPages == 0 {
		totalPages = page
	}
	return sampler.Page{Events: events, TotalPages: totalPages}, nil
}

// CurrentTotal returns the repository's current stargazer count.
func (c *Client) CurrentTotal(ctx context.Context, repo string) (int64, error) {
	if !ValidRepo(repo) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}

	var info struct {
		StargazersCount int64 `json:"stargazers_count"`
	}
	if _, err := c.getJSON(ctx, "/repos/"+repo, starAccept, &info); err != nil {
		return 0, err
	}
	return info.StargazersCount, nil
}

// getJSON issues a GET against the API and decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, path, accept string, out interface{}) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", config.GitHubAPIVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxUpstreamBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &msg)
		return resp.Header, &APIError{Status: resp.StatusCode, Message: msg.Message}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.Header, fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return resp.Header, nil
}

// LastPage extracts the page number of the rel="last" entry of a Link header.
// It returns 0 when there is no such entry.
func LastPage(link string) int {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}

		isLast := false
		for _, param := range segments[1:] {
			if strings.TrimSpace(param) == `rel="last"` {
				isLast = true
				break
			}
		}
		if !isLast {
			continue
		}

		raw := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		u, err := url.Parse(raw)
		if err != nil {
			return 0
		}
		page, err := strconv.Atoi(u.Query().Get("page"))
		if err != nil || page < 1 {
			return 0
		}
		return page
	}
	return 0
}
