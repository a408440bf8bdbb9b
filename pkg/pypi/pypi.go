// Package pypi reads project metadata from the Python Package Index.
package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/nicktill/starcast/pkg/config"
)

var (
	// ErrInvalidPackage is returned for names that cannot be a PyPI project.
	ErrInvalidPackage = errors.New("invalid package name")

	// ErrNoSource means the project lists neither a Source nor a Homepage URL.
	ErrNoSource = errors.New("no source")

	// ErrNotGitHub means the source URL is not hosted on github.com.
	ErrNotGitHub = errors.New("not github")

	// ErrNoRepo means the source URL has no owner/repo path.
	ErrNoRepo = errors.New("no repo")
)

var (
	packagePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	repoPath       = regexp.MustCompile(`[^/]+/[^/]+`)
)

// APIError is a PyPI error payload or a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pypi: status %d", e.Status)
	}
	return fmt.Sprintf("pypi: %s", e.Message)
}

// Info is the subset of the project JSON we use.
type Info struct {
	Name        string            `json:"name"`
	Summary     string            `json:"summary"`
	Version     string            `json:"version"`
	ProjectURLs map[string]string `json:"project_urls"`
}

// Client fetches project metadata.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a PyPI client; an empty baseURL uses the public index.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = config.PyPIBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: config.UpstreamTimeout},
	}
}

// Info returns the metadata of pkg.
func (c *Client) Info(ctx context.Context, pkg string) (Info, error) {
	if !packagePattern.MatchString(pkg) {
		return Info{}, fmt.Errorf("%w: %q", ErrInvalidPackage, pkg)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pypi/"+pkg+"/json", nil)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxUpstreamBodyBytes))
	if err != nil {
		return Info{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed struct {
		Info    *Info  `json:"info"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Info{}, &APIError{Status: resp.StatusCode}
		}
		return Info{}, fmt.Errorf("invalid response for %s: %w", pkg, err)
	}
	if parsed.Info == nil {
		return Info{}, &APIError{Status: resp.StatusCode, Message: parsed.Message}
	}
	return *parsed.Info, nil
}

// SourceRepo derives the GitHub owner/repo a project is developed in,
// preferring the Source URL over the Homepage.
func SourceRepo(info Info) (string, error) {
	raw, ok := info.ProjectURLs["Source"]
	if !ok {
		raw, ok = info.ProjectURLs["Homepage"]
	}
	if !ok || raw == "" {
		return "", ErrNoSource
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() != "github.com" {
		return "", ErrNotGitHub
	}

	repo := repoPath.FindString(u.Path)
	if repo == "" {
		return "", ErrNoRepo
	}
	return repo, nil
}
