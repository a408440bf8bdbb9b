package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"golang.org/x/sync/errgroup"
)

var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ErrInvalidOwner is returned for owner names containing a path separator or other invalid characters.
var ErrInvalidOwner = errors.New("invalid owner name")

// Repo is one repository of an owner together with its current star count.
type Repo struct {
	Name  string `json:"name"`
	Stars int64  `json:"stars"`
}

type repoJSON struct {
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	StargazersCount int64  `json:"stargazers_count"`
}

type listing struct {
	repos    []repoJSON
	lastPage int
	found    bool
}

// ListRepos returns every repository of owner, which may be an organization
// or a user. Both listings are requested at once and whichever exists is used.
func (c *Client) ListRepos(ctx context.Context, owner string) ([]Repo, error) {
	if !ownerPattern.MatchString(owner) || !validSegment(owner) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	}

	var orgs, users listing
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orgs, err = c.listPage(gctx, "orgs", owner, 1)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = c.listPage(gctx, "users", owner, 1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kind, first := "orgs", orgs
	if !orgs.found {
		kind, first = "users", users
	}
	if !first.found {
		return nil, &APIError{Status: http.StatusNotFound, Message: fmt.Sprintf("no organization or user named %s", owner)}
	}

	pages := make([][]repoJSON, max(first.lastPage, 1))
	pages[0] = first.repos

	g, gctx = errgroup.WithContext(ctx)
	for page := 2; page <= first.lastPage; page++ {
		g.Go(func() error {
			l, err := c.listPage(gctx, kind, owner, page)
			if err != nil {
				return err
			}
			pages[page-1] = l.repos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var repos []Repo
	for _, page := range pages {
		for _, r := range page {
			name := r.FullName
			if name == "" {
				name = owner + "/" + r.Name
			}
			repos = append(repos, Repo{Name: name, Stars: r.StargazersCount})
		}
	}
	return repos, nil
}

// listPage fetches one page of /{kind}/{owner}/repos. A 404 means the owner
// is not of this kind and is reported as found == false.
func (c *Client) listPage(ctx context.Context, kind, owner string, page int) (listing, error) {
	q := url.Values{}
	q.Set("type", "all")
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", strconv.Itoa(page))

	var repos []repoJSON
	header, err := c.getJSON(ctx, "/"+kind+"/"+owner+"/repos?"+q.Encode(), "", &repos)
	if IsNotFound(err) {
		return listing{}, nil
	}
	if err != nil {
		return listing{}, err
	}
	return listing{repos: repos, lastPage: LastPage(header.Get("Link")), found: true}, nil
}
