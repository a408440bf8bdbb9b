// Package proxy forwards browser requests to upstream APIs, adding the
// server-held credentials so they never reach the client.
package proxy

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/httpx"
)

// Route describes one upstream.
type Route struct {
	// Target is the upstream base URL
	Target string

	// Path maps the incoming path to the path appended to Target (nil = unchanged)
	Path func(string) string

	// Headers are set on every upstream request (credentials)
	Headers map[string]string

	// Forward lists client request headers passed upstream; all others are dropped
	Forward []string

	// Return lists upstream response headers passed back besides Content-Type
	Return []string

	// Limiter throttles upstream calls (nil = unlimited)
	Limiter *rate.Limiter
}

// StripPrefix returns a Path func replacing prefix with replacement.
func StripPrefix(prefix, replacement string) func(string) string {
	return func(p string) string {
		return replacement + strings.TrimPrefix(p, prefix)
	}
}

// Fixed returns a Path func that always maps to p.
func Fixed(p string) func(string) string {
	return func(string) string {
		return p
	}
}

// Handler forwards matching requests to a Route.
type Handler struct {
	limiter *rate.Limiter
	proxy   *httputil.ReverseProxy
}

// New creates a forwarding handler for rt.
func New(rt Route) (*Handler, error) {
	target, err := url.Parse(rt.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", rt.Target, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid proxy target %q: missing scheme or host", rt.Target)
	}

	h := &Handler{limiter: rt.Limiter}

	returned := make(map[string]bool, len(rt.Return)+1)
	returned[http.CanonicalHeaderKey("Content-Type")] = true
	for _, name := range rt.Return {
		returned[http.CanonicalHeaderKey(name)] = true
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.UpstreamTimeout

	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			path := pr.In.URL.Path
			if rt.Path != nil {
				path = rt.Path(path)
			}

			out := *target
			out.Path = strings.TrimRight(target.Path, "/") + path
			out.RawPath = ""
			out.RawQuery = pr.In.URL.RawQuery
			pr.Out.URL = &out
			pr.Out.Host = target.Host

			header := make(http.Header)
			for _, name := range rt.Forward {
				if v := pr.In.Header.Get(name); v != "" {
					header.Set(name, v)
				}
			}
			for name, v := range rt.Headers {
				header.Set(name, v)
			}
			pr.Out.Header = header

			log.Printf("%s %s -> %s", pr.In.Method, pr.In.URL.Path, out.Redacted())
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			for name := range resp.Header {
				if !returned[name] {
					resp.Header.Del(name)
				}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Printf("Proxy to %s failed: %v", rt.Target, err)
			status := http.StatusBadGateway
			if r.Context().Err() == context.DeadlineExceeded {
				status = http.StatusGatewayTimeout
			}
			httpx.RespondErrorString(w, status, fmt.Sprintf("upstream request to %s failed", target.Host))
		},
	}

	return h, nil
}

// ServeHTTP forwards r upstream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		if err := h.limiter.Wait(r.Context()); err != nil {
			httpx.RespondErrorString(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, config.MaxUpstreamBodyBytes)
	}
	h.proxy.ServeHTTP(w, r)
}
