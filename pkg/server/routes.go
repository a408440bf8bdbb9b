package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all HTTP routes on router and returns it wrapped in
// CORS handling. The wrapper sits outside the router so preflight requests
// reach it even though routes only accept GET or POST.
func SetupRoutes(router *mux.Router, h *Handler, ws http.Handler, proxies Proxies, port string) http.Handler {
	router.Use(requestLogger)
	api := router.PathPrefix("/v1").Subrouter()

	// Histories
	api.HandleFunc("/repos/{owner}/{repo}/stars", h.handleRepoStars).Methods("GET")
	api.HandleFunc("/orgs/{org}/stars", h.handleOrgStars).Methods("GET")
	api.HandleFunc("/orgs/{org}/repos", h.handleOrgRepos).Methods("GET")
	api.HandleFunc("/packages/{pkg}/stars", h.handlePackageStars).Methods("GET")
	api.HandleFunc("/packages/{pkg}/downloads", h.handlePackageDownloads).Methods("GET")

	// Status
	api.HandleFunc("/health", h.handleHealth).Methods("GET")
	api.HandleFunc("/cache", h.handleCacheUsage).Methods("GET")

	// WebSocket stream of finished series
	api.Handle("/ws", ws).Methods("GET")

	// Credential-injecting upstream forwarders
	router.PathPrefix("/github/").Handler(proxies.GitHub).Methods("GET")
	router.PathPrefix("/pepy/").Handler(proxies.Pepy).Methods("GET")
	router.PathPrefix("/pypi/").Handler(proxies.PyPI).Methods("GET")
	router.Handle("/nixtla", proxies.Nixtla).Methods("POST")

	return corsMiddleware(port)(router)
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
		"http://localhost:5173":    true,
		"http://127.0.0.1:5173":    true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
				w.Header().Set("Access-Control-Expose-Headers", "Link, Content-Disposition")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
