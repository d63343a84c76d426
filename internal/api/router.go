package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds all probes of one /healthz request.
const healthCheckTimeout = 3 * time.Second

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	if s.deps.RosterToken != "" {
		r.With(s.rosterAuth).Get("/api/Plants", s.handleRoster)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	return r
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// handleHealth probes every registered component. Any failure makes the
// response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Version: s.deps.Version, Checks: map[string]string{}}
	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.deps.Checks[name].HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleRoster returns every plant with its gateway. The master daemon sends
// a filter parameter; the full shape is always returned, so it is ignored.
func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.deps.Roster.ListRoster(r.Context())
	if err != nil {
		s.deps.Logger.Error("listing roster", "error", err)
		writeInternalError(w, "failed to list plants")
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// rosterAuth accepts the token as access_token query parameter, as the
// master daemon sends it, or as a bearer token.
func (s *Server) rosterAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("access_token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.RosterToken)) != 1 {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid access token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
