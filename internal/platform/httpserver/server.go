package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	breakerports "porter/contexts/messaging-core/circuit-breaker/ports"
	limiterports "porter/contexts/messaging-core/rate-limiter/ports"
)

// Diagnostics aggregates the read-only stats surface of every core
// component. Nil fields are simply omitted from the stats payload.
type Diagnostics struct {
	DedupCacheSize func() int
	Breakers       func() []breakerports.Snapshot
	DeadLetters    func(ctx context.Context) (map[string]int, error)
	RateLimiter    func() limiterports.Stats
}

// Server is the internal diagnostics endpoint. It exposes liveness and
// component stats only; there is no public API surface in this process.
type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	addr        string
	diagnostics Diagnostics
}

func New(diagnostics Diagnostics, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		addr:        addr,
		diagnostics: diagnostics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /internal/stats", s.handleStats)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	payload := map[string]any{}
	if s.diagnostics.DedupCacheSize != nil {
		payload["dedup_cache_size"] = s.diagnostics.DedupCacheSize()
	}
	if s.diagnostics.Breakers != nil {
		payload["circuit_breakers"] = s.diagnostics.Breakers()
	}
	if s.diagnostics.RateLimiter != nil {
		payload["rate_limiter"] = s.diagnostics.RateLimiter()
	}
	if s.diagnostics.DeadLetters != nil {
		counts, err := s.diagnostics.DeadLetters(ctx)
		if err != nil {
			s.logger.Warn("dead letter stats unavailable",
				"event", "stats_dead_letters_failed",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"error", err.Error(),
			)
		} else {
			payload["dead_letters"] = counts
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
