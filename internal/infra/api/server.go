package api

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"activation-platform/internal/config"
	"activation-platform/internal/domain/ports/adapter"
	"activation-platform/internal/infra/api/apiv1"
	"activation-platform/internal/infra/metrics"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

type RouterDeps struct {
	Codes   *apiv1.Handler
	Gate    *AdminGate
	Limiter adapter.RateLimiter // nil disables rate limiting
	Health  HealthFunc
	CORS    config.CORSConfig
	Timeout time.Duration
	Logger  *zerolog.Logger

	// TrustedProxies are the peers allowed to name the client via X-Forwarded-For or X-Real-IP.
	TrustedProxies []netip.Prefix
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(RealIP(d.TrustedProxies))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", apiKeyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(TraceID(), RequestLog(d.Logger), Recover(d.Logger), Timeout(d.Timeout))

	r.Get("/health", healthHandler(d.Health))
	r.Handle("/metrics", metrics.Handler())

	if d.Gate.auth != nil {
		r.Post("/api/v1/auth/token", d.Gate.TokenHandler())
	}

	limit := func(next http.Handler) http.Handler { return next }
	if d.Limiter != nil {
		limit = RateLimit(d.Limiter, d.Logger)
	}
	apiv1.Register(r, d.Codes, d.Gate.Middleware(), limit)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func healthHandler(check HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

// Server owns the listening http.Server.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewServer(cfg config.HTTPConfig, h http.Handler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http_server").Logger()
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		log: &l,
	}
}

// Start blocks until the server stops. A graceful Shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
