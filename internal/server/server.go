package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/theapemachine/errnie"
	"github.com/theapemachine/qbridge"
	"github.com/theapemachine/qbridge/internal/bridge"
)

// maxBodyBytes bounds circuit and envelope uploads.
const maxBodyBytes = 1 << 20

// Server exposes a Bridge over HTTP.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	bridge  *bridge.Bridge
	limiter *qbridge.RateLimiter
}

/*
New wires the bridge operations to routes. Every API request takes a token
from limiter first; /healthz and /metrics are never limited.
*/
func New(addr string, b *bridge.Bridge, limiter *qbridge.RateLimiter) *Server {
	limiter.Observe(b.Metrics())

	s := &Server{
		router:  chi.NewRouter(),
		bridge:  b,
		limiter: limiter,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.bridge.Metrics().Registry(), promhttp.HandlerOpts{}))

	s.router.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		r.Get("/circuit", s.handleGetCircuit)
		r.Post("/circuit", s.handleBuildCircuit)
		r.Post("/run", s.handleRun)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/devices", s.handleDevices)
		r.Get("/predict", s.handlePredict)
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	errnie.Info("server: listening on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	errnie.Info("server: shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		errnie.Info(
			"server: %s %s %d %dB %v %s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(),
			time.Since(start), middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter.Limit() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
