package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/club-registration/internal/config"
	"github.com/terra-clan/club-registration/internal/health"
	"github.com/terra-clan/club-registration/internal/live"
	"github.com/terra-clan/club-registration/internal/registration"
)

const (
	requestTimeout = 60 * time.Second
	// SendResults sleeps between messages, so a large roster outlives requestTimeout
	notifyTimeout = 15 * time.Minute
)

// Server represents the HTTP API server
type Server struct {
	config  config.ServerConfig
	router  *chi.Mux
	service *registration.Service
	hub     *live.Hub
	health  *health.Registry
	metrics http.Handler
}

// NewServer creates a new API server. hub, checks and metricsHandler may be nil.
func NewServer(
	cfg config.ServerConfig,
	service *registration.Service,
	hub *live.Hub,
	checks *health.Registry,
	metricsHandler http.Handler,
) *Server {
	if checks == nil {
		checks = health.NewRegistry(0)
	}
	s := &Server{
		config:  cfg,
		service: service,
		hub:     hub,
		health:  checks,
		metrics: metricsHandler,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/health", s.handleHealth)
	r.With(middleware.Timeout(requestTimeout)).Get("/ready", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Websocket upgrades must not run under the request timeout
		if s.hub != nil {
			r.Get("/assignments/live", s.hub.ServeHTTP)
		}

		r.With(middleware.Timeout(notifyTimeout)).Post("/notifications/results", s.handleSendResults)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/clubs", s.handleListClubs)

			r.Get("/submissions", s.handleListSubmissions)
			r.Post("/submissions", s.handleSubmit)
			r.Delete("/submissions", s.handleClearSubmissions)
			r.Delete("/submissions/{grade}/{studentName}", s.handleDeleteSubmission)

			r.Get("/assignments", s.handleListAssignments)
			r.Put("/assignments", s.handleOverwriteAssignments)
			r.Delete("/assignments", s.handleClearAssignments)
			r.Post("/assignments/recompute", s.handleRecompute)

			r.Get("/waitlists", s.handleListWaitlists)
			r.Delete("/waitlists", s.handleClearWaitlists)
		})
	})

	// Single endpoint kept for the registration form and admin page
	r.With(middleware.Timeout(requestTimeout)).HandleFunc("/api/club-registration", s.handleLegacy)

	s.router = r
}

func (s *Server) corsOptions() cors.Options {
	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}

	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
