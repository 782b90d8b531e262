package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"daybook/internal/auth"
	"daybook/internal/log"
	"daybook/internal/middleware/ratelimit"
	"daybook/internal/middleware/security"
	"daybook/internal/middleware/trace"
	"daybook/internal/services"
)

// Server wires the report ledger and credential services into the REST API.
type Server struct {
	reports *services.ReportService
	auth    *auth.Service
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
	logger  *log.Logger
	router  chi.Router
}

func NewServer(reports *services.ReportService, authSvc *auth.Service, limiter *ratelimit.Limiter, logger *log.Logger) *Server {
	s := &Server{
		reports: reports,
		auth:    authSvc,
		limiter: limiter,
		tracer:  trace.NewMiddleware(),
		logger:  logger.WithComponent(log.ComponentHTTP),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the handler for the whole API surface. The caller owns the
// http.Server and its shutdown.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(log.Middleware(s.logger))
	r.Use(s.tracer.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware(trace.ClientIP))
			}
			r.Post("/", s.handleLogin)
			r.Put("/", s.handleChangePassword)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/", s.handleCreateReport)
			r.Get("/", s.handleListReports)
			r.Delete("/", s.handleDeleteReport)
			r.Get("/check-duplicate", s.handleCheckDuplicate)
			r.Put("/{id}", s.handleUpdateReport)

			r.With(s.requireAdmin).Post("/override", s.handleGrantOverride)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.reports.Ready(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Readiness check failed", log.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
