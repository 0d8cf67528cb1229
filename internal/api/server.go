package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.uber.org/zap"
)

// Server binds the chi router to an http.Server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	http    *http.Server
}

// NewServer wires the middleware chain and every route. /metrics is only
// mounted when metrics is non-nil.
func NewServer(cfg domain.ServerConfig, handler *Handler, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	r := chi.NewRouter()
	r.Use(
		CORSMiddleware,
		RecoverMiddleware(logger),
		TracingMiddleware,
		LoggingMiddleware(logger),
		middleware.RealIP,
		middleware.Compress(5),
	)

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Ready)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/transactions", handler.ProcessTransaction)
		v1.Get("/transactions/{id}", handler.GetTransaction)
		v1.Get("/accounts/{accountId}/alerts", handler.ListAccountAlerts)
		v1.Get("/alerts/high-risk", handler.ListHighRiskAlerts)
		v1.Post("/alerts/{alertId}/resolve", handler.ResolveAlert)
		v1.Get("/rules", handler.ListRules)
	})

	return &Server{
		router:  r,
		handler: handler,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Start listens until Shutdown; it then returns http.ErrServerClosed.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the routes for in-process tests.
func (s *Server) Router() http.Handler {
	return s.router
}
