package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parking-floor/internal/logging"
)

type Server struct {
	httpServer *http.Server
	handler    *Handler
}

// NewRouter wires the middleware chain and routes. A nil gatherer serves the
// default Prometheus registry on /metrics.
func NewRouter(handler *Handler, gatherer prometheus.Gatherer) http.Handler {
	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	r := chi.NewRouter()

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware(handler.serviceName, handler.telemetry))
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)

	r.Get("/health", handler.HealthCheck)
	r.Get("/metrics", metricsHandler.ServeHTTP)

	r.Route("/api/floor", func(r chi.Router) {
		r.Post("/", handler.CreateFloor)
		r.Get("/status", handler.GetStatus)
		r.Get("/spots", handler.GetSpots)
		r.Post("/park", handler.Park)
		r.Post("/leave", handler.Leave)

		r.Route("/drivers", func(r chi.Router) {
			r.Post("/", handler.RegisterDriver)
			r.Get("/", handler.ListDrivers)
			r.Get("/{driverID}", handler.GetDriver)
			r.Get("/{driverID}/spots", handler.GetDriverSpots)
			r.Post("/{driverID}/charge", handler.ChargeDriver)
		})
	})

	return r
}

func NewServer(port string, handler *Handler, gatherer prometheus.Gatherer) *Server {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(handler, gatherer),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
	}
}

func (s *Server) Start() error {
	logging.Info(context.Background()).Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info(ctx).Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://localhost%s", s.httpServer.Addr)
}
