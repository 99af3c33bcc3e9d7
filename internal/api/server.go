package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shohag/hookline/internal/config"
	"github.com/shohag/hookline/internal/delivery"
	"github.com/shohag/hookline/internal/dispatch"
	"github.com/shohag/hookline/internal/registry"
	"github.com/shohag/hookline/internal/storage"
)

type Server struct {
	cfg        config.ServerConfig
	store      storage.Storage
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	queue      *delivery.Queue
	testSender *delivery.Sender
	router     *chi.Mux
	log        zerolog.Logger
	http       *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Storage, reg *registry.Registry, disp *dispatch.Dispatcher, queue *delivery.Queue, testSender *delivery.Sender, log zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		registry:   reg,
		dispatcher: disp,
		queue:      queue,
		testSender: testSender,
		log:        log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	epHandler := NewEndpointHandler(s.registry, s.store, s.testSender)
	dlvHandler := NewDeliveryHandler(s.store, s.registry, s.queue)
	evtHandler := NewEventHandler(s.dispatcher)
	statsHandler := NewStatsHandler(s.store)

	// Health check is unscoped.
	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", evtHandler.Catalog)

		// Owner-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(UserMiddleware)

			// Event ingest from the surrounding system
			r.Post("/events", evtHandler.Ingest)

			// Endpoints
			r.Post("/endpoints", epHandler.Create)
			r.Get("/endpoints", epHandler.List)
			r.Get("/endpoints/{id}", epHandler.Get)
			r.Put("/endpoints/{id}", epHandler.Update)
			r.Delete("/endpoints/{id}", epHandler.Delete)
			r.Post("/endpoints/{id}/regenerate-secret", epHandler.RegenerateSecret)
			r.Post("/endpoints/{id}/test", epHandler.Test)
			r.Get("/endpoints/{id}/stats", epHandler.Stats)

			// Deliveries
			r.Get("/deliveries", dlvHandler.List)
			r.Get("/deliveries/{id}", dlvHandler.Get)
			r.Post("/deliveries/{id}/retry", dlvHandler.Retry)

			// Stats
			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
