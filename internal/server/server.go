package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/25x8/playvested/internal/config"
	"github.com/25x8/playvested/internal/handlers"
	"github.com/25x8/playvested/internal/middleware"
	"github.com/25x8/playvested/internal/repository"
)

// Server is the local PlayVested ledger used for development and tests.
type Server struct {
	cfg        *config.Config
	repo       repository.Repository
	httpServer *http.Server
	handlers   *handlers.Handler
	registry   *prometheus.Registry
	logger     *slog.Logger
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ledgerd")

	var repo repository.Repository
	if cfg.DatabaseURI != "" {
		repo = repository.NewPostgresRepository()
	} else {
		repo = repository.NewMemoryRepository()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		cfg:      cfg,
		repo:     repo,
		handlers: handlers.NewHandler(repo, logger),
		registry: registry,
		logger:   logger,
	}
}

// Router builds the ledger routes. It does not touch the repository, so the
// caller must have initialised it.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RPS:   s.cfg.RateLimit,
			Burst: s.cfg.RateBurst,
		}))

		r.Route("/players", func(r chi.Router) {
			r.Post("/", s.handlers.CreatePlayer)
			r.Get("/{playerID}/is-linked", s.handlers.IsLinked)
			r.Post("/link/game/{gameID}", s.handlers.LinkGame)
			r.Post("/link/{playerID}", s.handlers.LinkPlayer)
		})

		r.Route("/records", func(r chi.Router) {
			r.Post("/", s.handlers.RecordEarning)
			r.Get("/total", s.handlers.Totals)
		})
	})

	return r
}

func (s *Server) Run() error {
	if err := s.repo.InitDB(s.cfg.DatabaseURI); err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.RunAddress,
		Handler: s.Router(),
	}
	s.logger.Info("ledger listening", "addr", s.cfg.RunAddress, "persistent", s.cfg.DatabaseURI != "")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}

	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			return err
		}
	}

	return nil
}
