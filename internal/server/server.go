package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/npp_sim/internal/config"
	"github.com/congo-pay/npp_sim/internal/payments"
	"github.com/congo-pay/npp_sim/internal/routes"
)

// Server wraps the Fiber application and the background payment pipelines.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	scheduler *payments.GoScheduler
	logger    *slog.Logger
}

// Backends are the optional external connections; nil fields fall back to in-memory
// implementations or disable the feature.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
	NATS  *nats.Conn
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, b Backends, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:     cfg.AppName,
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
		ReadTimeout: 30 * time.Second,
		// Event streams stay open until the payment finishes or the subscriber idles out.
		WriteTimeout: cfg.SubscriberIdleTimeout + 30*time.Second,
	})

	scheduler := payments.NewGoScheduler(logger)
	if err := routes.Setup(app, routes.Deps{
		Cfg:       cfg,
		DB:        b.DB,
		Cache:     b.Cache,
		NATS:      b.NATS,
		Scheduler: scheduler,
		Logger:    logger,
	}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, scheduler: scheduler, logger: logger}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, then cancels and drains in-flight payment pipelines.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.app.ShutdownWithContext(ctx)
	if httpErr != nil {
		s.logger.Warn("http shutdown", slog.Any("error", httpErr))
	}
	return errors.Join(httpErr, s.scheduler.Shutdown(ctx))
}
