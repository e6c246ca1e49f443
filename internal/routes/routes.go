package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/npp_sim/internal/config"
	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/ledger"
	"github.com/congo-pay/npp_sim/internal/mandates"
	"github.com/congo-pay/npp_sim/internal/messages"
	"github.com/congo-pay/npp_sim/internal/middleware"
	"github.com/congo-pay/npp_sim/internal/notification"
	"github.com/congo-pay/npp_sim/internal/payments"
	"github.com/congo-pay/npp_sim/internal/seed"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	NATS      *nats.Conn
	Scheduler payments.Scheduler
	Logger    *slog.Logger
}

type stores struct {
	ledger    ledger.Ledger
	directory directory.Repository
	payments  payments.Repository
	messages  messages.Repository
	mandates  mandates.Repository
}

// newStores picks Postgres backends when a pool is configured and in-memory ones otherwise.
func newStores(db *pgxpool.Pool) stores {
	if db != nil {
		return stores{
			ledger:    ledger.NewPostgresLedger(db),
			directory: directory.NewPostgresRepository(db),
			payments:  payments.NewPostgresRepository(db),
			messages:  messages.NewPostgresRepository(db),
			mandates:  mandates.NewPostgresRepository(db),
		}
	}
	return stores{
		ledger:    ledger.NewInMemory(),
		directory: directory.NewMemoryRepository(),
		payments:  payments.NewMemoryRepository(),
		messages:  messages.NewMemoryRepository(),
		mandates:  mandates.NewMemoryRepository(),
	}
}

func relays(d Deps) []notification.Relay {
	out := []notification.Relay{notification.NewLoggerRelay(d.Logger)}
	if d.Cache != nil {
		out = append(out, notification.NewRedisRelay(d.Cache, notification.DefaultChannel))
	}
	if d.NATS != nil {
		out = append(out, notification.NewNATSRelay(d.NATS, notification.DefaultChannel))
	}
	return out
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Backends
	st := newStores(d.DB)
	if d.Cfg.SeedDemoData {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := seed.Load(ctx, seed.Stores{Ledger: st.ledger, Directory: st.directory, Mandates: st.mandates}, d.Logger); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	// Services and handlers
	broadcaster := notification.NewBroadcaster(d.Logger,
		notification.WithIdleTimeout(d.Cfg.SubscriberIdleTimeout),
		notification.WithRelays(relays(d)...))
	synth := messages.NewSynthesizer(st.messages, d.Logger)
	directorySvc := directory.NewService(st.directory, d.Logger)
	sim := d.Cfg.Simulation
	paymentSvc := payments.NewService(payments.Deps{
		Repo:        st.payments,
		Directory:   directorySvc,
		Ledger:      st.ledger,
		Messages:    synth,
		Broadcaster: broadcaster,
		Scheduler:   d.Scheduler,
		Random:      payments.NewRandom(sim.RandomSeed),
		Simulation: payments.Simulation{
			ClearingDelay:     sim.ClearingDelay,
			SettlementDelay:   sim.SettlementDelay,
			ConfirmationDelay: sim.ConfirmationDelay,
			RejectionRate:     sim.RejectionRate,
		},
		Logger: d.Logger,
	})
	mandateSvc := mandates.NewService(st.mandates, directorySvc, paymentSvc, d.Logger)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	initiateLimit := middleware.RateLimit(d.Cache, "initiate", d.Cfg.InitiateRateLimit, d.Logger)
	RegisterPaymentRoutes(api, payments.NewHandler(paymentSvc), initiateLimit)
	RegisterSettlementRoutes(api, ledger.NewHandler(st.ledger))
	RegisterMessageRoutes(api, messages.NewHandler(synth))
	RegisterDirectoryRoutes(api, directory.NewHandler(directorySvc))
	RegisterMandateRoutes(api, mandates.NewHandler(mandateSvc))
	RegisterDashboardRoutes(api, paymentSvc, st.ledger)

	return nil
}
