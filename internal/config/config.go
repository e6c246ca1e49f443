package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName               string        `env:"APP_NAME" envDefault:"NPPSim"`
	AppEnv                string        `env:"APP_ENV" envDefault:"development"`
	Port                  string        `env:"PORT" envDefault:"8080"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL           string        `env:"DATABASE_URL"`
	RedisURL              string        `env:"REDIS_URL"`
	NATSURL               string        `env:"NATS_URL"`
	ShutdownPeriod        time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL        time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	SubscriberIdleTimeout time.Duration `env:"SUBSCRIBER_IDLE_TIMEOUT" envDefault:"60s"`
	InitiateRateLimit     int           `env:"INITIATE_RATE_LIMIT" envDefault:"60"`
	SeedDemoData          bool          `env:"SEED_DEMO_DATA" envDefault:"true"`
	Simulation            Simulation    `envPrefix:"NPP_"`
}

// Simulation holds the knobs that shape the simulated network behaviour.
type Simulation struct {
	ClearingDelay     time.Duration `env:"CLEARING_DELAY" envDefault:"500ms"`
	SettlementDelay   time.Duration `env:"SETTLEMENT_DELAY" envDefault:"800ms"`
	ConfirmationDelay time.Duration `env:"CONFIRMATION_DELAY" envDefault:"200ms"`
	RejectionRate     float64       `env:"REJECTION_RATE" envDefault:"0.10"`
	// RandomSeed of zero means a time-derived seed.
	RandomSeed uint64 `env:"RANDOM_SEED"`
}

// Load reads configuration values from the process environment.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from the supplied key/value pairs instead of the process
// environment. Useful for tests.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	sim := c.Simulation
	if sim.ClearingDelay < 0 || sim.SettlementDelay < 0 || sim.ConfirmationDelay < 0 {
		return fmt.Errorf("simulation delays must not be negative")
	}
	if sim.RejectionRate < 0 || sim.RejectionRate > 1 {
		return fmt.Errorf("invalid NPP_REJECTION_RATE %v: must be within [0, 1]", sim.RejectionRate)
	}
	if c.SubscriberIdleTimeout <= 0 {
		return fmt.Errorf("SUBSCRIBER_IDLE_TIMEOUT must be positive")
	}

	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
	}
	return nil
}

// IsDev reports whether the service runs in a local/development environment where
// in-memory backends are acceptable.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
