package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel or subject status events are published on.
const DefaultChannel = "npp.payments.status"

// Relay forwards status events to a downstream system.
type Relay interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// LoggerRelay writes every event to the structured logger.
type LoggerRelay struct {
	logger *slog.Logger
}

// NewLoggerRelay constructs a relay that only logs.
func NewLoggerRelay(logger *slog.Logger) *LoggerRelay {
	return &LoggerRelay{logger: logger}
}

func (r *LoggerRelay) Name() string { return "logger" }

// Publish writes the event to the logger.
func (r *LoggerRelay) Publish(_ context.Context, ev Event) error {
	if r == nil || r.logger == nil {
		return nil
	}
	r.logger.Info("payment status",
		slog.String("payment_id", ev.PaymentID),
		slog.String("status", ev.State),
		slog.String("message", ev.Message),
		slog.Bool("final", ev.Final))
	return nil
}

// RedisRelay publishes events as JSON on a Redis pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

// NewRedisRelay constructs a Redis pub/sub relay. An empty channel uses DefaultChannel.
func NewRedisRelay(client *redis.Client, channel string) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{client: client, channel: channel, timeout: 2 * time.Second}
}

func (r *RedisRelay) Name() string { return "redis" }

// Publish sends the event to the channel.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Publisher is the subset of *nats.Conn used by NATSRelay.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSRelay publishes events as JSON to a NATS subject.
type NATSRelay struct {
	conn    Publisher
	subject string
}

// NewNATSRelay constructs a NATS relay. An empty subject uses DefaultChannel.
func NewNATSRelay(conn Publisher, subject string) *NATSRelay {
	if subject == "" {
		subject = DefaultChannel
	}
	return &NATSRelay{conn: conn, subject: subject}
}

func (r *NATSRelay) Name() string { return "nats" }

// Publish sends the event on the subject. Delivery is fire-and-forget.
func (r *NATSRelay) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.conn.Publish(r.subject, payload)
}
