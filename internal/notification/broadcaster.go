package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/congo-pay/npp_sim/internal/logging"
)

const (
	// DefaultIdleTimeout bounds how long a subscription survives without a delivery.
	DefaultIdleTimeout = 60 * time.Second

	defaultBuffer = 16
)

// Event is one status update for a payment.
type Event struct {
	PaymentID string    `json:"payment_id"`
	State     string    `json:"status"`
	Message   string    `json:"message"`
	Final     bool      `json:"final"`
	At        time.Time `json:"at"`
}

// Broadcaster keeps the live subscribers of each payment and fans status events out
// to them and to the configured relays.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64

	idle   time.Duration
	buffer int
	relays []Relay
	logger *slog.Logger
}

// Option customises a Broadcaster.
type Option func(*Broadcaster)

// WithIdleTimeout overrides the idle lifetime of subscriptions.
func WithIdleTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.idle = d
		}
	}
}

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithRelays forwards every notified event to the given relays.
func WithRelays(relays ...Relay) Option {
	return func(b *Broadcaster) {
		for _, r := range relays {
			if r != nil {
				b.relays = append(b.relays, r)
			}
		}
	}
}

// NewBroadcaster constructs an empty subscriber registry.
func NewBroadcaster(logger *slog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:   make(map[string]map[uint64]*Subscription),
		idle:   DefaultIdleTimeout,
		buffer: defaultBuffer,
		logger: logging.Component(logger, "broadcaster"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers an observer for snapshot.PaymentID. The snapshot is always the
// first event delivered; a final snapshot closes the subscription right after it.
func (b *Broadcaster) Subscribe(snapshot Event) *Subscription {
	size := b.buffer
	if size < 1 {
		size = 1
	}
	sub := &Subscription{
		paymentID: snapshot.PaymentID,
		events:    make(chan Event, size),
		b:         b,
	}
	sub.events <- snapshot
	if snapshot.Final {
		sub.closed = true
		close(sub.events)
		return sub
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub.id = b.nextID
	perPayment, ok := b.subs[sub.paymentID]
	if !ok {
		perPayment = make(map[uint64]*Subscription)
		b.subs[sub.paymentID] = perPayment
	}
	perPayment[sub.id] = sub
	sub.timer = time.AfterFunc(b.idle, sub.Close)
	return sub
}

// Notify delivers ev to every current subscriber of ev.PaymentID without blocking. A
// subscriber that cannot take the event is dropped. Relay failures are logged only.
func (b *Broadcaster) Notify(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	for id, sub := range b.subs[ev.PaymentID] {
		select {
		case sub.events <- ev:
			if ev.Final {
				b.removeLocked(sub)
				continue
			}
			sub.timer.Reset(b.idle)
		default:
			b.logger.Debug("dropping slow subscriber",
				slog.String("payment_id", ev.PaymentID), slog.Uint64("subscriber", id))
			b.removeLocked(sub)
		}
	}
	b.mu.Unlock()

	for _, r := range b.relays {
		if err := r.Publish(ctx, ev); err != nil {
			b.logger.Warn("relay publish failed",
				slog.String("relay", r.Name()),
				slog.String("payment_id", ev.PaymentID),
				slog.Any("error", err))
		}
	}
}

// Subscribers reports how many observers are registered for a payment.
func (b *Broadcaster) Subscribers(paymentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[paymentID])
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Broadcaster) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	if sub.timer != nil {
		sub.timer.Stop()
	}
	if perPayment, ok := b.subs[sub.paymentID]; ok {
		delete(perPayment, sub.id)
		if len(perPayment) == 0 {
			delete(b.subs, sub.paymentID)
		}
	}
	close(sub.events)
}

// Subscription is a live feed of one payment's status events. The channel returned by
// Events is closed when the subscription ends.
type Subscription struct {
	id        uint64
	paymentID string
	events    chan Event
	timer     *time.Timer
	b         *Broadcaster

	// guarded by b.mu once registered
	closed bool
}

// PaymentID returns the payment being observed.
func (s *Subscription) PaymentID() string { return s.paymentID }

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.remove(s)
}
