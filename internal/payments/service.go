package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/ledger"
	"github.com/congo-pay/npp_sim/internal/logging"
	"github.com/congo-pay/npp_sim/internal/messages"
	"github.com/congo-pay/npp_sim/internal/notification"
)

// Directory resolves debtor and creditor accounts.
type Directory interface {
	ResolveAlias(ctx context.Context, t directory.AliasType, value string) (directory.Resolution, error)
	Lookup(ctx context.Context, routing, number string) (directory.Account, error)
}

// Deps are the collaborators of the payment service. Scheduler, Sleeper and Random
// default to the production implementations when nil.
type Deps struct {
	Repo        Repository
	Directory   Directory
	Ledger      ledger.Ledger
	Messages    *messages.Synthesizer
	Broadcaster *notification.Broadcaster
	Scheduler   Scheduler
	Sleeper     Sleeper
	Random      Random
	Simulation  Simulation
	Logger      *slog.Logger
}

// Service drives payments through clearing, settlement and confirmation.
type Service struct {
	repo        Repository
	dir         Directory
	ledger      ledger.Ledger
	synth       *messages.Synthesizer
	broadcaster *notification.Broadcaster
	scheduler   Scheduler
	sleeper     Sleeper
	rand        Random
	sim         Simulation
	locks       *keyedMutex
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a payment service.
func NewService(d Deps) *Service {
	logger := logging.Component(d.Logger, "payments")
	s := &Service{
		repo:        d.Repo,
		dir:         d.Directory,
		ledger:      d.Ledger,
		synth:       d.Messages,
		broadcaster: d.Broadcaster,
		scheduler:   d.Scheduler,
		sleeper:     d.Sleeper,
		rand:        d.Random,
		sim:         d.Simulation,
		locks:       newKeyedMutex(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.scheduler == nil {
		s.scheduler = NewGoScheduler(d.Logger)
	}
	if s.sleeper == nil {
		s.sleeper = TimerSleeper{}
	}
	if s.rand == nil {
		s.rand = NewRandom(0)
	}
	if s.broadcaster == nil {
		s.broadcaster = notification.NewBroadcaster(d.Logger)
	}
	return s
}

// Initiate validates and records a new payment, emits its instruction and schedules
// processing. The returned payment is in INITIATED.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (Payment, error) {
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Round(2)) {
		return Payment{}, fmt.Errorf("%w: amount must be positive with at most two decimals", ErrInvalidRequest)
	}
	if strings.TrimSpace(in.DebtorRouting) == "" || strings.TrimSpace(in.DebtorNumber) == "" {
		return Payment{}, fmt.Errorf("%w: debtor routing code and account number are required", ErrInvalidRequest)
	}

	debtor, err := s.dir.Lookup(ctx, in.DebtorRouting, in.DebtorNumber)
	if err != nil {
		return Payment{}, directoryError("debtor account", err)
	}
	creditor, aliasUsed, err := s.resolveCreditor(ctx, in)
	if err != nil {
		return Payment{}, err
	}
	if debtor.ID == creditor.ID {
		return Payment{}, fmt.Errorf("%w: cannot send payment to the same account", ErrInvalidRequest)
	}

	now := s.now()
	p := Payment{
		ID:            uuid.NewString(),
		CorrelationID: uuid.NewString(),
		EndToEndID:    newEndToEndID(),
		Amount:        in.Amount,
		Currency:      DefaultCurrency,
		State:         StateInitiated,
		AliasUsed:     aliasUsed,
		Debtor:        debtor,
		Creditor:      creditor,
		Remittance:    strings.TrimSpace(in.Remittance),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Payment{}, fmt.Errorf("create payment: %w", err)
	}
	s.synth.Instruction(ctx, p.subject())
	s.logger.Info("payment initiated",
		slog.String("payment_id", p.ID),
		slog.String("amount", p.Amount.StringFixed(2)),
		slog.String("debtor", debtor.OwnerName),
		slog.String("creditor", creditor.OwnerName))

	id := p.ID
	s.scheduler.Schedule("process payment "+id, func(ctx context.Context) error {
		return s.Process(ctx, id)
	})
	return p, nil
}

func (s *Service) resolveCreditor(ctx context.Context, in InitiateInput) (directory.Account, string, error) {
	switch {
	case in.hasAlias():
		t, err := directory.ParseAliasType(in.AliasType)
		if err != nil {
			return directory.Account{}, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		res, err := s.dir.ResolveAlias(ctx, t, in.AliasValue)
		if err != nil {
			return directory.Account{}, "", directoryError("PayID", err)
		}
		return res.Account, res.Alias.String(), nil
	case in.hasCreditorAccount():
		acc, err := s.dir.Lookup(ctx, in.CreditorRouting, in.CreditorNumber)
		if err != nil {
			return directory.Account{}, "", directoryError("creditor account", err)
		}
		return acc, "", nil
	default:
		return directory.Account{}, "", fmt.Errorf("%w: must provide either a PayID or creditor routing code and account number", ErrInvalidRequest)
	}
}

func directoryError(what string, err error) error {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return fmt.Errorf("%w: %s: %v", ErrNotFound, what, err)
	case errors.Is(err, directory.ErrInvalidAlias):
		return fmt.Errorf("%w: %s: %v", ErrInvalidRequest, what, err)
	default:
		return fmt.Errorf("resolve %s: %w", what, err)
	}
}

// outcome describes one state transition decided under the payment lock.
type outcome struct {
	to      State
	reason  string
	message string
	// artifact records the audit message once the new state is persisted.
	artifact func(ctx context.Context, p Payment)
	// committed marks outcomes whose ledger movement is already durable. Their state
	// write ignores the caller's cancellation and is retried.
	committed bool
}

// persistAttempts bounds the state writes of a committed outcome.
const persistAttempts = 3

// Process runs the clearing, settlement and confirmation pipeline of one payment. It
// stops silently when the payment disappears or has been moved on by another operation.
func (s *Service) Process(ctx context.Context, id string) error {
	if err := s.sleeper.Sleep(ctx, s.sim.ClearingDelay); err != nil {
		return err
	}
	_, ok, err := s.transition(ctx, id, StateInitiated, func(context.Context, Payment) (outcome, error) {
		return outcome{to: StateClearing, message: "Payment entered clearing"}, nil
	})
	if err != nil || !ok {
		return err
	}

	if s.rand.Float64() < s.sim.RejectionRate {
		reason := RejectionReasons[s.rand.IntN(len(RejectionReasons))]
		_, _, err := s.transition(ctx, id, StateClearing, func(context.Context, Payment) (outcome, error) {
			return s.rejection(reason, reason), nil
		})
		return err
	}

	if err := s.sleeper.Sleep(ctx, s.sim.SettlementDelay); err != nil {
		return err
	}
	p, ok, err := s.transition(ctx, id, StateClearing, s.settle)
	if err != nil || !ok || p.State != StateSettled {
		return err
	}

	if err := s.sleeper.Sleep(ctx, s.sim.ConfirmationDelay); err != nil {
		return err
	}
	_, _, err = s.transition(ctx, id, StateSettled, func(context.Context, Payment) (outcome, error) {
		return outcome{
			to:      StateConfirmed,
			message: "Payment confirmed by creditor agent",
			artifact: func(ctx context.Context, p Payment) {
				s.synth.StatusReport(ctx, p.subject(), true, "")
			},
		}, nil
	})
	return err
}

func (s *Service) settle(ctx context.Context, p Payment) (outcome, error) {
	_, err := s.ledger.Transfer(ctx, p.ID, p.Debtor.Agent.ID, p.Creditor.Agent.ID, p.Amount)
	if errors.Is(err, ledger.ErrDuplicateEntry) {
		s.logger.Info("settlement already recorded", slog.String("payment_id", p.ID))
		err = nil
	}
	if err == nil {
		return outcome{to: StateSettled, message: "Settlement complete", committed: true}, nil
	}
	var insufficient *ledger.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		reason := fmt.Sprintf("Insufficient settlement balance: %s short by %s",
			insufficient.ShortName, insufficient.Shortfall.StringFixed(2))
		return s.rejection(reason, reason), nil
	}
	return outcome{}, fmt.Errorf("settle payment %s: %w", p.ID, err)
}

func (s *Service) rejection(reason, message string) outcome {
	return outcome{
		to:      StateRejected,
		reason:  reason,
		message: message,
		artifact: func(ctx context.Context, p Payment) {
			s.synth.StatusReport(ctx, p.subject(), false, reason)
		},
	}
}

// transition re-reads the payment under its lock and, when it is still in from, applies
// the decided outcome. ok is false when the payment vanished or moved on.
func (s *Service) transition(ctx context.Context, id string, from State, decide func(context.Context, Payment) (outcome, error)) (Payment, bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("payment vanished, stopping pipeline", slog.String("payment_id", id))
			return Payment{}, false, nil
		}
		return Payment{}, false, err
	}
	if p.State != from {
		s.logger.Info("payment moved on, stopping pipeline",
			slog.String("payment_id", id), slog.String("expected", string(from)), slog.String("state", string(p.State)))
		return p, false, nil
	}

	out, err := decide(ctx, p)
	if err != nil {
		return p, false, err
	}
	p, err = s.apply(ctx, p, out)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStateConflict) {
			return p, false, nil
		}
		return p, false, err
	}
	return p, true, nil
}

// apply persists the outcome, records its artifact and notifies observers. Callers hold
// the payment lock.
func (s *Service) apply(ctx context.Context, p Payment, out outcome) (Payment, error) {
	from := p.State
	if !from.CanTransition(out.to) {
		return p, fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, out.to)
	}
	p.State = out.to
	if out.reason != "" {
		p.RejectionReason = out.reason
	}
	p.UpdatedAt = s.now()
	if out.committed {
		ctx = context.WithoutCancel(ctx)
	}
	if err := s.persist(ctx, p, from, out.committed); err != nil {
		s.logger.Warn("payment update failed",
			slog.String("payment_id", p.ID), slog.String("from", string(from)), slog.String("to", string(out.to)), slog.Any("error", err))
		return p, err
	}
	if out.artifact != nil {
		out.artifact(ctx, p)
	}
	s.broadcaster.Notify(ctx, notification.Event{
		PaymentID: p.ID,
		State:     string(p.State),
		Message:   out.message,
		Final:     p.State.Final(),
		At:        p.UpdatedAt,
	})
	s.logger.Info("payment transition",
		slog.String("payment_id", p.ID), slog.String("from", string(from)), slog.String("to", string(p.State)))
	return p, nil
}

func (s *Service) persist(ctx context.Context, p Payment, from State, committed bool) error {
	if !committed {
		return s.repo.Update(ctx, p, from)
	}
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = s.repo.Update(ctx, p, from); err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStateConflict) {
			return err
		}
		s.logger.Warn("retrying payment update after ledger commit",
			slog.String("payment_id", p.ID), slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return err
}

// Return reverses the settlement of a SETTLED or CONFIRMED payment.
func (s *Service) Return(ctx context.Context, id string) (Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Payment{}, fmt.Errorf("%w: payment %s", ErrNotFound, id)
		}
		return Payment{}, err
	}
	if !p.State.Returnable() {
		return Payment{}, fmt.Errorf("%w: can only return SETTLED or CONFIRMED payments, current status %s", ErrInvalidState, p.State)
	}

	// A recorded reversal means an earlier return moved the funds but failed to persist
	// RETURNED; only the state write is left.
	_, err = s.ledger.Reverse(ctx, p.ID, p.Debtor.Agent.ID, p.Creditor.Agent.ID, p.Amount)
	if errors.Is(err, ledger.ErrDuplicateEntry) {
		s.logger.Info("reversal already recorded, completing return", slog.String("payment_id", p.ID))
	} else if err != nil {
		return Payment{}, fmt.Errorf("reverse settlement: %w", err)
	}
	return s.apply(ctx, p, outcome{
		to:        StateReturned,
		committed: true,
		message:   messages.ReturnReasonOriginator,
		artifact: func(ctx context.Context, p Payment) {
			s.synth.Return(ctx, p.subject(), messages.ReturnReasonOriginator)
		},
	})
}

// Subscribe registers a live observer of the payment. The first event is a snapshot of
// the stored state.
func (s *Service) Subscribe(ctx context.Context, id string) (*notification.Subscription, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: payment %s", ErrNotFound, id)
		}
		return nil, err
	}
	return s.broadcaster.Subscribe(notification.Event{
		PaymentID: p.ID,
		State:     string(p.State),
		Message:   "Current status",
		Final:     p.State.Final(),
		At:        s.now(),
	}), nil
}

// Get returns one payment.
func (s *Service) Get(ctx context.Context, id string) (Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Payment{}, fmt.Errorf("%w: payment %s", ErrNotFound, id)
		}
		return Payment{}, err
	}
	return p, nil
}

// List returns every payment, newest first.
func (s *Service) List(ctx context.Context) ([]Payment, error) {
	return s.repo.List(ctx)
}

// CountByState returns how many payments sit in each state.
func (s *Service) CountByState(ctx context.Context) (map[State]int, error) {
	return s.repo.CountByState(ctx)
}
