package mandates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/logging"
	"github.com/congo-pay/npp_sim/internal/payments"
)

// Accounts looks up the parties of a mandate.
type Accounts interface {
	Lookup(ctx context.Context, routing, number string) (directory.Account, error)
}

// Payer initiates the payments drawn under a mandate.
type Payer interface {
	Initiate(ctx context.Context, in payments.InitiateInput) (payments.Payment, error)
}

// Service manages mandate agreements and executes payments under them.
type Service struct {
	repo     Repository
	accounts Accounts
	payer    Payer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a mandate service.
func NewService(repo Repository, accounts Accounts, payer Payer, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		payer:    payer,
		logger:   logging.Component(logger, "mandates"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create records a PENDING mandate valid for one year from today.
func (s *Service) Create(ctx context.Context, in CreateInput) (Mandate, error) {
	if strings.TrimSpace(in.Description) == "" || strings.TrimSpace(in.Frequency) == "" {
		return Mandate{}, fmt.Errorf("%w: description and frequency are required", ErrInvalidRequest)
	}
	if in.MaxAmount.LessThan(minAmount) || !in.MaxAmount.Equal(in.MaxAmount.Round(2)) {
		return Mandate{}, fmt.Errorf("%w: maximum amount must be at least 0.01 with at most two decimals", ErrInvalidRequest)
	}

	creditor, err := s.lookup(ctx, "creditor", in.CreditorRouting, in.CreditorNumber)
	if err != nil {
		return Mandate{}, err
	}
	debtor, err := s.lookup(ctx, "debtor", in.DebtorRouting, in.DebtorNumber)
	if err != nil {
		return Mandate{}, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	m := Mandate{
		ID:          uuid.NewString(),
		Description: strings.TrimSpace(in.Description),
		MaxAmount:   in.MaxAmount,
		Frequency:   strings.ToUpper(strings.TrimSpace(in.Frequency)),
		State:       StatePending,
		ValidFrom:   today,
		ValidTo:     today.AddDate(validityYears, 0, 0),
		Creditor:    creditor,
		Debtor:      debtor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return Mandate{}, fmt.Errorf("create mandate: %w", err)
	}
	s.logger.Info("mandate created",
		slog.String("mandate_id", m.ID),
		slog.String("creditor", creditor.OwnerName),
		slog.String("debtor", debtor.OwnerName))
	return m, nil
}

func (s *Service) lookup(ctx context.Context, role, routing, number string) (directory.Account, error) {
	if strings.TrimSpace(routing) == "" || strings.TrimSpace(number) == "" {
		return directory.Account{}, fmt.Errorf("%w: %s routing code and account number are required", ErrInvalidRequest, role)
	}
	acc, err := s.accounts.Lookup(ctx, routing, number)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Account{}, fmt.Errorf("%w: %s account %s %s", ErrNotFound, role, routing, number)
		}
		return directory.Account{}, fmt.Errorf("lookup %s account: %w", role, err)
	}
	return acc, nil
}

// Approve activates a PENDING mandate.
func (s *Service) Approve(ctx context.Context, id string) (Mandate, error) {
	return s.decide(ctx, id, StateActive)
}

// Reject declines a PENDING mandate.
func (s *Service) Reject(ctx context.Context, id string) (Mandate, error) {
	return s.decide(ctx, id, StateRejected)
}

func (s *Service) decide(ctx context.Context, id string, to State) (Mandate, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return Mandate{}, err
	}
	if m.State != StatePending {
		return Mandate{}, fmt.Errorf("%w: only PENDING mandates can move to %s, current status %s", ErrInvalidState, to, m.State)
	}
	m.State = to
	m.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, m, StatePending); err != nil {
		return Mandate{}, fmt.Errorf("update mandate %s: %w", id, err)
	}
	s.logger.Info("mandate decided", slog.String("mandate_id", m.ID), slog.String("state", string(to)))
	return m, nil
}

// Execute initiates a payment from the debtor to the creditor of an ACTIVE mandate.
func (s *Service) Execute(ctx context.Context, id string, in ExecuteInput) (payments.Payment, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return payments.Payment{}, err
	}
	if m.State != StateActive {
		return payments.Payment{}, fmt.Errorf("%w: mandate must be ACTIVE to execute payments, current status %s", ErrInvalidState, m.State)
	}
	if in.Amount.GreaterThan(m.MaxAmount) {
		return payments.Payment{}, fmt.Errorf("%w: amount %s exceeds mandate maximum of %s",
			ErrInvalidRequest, in.Amount.StringFixed(2), m.MaxAmount.StringFixed(2))
	}

	remittance := strings.TrimSpace(in.Remittance)
	if remittance == "" {
		remittance = "PayTo: " + m.Description
	}
	s.logger.Info("executing mandate", slog.String("mandate_id", m.ID), slog.String("amount", in.Amount.StringFixed(2)))
	return s.payer.Initiate(ctx, payments.InitiateInput{
		Amount:          in.Amount,
		DebtorRouting:   m.Debtor.Routing,
		DebtorNumber:    m.Debtor.Number,
		CreditorRouting: m.Creditor.Routing,
		CreditorNumber:  m.Creditor.Number,
		Remittance:      remittance,
	})
}

// Get returns one mandate.
func (s *Service) Get(ctx context.Context, id string) (Mandate, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Mandate{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Mandate{}, err
	}
	return m, nil
}

// List returns every mandate, newest first.
func (s *Service) List(ctx context.Context) ([]Mandate, error) {
	return s.repo.List(ctx)
}
