package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance occurs when the debit participant lacks the settlement
	// balance to cover a requested transfer. Concrete failures are *InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient settlement balance")

	// ErrParticipantNotFound indicates a transfer referenced an unknown participant.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrInvalidAmount indicates a non-positive transfer amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrDuplicateEntry indicates the payment already has an entry of the requested kind.
	// The existing entry is returned alongside it and balances are left untouched.
	ErrDuplicateEntry = errors.New("ledger entry already recorded")
)

// EntryKind distinguishes forward settlements from reversals in the transfer history.
type EntryKind string

const (
	KindSettlement EntryKind = "SETTLEMENT"
	KindReversal   EntryKind = "REVERSAL"
)

// Participant is a member institution holding a settlement balance.
type Participant struct {
	ID        string
	Name      string
	ShortName string
	BIC       string
	Routing   string
	Balance   decimal.Decimal
}

// Entry is one immutable balance movement between two participants. Amount is always
// positive and moves funds from the debit participant to the credit participant; a
// reversal swaps the roles of the original entry and is tagged KindReversal.
type Entry struct {
	ID                  string
	PaymentID           string
	Kind                EntryKind
	Amount              decimal.Decimal
	DebitParticipantID  string
	CreditParticipantID string
	DebitBalanceAfter   decimal.Decimal
	CreditBalanceAfter  decimal.Decimal
	CreatedAt           time.Time
}

// InsufficientBalanceError reports the exact shortfall of a refused transfer.
type InsufficientBalanceError struct {
	ParticipantID string
	ShortName     string
	Available     decimal.Decimal
	Amount        decimal.Decimal
	Shortfall     decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient settlement balance for %s: available %s, required %s, shortfall %s",
		e.ShortName, e.Available.StringFixed(2), e.Amount.StringFixed(2), e.Shortfall.StringFixed(2))
}

// Is lets callers match the error with errors.Is(err, ErrInsufficientBalance).
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// Ledger defines the contract implemented by settlement backends (in-memory, Postgres).
// A payment holds at most one entry per kind, so Transfer and Reverse are idempotent per
// payment id.
type Ledger interface {
	EnsureParticipant(ctx context.Context, p Participant) error
	Participant(ctx context.Context, id string) (Participant, error)
	Transfer(ctx context.Context, paymentID, debitID, creditID string, amount decimal.Decimal) (Entry, error)
	Reverse(ctx context.Context, paymentID, originalDebitID, originalCreditID string, amount decimal.Decimal) (Entry, error)
	Balances(ctx context.Context) ([]Participant, error)
	Entries(ctx context.Context) ([]Entry, error)
}

func insufficient(p Participant, amount decimal.Decimal) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		ParticipantID: p.ID,
		ShortName:     p.ShortName,
		Available:     p.Balance,
		Amount:        amount,
		Shortfall:     amount.Sub(p.Balance),
	}
}
