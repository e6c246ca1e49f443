package mandates

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/npp_sim/internal/directory"
)

var (
	// ErrNotFound indicates an unknown mandate or account.
	ErrNotFound = errors.New("mandate not found")
	// ErrInvalidRequest indicates malformed mandate or execution input.
	ErrInvalidRequest = errors.New("invalid mandate request")
	// ErrInvalidState indicates the operation is not allowed in the mandate's current state.
	ErrInvalidState = errors.New("invalid mandate state")
)

// State is the lifecycle state of a mandate.
type State string

const (
	StatePending  State = "PENDING"
	StateActive   State = "ACTIVE"
	StateRejected State = "REJECTED"
)

const validityYears = 1

var minAmount = decimal.New(1, -2)

// Mandate is a standing agreement letting the creditor pull funds from the debtor up to
// MaxAmount per payment.
type Mandate struct {
	ID          string
	Description string
	MaxAmount   decimal.Decimal
	Frequency   string
	State       State
	ValidFrom   time.Time
	ValidTo     time.Time
	Creditor    directory.Account
	Debtor      directory.Account
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput describes a new mandate.
type CreateInput struct {
	CreditorRouting string
	CreditorNumber  string
	DebtorRouting   string
	DebtorNumber    string
	Description     string
	MaxAmount       decimal.Decimal
	Frequency       string
}

// ExecuteInput describes one payment drawn under a mandate.
type ExecuteInput struct {
	Amount     decimal.Decimal
	Remittance string
}
