package payments

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/messages"
)

var (
	// ErrNotFound indicates an unknown payment or an unresolvable account.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest indicates the initiation request is malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidState indicates the operation is not allowed in the payment's current state.
	ErrInvalidState = errors.New("invalid payment state")
	// ErrStateConflict is returned by Repository.Update when the stored state no longer
	// matches the expected one.
	ErrStateConflict = errors.New("payment state changed concurrently")
)

// DefaultCurrency is the settlement currency of the simulated scheme.
const DefaultCurrency = "AUD"

// RejectionReasons are the business reasons a payment can be rejected with at clearing.
var RejectionReasons = []string{
	"Account closed",
	"Invalid BSB",
	"Account frozen - regulatory hold",
	"Beneficiary name mismatch",
	"Transaction limit exceeded",
}

// State is a payment lifecycle state.
type State string

const (
	StateInitiated State = "INITIATED"
	StateClearing  State = "CLEARING"
	StateSettled   State = "SETTLED"
	StateConfirmed State = "CONFIRMED"
	StateRejected  State = "REJECTED"
	StateReturned  State = "RETURNED"
)

// States lists every state in pipeline order.
var States = []State{StateInitiated, StateClearing, StateSettled, StateConfirmed, StateRejected, StateReturned}

var transitions = map[State][]State{
	StateInitiated: {StateClearing},
	StateClearing:  {StateRejected, StateSettled},
	StateSettled:   {StateConfirmed, StateReturned},
	StateConfirmed: {StateReturned},
}

// CanTransition reports whether to directly follows s in the state machine.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Final reports whether the processing pipeline has finished for s. Live status streams
// end on a final state.
func (s State) Final() bool {
	return s == StateConfirmed || s.Terminal()
}

// Returnable reports whether a payment in s may be returned.
func (s State) Returnable() bool {
	return s.CanTransition(StateReturned)
}

// Payment is the lifecycle record of one credit transfer.
type Payment struct {
	ID              string
	CorrelationID   string
	EndToEndID      string
	Amount          decimal.Decimal
	Currency        string
	State           State
	RejectionReason string
	AliasUsed       string
	Debtor          directory.Account
	Creditor        directory.Account
	Remittance      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p Payment) subject() messages.Subject {
	return messages.Subject{
		PaymentID:     p.ID,
		InstructionID: p.CorrelationID,
		EndToEndID:    p.EndToEndID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		DebtorBIC:     p.Debtor.Agent.BIC,
		DebtorName:    p.Debtor.OwnerName,
		CreditorBIC:   p.Creditor.Agent.BIC,
		CreditorName:  p.Creditor.OwnerName,
		Remittance:    p.Remittance,
	}
}

// InitiateInput captures a payment request. The creditor is given either by alias or
// by routing code and account number.
type InitiateInput struct {
	Amount          decimal.Decimal
	DebtorRouting   string
	DebtorNumber    string
	AliasType       string
	AliasValue      string
	CreditorRouting string
	CreditorNumber  string
	Remittance      string
}

func (in InitiateInput) hasAlias() bool {
	return strings.TrimSpace(in.AliasType) != "" && strings.TrimSpace(in.AliasValue) != ""
}

func (in InitiateInput) hasCreditorAccount() bool {
	return strings.TrimSpace(in.CreditorRouting) != "" && strings.TrimSpace(in.CreditorNumber) != ""
}

func newEndToEndID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "E2E" + strings.ToUpper(raw[:10])
}
