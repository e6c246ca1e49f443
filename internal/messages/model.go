package messages

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a stored message does not exist.
var ErrNotFound = errors.New("message not found")

// Type identifies the pacs message family of an artifact.
type Type string

const (
	TypeInstruction  Type = "pacs.008"
	TypeStatusReport Type = "pacs.002"
	TypeReturn       Type = "pacs.004"
)

// Namespace returns the ISO 20022 schema namespace for the message version we emit.
func (t Type) Namespace() string {
	switch t {
	case TypeInstruction:
		return "urn:iso:std:iso:20022:tech:xsd:pacs.008.001.08"
	case TypeStatusReport:
		return "urn:iso:std:iso:20022:tech:xsd:pacs.002.001.10"
	case TypeReturn:
		return "urn:iso:std:iso:20022:tech:xsd:pacs.004.001.09"
	default:
		return ""
	}
}

// Direction tells whether the artifact left or arrived at the debtor side.
type Direction string

const (
	Outbound Direction = "OUTBOUND"
	Inbound  Direction = "INBOUND"
)

const (
	statusAccepted = "ACCP"
	statusRejected = "RJCT"
)

// Message is one stored audit artifact.
type Message struct {
	ID          string
	Type        Type
	MessageID   string
	Direction   Direction
	SenderBIC   string
	ReceiverBIC string
	PaymentID   string
	Content     string
	Fallback    bool
	CreatedAt   time.Time
}

// Subject carries the payment data a message is rendered from.
type Subject struct {
	PaymentID string
	// InstructionID identifies the instruction on the wire; PaymentID is used when empty.
	InstructionID string
	EndToEndID    string
	Amount        decimal.Decimal
	Currency      string
	DebtorBIC     string
	DebtorName    string
	CreditorBIC   string
	CreditorName  string
	Remittance    string
}

func (s Subject) instructionID() string {
	if s.InstructionID != "" {
		return s.InstructionID
	}
	return s.PaymentID
}

// Document is the input handed to a Builder.
type Document struct {
	Type      Type
	MessageID string
	CreatedAt time.Time
	Subject   Subject
	// Accepted and Reason only apply to status reports; Reason also to returns.
	Accepted bool
	Reason   string
}

// Status returns the pacs.002 transaction status code.
func (d Document) Status() string {
	if d.Accepted {
		return statusAccepted
	}
	return statusRejected
}

func (d Document) currency() string {
	if d.Subject.Currency == "" {
		return "AUD"
	}
	return d.Subject.Currency
}

// NewMessageID returns "MSG" followed by 12 upper-case hex characters.
func NewMessageID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "MSG" + strings.ToUpper(raw[:12])
}
