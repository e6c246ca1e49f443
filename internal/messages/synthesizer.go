package messages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/npp_sim/internal/logging"
)

// ReturnReasonOriginator is the reason recorded on returns requested by the payer.
const ReturnReasonOriginator = "Requested by originator"

// Synthesizer produces and stores the audit artifact for each payment transition. It
// never fails: builder faults switch to the fallback builder and storage faults are logged.
type Synthesizer struct {
	repo     Repository
	primary  Builder
	fallback Builder
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises a Synthesizer.
type Option func(*Synthesizer)

// WithBuilders replaces the primary and fallback builders.
func WithBuilders(primary, fallback Builder) Option {
	return func(s *Synthesizer) {
		if primary != nil {
			s.primary = primary
		}
		if fallback != nil {
			s.fallback = fallback
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// NewSynthesizer constructs a synthesizer backed by repo.
func NewSynthesizer(repo Repository, logger *slog.Logger, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		repo:     repo,
		primary:  XMLBuilder{},
		fallback: TemplateBuilder{},
		logger:   logging.Component(logger, "messages"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Instruction records the outbound pacs.008 credit transfer for subj.
func (s *Synthesizer) Instruction(ctx context.Context, subj Subject) Message {
	return s.produce(ctx, Document{Type: TypeInstruction, Subject: subj}, Outbound, subj.DebtorBIC, subj.CreditorBIC)
}

// StatusReport records the inbound pacs.002 status from the creditor side.
func (s *Synthesizer) StatusReport(ctx context.Context, subj Subject, accepted bool, reason string) Message {
	doc := Document{Type: TypeStatusReport, Subject: subj, Accepted: accepted, Reason: reason}
	return s.produce(ctx, doc, Inbound, subj.CreditorBIC, subj.DebtorBIC)
}

// Return records the outbound pacs.004 payment return sent by the creditor side.
func (s *Synthesizer) Return(ctx context.Context, subj Subject, reason string) Message {
	doc := Document{Type: TypeReturn, Subject: subj, Reason: reason}
	return s.produce(ctx, doc, Outbound, subj.CreditorBIC, subj.DebtorBIC)
}

func (s *Synthesizer) produce(ctx context.Context, doc Document, dir Direction, sender, receiver string) Message {
	doc.MessageID = NewMessageID()
	doc.CreatedAt = s.now()

	content, fallback := s.render(doc)
	msg := Message{
		ID:          uuid.NewString(),
		Type:        doc.Type,
		MessageID:   doc.MessageID,
		Direction:   dir,
		SenderBIC:   sender,
		ReceiverBIC: receiver,
		PaymentID:   doc.Subject.PaymentID,
		Content:     content,
		Fallback:    fallback,
		CreatedAt:   doc.CreatedAt,
	}

	if err := s.repo.Save(ctx, msg); err != nil {
		s.logger.Error("persist message failed",
			slog.String("payment_id", msg.PaymentID),
			slog.String("type", string(msg.Type)),
			slog.String("message_id", msg.MessageID),
			slog.Any("error", err))
		return msg
	}
	s.logger.Info("message built",
		slog.String("payment_id", msg.PaymentID),
		slog.String("type", string(msg.Type)),
		slog.String("message_id", msg.MessageID),
		slog.Bool("fallback", fallback))
	return msg
}

func (s *Synthesizer) render(doc Document) (string, bool) {
	content, err := safeBuild(s.primary, doc)
	if err == nil {
		return content, false
	}
	s.logger.Warn("structured build failed, using fallback",
		slog.String("payment_id", doc.Subject.PaymentID),
		slog.String("type", string(doc.Type)),
		slog.Any("error", err))

	content, err = safeBuild(s.fallback, doc)
	if err == nil {
		return content, true
	}
	s.logger.Error("fallback build failed", slog.String("payment_id", doc.Subject.PaymentID), slog.Any("error", err))
	return fmt.Sprintf("%s %s e2e=%s amount=%s", doc.Type, doc.MessageID, doc.Subject.EndToEndID, doc.Subject.Amount.StringFixed(2)), true
}

func safeBuild(b Builder, doc Document) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("builder panic: %v", r)
		}
	}()
	return b.Build(doc)
}

// List returns every stored message, most recent first.
func (s *Synthesizer) List(ctx context.Context) ([]Message, error) {
	return s.repo.List(ctx)
}

// Get returns a stored message by id.
func (s *Synthesizer) Get(ctx context.Context, id string) (Message, error) {
	return s.repo.Get(ctx, id)
}

// ListByPayment returns a payment's messages in the order they were produced.
func (s *Synthesizer) ListByPayment(ctx context.Context, paymentID string) ([]Message, error) {
	return s.repo.ListByPayment(ctx, paymentID)
}
