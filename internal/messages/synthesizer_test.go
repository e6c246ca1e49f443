package messages

import (
	"context"
	"encoding/xml"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/npp_sim/internal/logging"
)

var messageIDPattern = regexp.MustCompile(`^MSG[0-9A-F]{12}$`)

func testSubject() Subject {
	return Subject{
		PaymentID:    "5b8f0c62-1f1c-4b52-9f0e-1c1b8e1f0a01",
		EndToEndID:   "E2E0A1B2C3D4E",
		Amount:       decimal.RequireFromString("1000.00"),
		Currency:     "AUD",
		DebtorBIC:    "CTBAAU2S",
		DebtorName:   "John Smith",
		CreditorBIC:  "NATAAU33",
		CreditorName: "Mike Wilson",
		Remittance:   "Invoice 42",
	}
}

func newTestSynthesizer(repo Repository, opts ...Option) *Synthesizer {
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return fixed })}, opts...)
	return NewSynthesizer(repo, logging.Discard(), opts...)
}

func TestInstructionBuildsStructuredPacs008(t *testing.T) {
	repo := NewMemoryRepository()
	s := newTestSynthesizer(repo)

	msg := s.Instruction(context.Background(), testSubject())

	if msg.Type != TypeInstruction || msg.Direction != Outbound {
		t.Fatalf("unexpected type/direction: %s %s", msg.Type, msg.Direction)
	}
	if msg.SenderBIC != "CTBAAU2S" || msg.ReceiverBIC != "NATAAU33" {
		t.Fatalf("unexpected routing: %s -> %s", msg.SenderBIC, msg.ReceiverBIC)
	}
	if msg.Fallback {
		t.Fatal("expected structured build")
	}
	if !messageIDPattern.MatchString(msg.MessageID) {
		t.Fatalf("malformed message id %q", msg.MessageID)
	}

	var decoded pacs008
	if err := xml.Unmarshal([]byte(msg.Content), &decoded); err != nil {
		t.Fatalf("content is not valid xml: %v", err)
	}
	tx := decoded.Transfer.Tx
	if tx.EndToEndID != "E2E0A1B2C3D4E" || tx.Amount.Value != "1000.00" || tx.Amount.Currency != "AUD" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.DebtorAgent.BIC != "CTBAAU2S" || tx.Creditor.Name != "Mike Wilson" {
		t.Fatalf("unexpected parties: %+v", tx)
	}
	if tx.Remittance == nil || tx.Remittance.Unstructured != "Invoice 42" {
		t.Fatalf("remittance missing: %+v", tx.Remittance)
	}
	if decoded.Transfer.Header.Settlement.Method != "CLRG" {
		t.Fatalf("unexpected settlement method %q", decoded.Transfer.Header.Settlement.Method)
	}

	stored, err := repo.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("message not stored: %v", err)
	}
	if stored.Content != msg.Content {
		t.Fatal("stored content differs")
	}
}

func TestStatusReportCarriesStatusAndReason(t *testing.T) {
	s := newTestSynthesizer(NewMemoryRepository())
	ctx := context.Background()

	rejected := s.StatusReport(ctx, testSubject(), false, "Account closed")
	if rejected.Direction != Inbound || rejected.SenderBIC != "NATAAU33" {
		t.Fatalf("status report should come from creditor side: %+v", rejected)
	}
	var doc pacs002
	if err := xml.Unmarshal([]byte(rejected.Content), &doc); err != nil {
		t.Fatalf("invalid xml: %v", err)
	}
	if doc.Report.Tx.Status != "RJCT" || doc.Report.Tx.Reason == nil || doc.Report.Tx.Reason.AdditionalInfo != "Account closed" {
		t.Fatalf("unexpected rejection report: %+v", doc.Report.Tx)
	}
	if doc.Report.Tx.OriginalEndToEndID != "E2E0A1B2C3D4E" {
		t.Fatalf("unexpected original e2e id %q", doc.Report.Tx.OriginalEndToEndID)
	}

	accepted := s.StatusReport(ctx, testSubject(), true, "ignored")
	if !strings.Contains(accepted.Content, "<TxSts>ACCP</TxSts>") {
		t.Fatalf("expected ACCP status:\n%s", accepted.Content)
	}
	if strings.Contains(accepted.Content, "StsRsnInf") {
		t.Fatal("accepted report must not carry a reason")
	}
}

func TestReturnBuildsPacs004(t *testing.T) {
	s := newTestSynthesizer(NewMemoryRepository())

	msg := s.Return(context.Background(), testSubject(), ReturnReasonOriginator)

	if msg.Type != TypeReturn || msg.Direction != Outbound || msg.SenderBIC != "NATAAU33" {
		t.Fatalf("unexpected return message: %+v", msg)
	}
	var doc pacs004
	if err := xml.Unmarshal([]byte(msg.Content), &doc); err != nil {
		t.Fatalf("invalid xml: %v", err)
	}
	if doc.Return.Tx.Returned.Value != "1000.00" {
		t.Fatalf("unexpected returned amount %q", doc.Return.Tx.Returned.Value)
	}
	if doc.Return.Tx.Reason == nil || doc.Return.Tx.Reason.AdditionalInfo != ReturnReasonOriginator {
		t.Fatalf("unexpected return reason %+v", doc.Return.Tx.Reason)
	}
}

func TestMissingFieldFallsBackToTemplate(t *testing.T) {
	s := newTestSynthesizer(NewMemoryRepository())
	subj := testSubject()
	subj.DebtorName = ""
	subj.Remittance = "R&D <costs>"

	msg := s.Instruction(context.Background(), subj)

	if !msg.Fallback {
		t.Fatal("expected fallback rendering")
	}
	if !strings.Contains(msg.Content, "<EndToEndId>E2E0A1B2C3D4E</EndToEndId>") {
		t.Fatalf("fallback lost required fields:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "R&amp;D &lt;costs&gt;") {
		t.Fatalf("fallback did not escape text:\n%s", msg.Content)
	}
	var anyDoc struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal([]byte(msg.Content), &anyDoc); err != nil {
		t.Fatalf("fallback is not well-formed: %v", err)
	}
}

func TestTemplateBuilderEscapesQuotesAndMarkup(t *testing.T) {
	subj := testSubject()
	subj.DebtorName = `O'Brien "Jack" & Sons`
	subj.Remittance = "<rent> 'March'"

	content, err := TemplateBuilder{}.Build(Document{
		Type:      TypeInstruction,
		MessageID: "MSG0123456789AB",
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Subject:   subj,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var doc struct {
		Debtor     string `xml:"FIToFICstmrCdtTrf>CdtTrfTxInf>Dbtr>Nm"`
		Remittance string `xml:"FIToFICstmrCdtTrf>CdtTrfTxInf>RmtInf>Ustrd"`
	}
	if err := xml.Unmarshal([]byte(content), &doc); err != nil {
		t.Fatalf("template output is not well-formed: %v\n%s", err, content)
	}
	if doc.Debtor != subj.DebtorName {
		t.Fatalf("expected debtor %q, got %q", subj.DebtorName, doc.Debtor)
	}
	if doc.Remittance != subj.Remittance {
		t.Fatalf("expected remittance %q, got %q", subj.Remittance, doc.Remittance)
	}
}

type panickingBuilder struct{}

func (panickingBuilder) Build(Document) (string, error) { panic("boom") }

type failingBuilder struct{}

func (failingBuilder) Build(Document) (string, error) { return "", errors.New("broken") }

func TestBuilderPanicIsRecovered(t *testing.T) {
	repo := NewMemoryRepository()
	s := newTestSynthesizer(repo, WithBuilders(panickingBuilder{}, nil))

	msg := s.StatusReport(context.Background(), testSubject(), false, "Invalid BSB")

	if !msg.Fallback || !strings.Contains(msg.Content, "<AddtlInf>Invalid BSB</AddtlInf>") {
		t.Fatalf("expected template rendering with reason:\n%s", msg.Content)
	}
	all, _ := repo.List(context.Background())
	if len(all) != 1 {
		t.Fatalf("artifact must be stored even after a builder fault, have %d", len(all))
	}
}

func TestBothBuildersFailingStillProducesArtifact(t *testing.T) {
	s := newTestSynthesizer(NewMemoryRepository(), WithBuilders(failingBuilder{}, panickingBuilder{}))

	msg := s.Return(context.Background(), testSubject(), ReturnReasonOriginator)

	if msg.Content == "" || !strings.Contains(msg.Content, "E2E0A1B2C3D4E") {
		t.Fatalf("expected minimal rendering, got %q", msg.Content)
	}
}

type brokenRepository struct{ MemoryRepository }

func (*brokenRepository) Save(context.Context, Message) error { return errors.New("db down") }

func TestPersistenceFailureIsNotSurfaced(t *testing.T) {
	s := newTestSynthesizer(&brokenRepository{})

	msg := s.Instruction(context.Background(), testSubject())
	if msg.ID == "" || msg.Content == "" {
		t.Fatalf("expected artifact despite storage failure: %+v", msg)
	}
}

func TestListOrdering(t *testing.T) {
	repo := NewMemoryRepository()
	s := newTestSynthesizer(repo)
	ctx := context.Background()

	other := testSubject()
	other.PaymentID = "other"
	first := s.Instruction(ctx, testSubject())
	s.Instruction(ctx, other)
	last := s.StatusReport(ctx, testSubject(), true, "")

	all, _ := s.List(ctx)
	if len(all) != 3 || all[0].ID != last.ID {
		t.Fatalf("expected newest first, got %d messages", len(all))
	}
	trail, _ := s.ListByPayment(ctx, testSubject().PaymentID)
	if len(trail) != 2 || trail[0].ID != first.ID || trail[1].ID != last.ID {
		t.Fatalf("unexpected payment trail: %+v", trail)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
