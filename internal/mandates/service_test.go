package mandates

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/logging"
	"github.com/congo-pay/npp_sim/internal/payments"
)

var (
	energy = directory.Account{ID: "acc-energy", Routing: "062-000", Number: "99887766", OwnerName: "Green Energy Co",
		Agent: directory.Agent{ID: "cba", Name: "Commonwealth Bank of Australia", ShortName: "CBA", BIC: "CTBAAU2S"}}
	john = directory.Account{ID: "acc-john", Routing: "083-000", Number: "12345678", OwnerName: "John Smith",
		Agent: directory.Agent{ID: "nab", Name: "National Australia Bank", ShortName: "NAB", BIC: "NATAAU33"}}
)

type stubAccounts map[string]directory.Account

func (s stubAccounts) Lookup(_ context.Context, routing, number string) (directory.Account, error) {
	acc, ok := s[routing+"/"+number]
	if !ok {
		return directory.Account{}, directory.ErrNotFound
	}
	return acc, nil
}

type recordingPayer struct {
	inputs []payments.InitiateInput
	err    error
}

func (r *recordingPayer) Initiate(_ context.Context, in payments.InitiateInput) (payments.Payment, error) {
	r.inputs = append(r.inputs, in)
	if r.err != nil {
		return payments.Payment{}, r.err
	}
	return payments.Payment{ID: "pay-1", Amount: in.Amount, State: payments.StateInitiated, Remittance: in.Remittance}, nil
}

func newTestService() (*Service, *recordingPayer) {
	accounts := stubAccounts{
		energy.Routing + "/" + energy.Number: energy,
		john.Routing + "/" + john.Number:     john,
	}
	payer := &recordingPayer{}
	return NewService(NewMemoryRepository(), accounts, payer, logging.Discard()), payer
}

func electricity() CreateInput {
	return CreateInput{
		CreditorRouting: energy.Routing,
		CreditorNumber:  energy.Number,
		DebtorRouting:   john.Routing,
		DebtorNumber:    john.Number,
		Description:     "Monthly electricity bill",
		MaxAmount:       decimal.RequireFromString("500.00"),
		Frequency:       "monthly",
	}
}

func TestCreateMandateStartsPending(t *testing.T) {
	svc, _ := newTestService()
	m, err := svc.Create(context.Background(), electricity())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.State != StatePending || m.Frequency != "MONTHLY" {
		t.Fatalf("unexpected mandate %+v", m)
	}
	if !m.ValidTo.Equal(m.ValidFrom.AddDate(1, 0, 0)) {
		t.Fatalf("expected one year validity, got %s to %s", m.ValidFrom, m.ValidTo)
	}
	if m.Creditor.ID != energy.ID || m.Debtor.ID != john.ID {
		t.Fatalf("accounts not resolved: %+v", m)
	}
}

func TestCreateMandateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	in := electricity()
	in.MaxAmount = decimal.Zero
	if _, err := svc.Create(ctx, in); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for zero maximum, got %v", err)
	}
	in = electricity()
	in.Description = " "
	if _, err := svc.Create(ctx, in); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for blank description, got %v", err)
	}
	in = electricity()
	in.DebtorNumber = "00000000"
	if _, err := svc.Create(ctx, in); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown debtor, got %v", err)
	}
}

func TestApproveAndRejectOnlyFromPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, _ := svc.Create(ctx, electricity())
	approved, err := svc.Approve(ctx, first.ID)
	if err != nil || approved.State != StateActive {
		t.Fatalf("approve: %v %+v", err, approved)
	}
	if _, err := svc.Reject(ctx, first.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state rejecting an active mandate, got %v", err)
	}

	second, _ := svc.Create(ctx, electricity())
	rejected, err := svc.Reject(ctx, second.ID)
	if err != nil || rejected.State != StateRejected {
		t.Fatalf("reject: %v %+v", err, rejected)
	}
	if _, err := svc.Approve(ctx, second.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state approving a rejected mandate, got %v", err)
	}
	if _, err := svc.Approve(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	all, _ := svc.List(ctx)
	if len(all) != 2 || all[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}
}

func TestExecuteMandate(t *testing.T) {
	svc, payer := newTestService()
	ctx := context.Background()

	m, _ := svc.Create(ctx, electricity())
	if _, err := svc.Execute(ctx, m.ID, ExecuteInput{Amount: decimal.RequireFromString("100.00")}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for pending mandate, got %v", err)
	}
	if _, err := svc.Approve(ctx, m.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Execute(ctx, m.ID, ExecuteInput{Amount: decimal.RequireFromString("500.01")}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request above maximum, got %v", err)
	}

	p, err := svc.Execute(ctx, m.ID, ExecuteInput{Amount: decimal.RequireFromString("500.00")})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if p.State != payments.StateInitiated || len(payer.inputs) != 1 {
		t.Fatalf("expected one initiated payment, got %+v", p)
	}
	in := payer.inputs[0]
	if in.DebtorNumber != john.Number || in.CreditorNumber != energy.Number {
		t.Fatalf("payment must pull from debtor to creditor, got %+v", in)
	}
	if in.Remittance != "PayTo: Monthly electricity bill" {
		t.Fatalf("unexpected default remittance %q", in.Remittance)
	}

	if _, err := svc.Execute(ctx, m.ID, ExecuteInput{Amount: decimal.RequireFromString("20.00"), Remittance: "March"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if payer.inputs[1].Remittance != "March" {
		t.Fatalf("explicit remittance not kept: %q", payer.inputs[1].Remittance)
	}
}

func TestMandateHandlers(t *testing.T) {
	svc, payer := newTestService()
	h := NewHandler(svc)
	app := fiber.New()
	app.Post("/mandates", h.Create)
	app.Get("/mandates/:id", h.Get)
	app.Post("/mandates/:id/approve", h.Approve)
	app.Post("/mandates/:id/execute", h.Execute)

	post := func(path, body string) int {
		t.Helper()
		req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	status := post("/mandates", `{"creditor_bsb":"062-000","creditor_account_number":"99887766","debtor_bsb":"083-000",
        "debtor_account_number":"12345678","description":"Gym","maximum_amount":"120.00","frequency":"MONTHLY"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	all, _ := svc.List(context.Background())
	id := all[0].ID

	if status := post("/mandates/"+id+"/execute", `{"amount":"10.00"}`); status != fiber.StatusConflict {
		t.Fatalf("expected 409 for pending mandate, got %d", status)
	}
	if status := post("/mandates/"+id+"/approve", ""); status != fiber.StatusOK {
		t.Fatalf("expected 200 approving, got %d", status)
	}
	if status := post("/mandates/"+id+"/execute", `{"amount":"130.00"}`); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 above maximum, got %d", status)
	}

	payer.err = payments.ErrInvalidRequest
	if status := post("/mandates/"+id+"/execute", `{"amount":"-1.00"}`); status != fiber.StatusBadRequest {
		t.Fatalf("expected payment validation to surface as 400, got %d", status)
	}
	payer.err = nil
	if status := post("/mandates/"+id+"/execute", `{"amount":"10.00"}`); status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/mandates/missing", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
