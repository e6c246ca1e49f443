package ledger

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestSettlementHandlers(t *testing.T) {
	l := NewInMemory(
		Participant{ID: "a", Name: "Alpha Bank", ShortName: "ALP", BIC: "ALPHAU2S", Routing: "111-000", Balance: dec("100.00")},
		Participant{ID: "b", Name: "Beta Bank", ShortName: "BET", BIC: "BETAAU33", Routing: "222-000", Balance: dec("50.00")},
	)
	if _, err := l.Transfer(context.Background(), "pay-1", "a", "b", dec("25.50")); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	h := NewHandler(l)
	app := fiber.New()
	app.Get("/balances", h.Balances)
	app.Get("/transactions", h.Transactions)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/balances", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var balances []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&balances); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	if len(balances) != 2 || balances[0]["short_name"] != "ALP" || balances[0]["esa_balance"] != "74.50" || balances[1]["esa_balance"] != "75.50" {
		t.Fatalf("unexpected balances %v", balances)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/transactions", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var entries []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(entries) != 1 || entries[0]["amount"] != "25.50" || entries[0]["payment_id"] != "pay-1" {
		t.Fatalf("unexpected transactions %v", entries)
	}
	debit, _ := entries[0]["debit_participant"].(map[string]any)
	if debit["bic"] != "ALPHAU2S" {
		t.Fatalf("debit participant not resolved: %v", entries[0])
	}
}
