package seed

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/ledger"
	"github.com/congo-pay/npp_sim/internal/logging"
	"github.com/congo-pay/npp_sim/internal/mandates"
)

func TestLoadDemoNetwork(t *testing.T) {
	ctx := context.Background()
	stores := Stores{
		Ledger:    ledger.NewInMemory(),
		Directory: directory.NewMemoryRepository(),
		Mandates:  mandates.NewMemoryRepository(),
	}
	if err := Load(ctx, stores, logging.Discard()); err != nil {
		t.Fatalf("load: %v", err)
	}

	balances, _ := stores.Ledger.Balances(ctx)
	if len(balances) != 4 {
		t.Fatalf("expected 4 participants, got %d", len(balances))
	}
	total := decimal.Zero
	for _, p := range balances {
		total = total.Add(p.Balance)
	}
	if !total.Equal(decimal.RequireFromString("190000000.00")) {
		t.Fatalf("unexpected total balance %s", total)
	}

	svc := directory.NewService(stores.Directory, logging.Discard())
	res, err := svc.ResolveAlias(ctx, directory.AliasPhone, "+61498765432")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Account.OwnerName != "Mike Wilson" || res.Account.Agent.BIC != "NATAAU33" {
		t.Fatalf("unexpected resolution %+v", res)
	}
	all, _ := svc.Aliases(ctx)
	if len(all) != 8 {
		t.Fatalf("expected 8 aliases, got %d", len(all))
	}

	ms, _ := stores.Mandates.List(ctx)
	if len(ms) != 2 {
		t.Fatalf("expected 2 mandates, got %d", len(ms))
	}
	states := map[mandates.State]int{}
	for _, m := range ms {
		states[m.State]++
	}
	if states[mandates.StateActive] != 1 || states[mandates.StatePending] != 1 {
		t.Fatalf("unexpected mandate states %v", states)
	}
}

func TestLoadIsRepeatable(t *testing.T) {
	ctx := context.Background()
	stores := Stores{
		Ledger:    ledger.NewInMemory(),
		Directory: directory.NewMemoryRepository(),
		Mandates:  mandates.NewMemoryRepository(),
	}
	if err := Load(ctx, stores, logging.Discard()); err != nil {
		t.Fatalf("first load: %v", err)
	}
	cba := Participants()[0]
	ledger.SeedBalance(stores.Ledger, cba.ID, decimal.RequireFromString("1.00"))

	if err := Load(ctx, stores, logging.Discard()); err != nil {
		t.Fatalf("second load: %v", err)
	}
	p, _ := stores.Ledger.Participant(ctx, cba.ID)
	if !p.Balance.Equal(decimal.RequireFromString("1.00")) {
		t.Fatalf("reseeding must keep existing balances, got %s", p.Balance)
	}
	ms, _ := stores.Mandates.List(ctx)
	if len(ms) != 2 {
		t.Fatalf("reseeding duplicated mandates: %d", len(ms))
	}
}
