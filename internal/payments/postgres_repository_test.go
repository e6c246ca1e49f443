package payments

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/infra"
	"github.com/congo-pay/npp_sim/internal/ledger"
)

// postgresPayment stores one INITIATED payment between two fresh accounts in the
// database named by NPP_TEST_DATABASE_URL.
func postgresPayment(t *testing.T) (*PostgresRepository, Payment) {
	t.Helper()
	url := os.Getenv("NPP_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("NPP_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := infra.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	agent := directory.Agent{ID: "agent-" + tag, Name: "Test Bank " + tag, ShortName: "TB", BIC: tag}
	if err := ledger.NewPostgresLedger(pool).EnsureParticipant(ctx, ledger.Participant{
		ID: agent.ID, Name: agent.Name, ShortName: agent.ShortName, BIC: agent.BIC,
		Routing: tag[:3] + "-" + tag[3:6], Balance: dec("1000.00"),
	}); err != nil {
		t.Fatalf("ensure participant: %v", err)
	}
	dir := directory.NewPostgresRepository(pool)
	debtor := directory.Account{ID: "debtor-" + tag, Routing: tag[:3] + "-" + tag[3:6], Number: "11111111", OwnerName: "Debtor", Agent: agent}
	creditor := directory.Account{ID: "creditor-" + tag, Routing: tag[:3] + "-" + tag[3:6], Number: "22222222", OwnerName: "Creditor", Agent: agent}
	for _, acc := range []directory.Account{debtor, creditor} {
		if err := dir.SaveAccount(ctx, acc); err != nil {
			t.Fatalf("save account: %v", err)
		}
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := Payment{
		ID:            uuid.NewString(),
		CorrelationID: uuid.NewString(),
		EndToEndID:    newEndToEndID(),
		Amount:        dec("25.00"),
		Currency:      DefaultCurrency,
		State:         StateInitiated,
		Debtor:        debtor,
		Creditor:      creditor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	repo := NewPostgresRepository(pool)
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM payments WHERE id = $1`, p.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM accounts WHERE participant_id = $1`, agent.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM participants WHERE id = $1`, agent.ID)
	})
	return repo, p
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	repo, p := postgresPayment(t)

	got, err := repo.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateInitiated || !got.Amount.Equal(p.Amount) {
		t.Fatalf("unexpected payment %+v", got)
	}
	if got.Debtor.Agent.BIC != p.Debtor.Agent.BIC || got.Creditor.OwnerName != "Creditor" {
		t.Fatalf("account snapshot not joined: %+v", got)
	}
	if _, err := repo.Get(context.Background(), "missing-"+p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresRepositoryUpdateIsCompareAndSet(t *testing.T) {
	repo, p := postgresPayment(t)
	ctx := context.Background()

	next := p
	next.State = StateSettled
	if err := repo.Update(ctx, next, StateClearing); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	next.State = StateClearing
	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Update(ctx, next, StateInitiated)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrStateConflict) {
				t.Errorf("unexpected update error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winning update, got %d", wins)
	}

	missing := next
	missing.ID = "missing-" + p.ID
	if err := repo.Update(ctx, missing, StateInitiated); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
