package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// inMemoryLedger serialises every balance mutation behind one mutex; the participant set
// is small so a global critical section is sufficient.
type inMemoryLedger struct {
	mu           sync.RWMutex
	participants map[string]Participant
	entries      []Entry
	recorded     map[string]Entry
	now          func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger seeded with the given participants.
func NewInMemory(participants ...Participant) Ledger {
	l := &inMemoryLedger{
		participants: make(map[string]Participant, len(participants)),
		recorded:     make(map[string]Entry),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, p := range participants {
		l.participants[p.ID] = p
	}
	return l
}

func (l *inMemoryLedger) EnsureParticipant(_ context.Context, p Participant) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.participants[p.ID]; !exists {
		l.participants[p.ID] = p
	}
	return nil
}

func (l *inMemoryLedger) Participant(_ context.Context, id string) (Participant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.participants[id]
	if !ok {
		return Participant{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	return p, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, paymentID, debitID, creditID string, amount decimal.Decimal) (Entry, error) {
	return l.move(KindSettlement, paymentID, debitID, creditID, amount)
}

func (l *inMemoryLedger) Reverse(_ context.Context, paymentID, originalDebitID, originalCreditID string, amount decimal.Decimal) (Entry, error) {
	return l.move(KindReversal, paymentID, originalCreditID, originalDebitID, amount)
}

func (l *inMemoryLedger) move(kind EntryKind, paymentID, debitID, creditID string, amount decimal.Decimal) (Entry, error) {
	if !amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := string(kind) + ":" + paymentID
	if existing, exists := l.recorded[key]; exists {
		return existing, ErrDuplicateEntry
	}

	debit, ok := l.participants[debitID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, debitID)
	}
	if _, ok := l.participants[creditID]; !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, creditID)
	}

	if debit.Balance.LessThan(amount) {
		return Entry{}, insufficient(debit, amount)
	}

	debit.Balance = debit.Balance.Sub(amount)
	l.participants[debitID] = debit
	credit := l.participants[creditID]
	credit.Balance = credit.Balance.Add(amount)
	l.participants[creditID] = credit

	entry := Entry{
		ID:                  uuid.NewString(),
		PaymentID:           paymentID,
		Kind:                kind,
		Amount:              amount,
		DebitParticipantID:  debitID,
		CreditParticipantID: creditID,
		DebitBalanceAfter:   l.participants[debitID].Balance,
		CreditBalanceAfter:  credit.Balance,
		CreatedAt:           l.now(),
	}
	l.entries = append(l.entries, entry)
	l.recorded[key] = entry
	return entry, nil
}

func (l *inMemoryLedger) Balances(_ context.Context) ([]Participant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Participant, 0, len(l.participants))
	for _, p := range l.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *inMemoryLedger) Entries(_ context.Context) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out, nil
}
