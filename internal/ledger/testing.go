package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites a participant balance when using the in-memory ledger.
func SeedBalance(l Ledger, participantID string, amount decimal.Decimal) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		p := mem.participants[participantID]
		p.ID = participantID
		p.Balance = amount
		mem.participants[participantID] = p
	}
}
