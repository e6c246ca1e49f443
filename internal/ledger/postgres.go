package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLedger persists participant balances and ledger entries in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureParticipant inserts the participant unless one with the same id exists.
func (l *PostgresLedger) EnsureParticipant(ctx context.Context, p Participant) error {
	_, err := l.db.Exec(ctx, `INSERT INTO participants (id, name, short_name, bic, routing, balance)
        VALUES ($1, $2, $3, $4, $5, $6::numeric)
        ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.ShortName, p.BIC, p.Routing, p.Balance.StringFixed(2))
	return err
}

// Participant returns a participant and its current balance.
func (l *PostgresLedger) Participant(ctx context.Context, id string) (Participant, error) {
	row := l.db.QueryRow(ctx, `SELECT id, name, short_name, bic, routing, balance::text
        FROM participants WHERE id = $1`, id)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Participant{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
		}
		return Participant{}, err
	}
	return p, nil
}

// Transfer moves amount from the debit participant to the credit participant.
func (l *PostgresLedger) Transfer(ctx context.Context, paymentID, debitID, creditID string, amount decimal.Decimal) (Entry, error) {
	return l.move(ctx, KindSettlement, paymentID, debitID, creditID, amount)
}

// Reverse moves amount back from the original credit participant to the original debit participant.
func (l *PostgresLedger) Reverse(ctx context.Context, paymentID, originalDebitID, originalCreditID string, amount decimal.Decimal) (Entry, error) {
	return l.move(ctx, KindReversal, paymentID, originalCreditID, originalDebitID, amount)
}

func (l *PostgresLedger) move(ctx context.Context, kind EntryKind, paymentID, debitID, creditID string, amount decimal.Decimal) (Entry, error) {
	if !amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Row locks are taken in id order so concurrent transfers between the same pair
	// cannot deadlock.
	ids := []string{debitID, creditID}
	sort.Strings(ids)
	locked := make(map[string]Participant, 2)
	for _, id := range ids {
		if _, done := locked[id]; done {
			continue
		}
		p, err := lockParticipant(ctx, tx, id)
		if err != nil {
			return Entry{}, err
		}
		locked[id] = p
	}

	// Entries of one payment move the same pair of participants, so the row locks above
	// serialise this check against a concurrent duplicate.
	if existing, err := recordedEntry(ctx, tx, paymentID, kind); err == nil {
		return existing, ErrDuplicateEntry
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, err
	}

	debit := locked[debitID]
	if debit.Balance.LessThan(amount) {
		return Entry{}, insufficient(debit, amount)
	}

	debit.Balance = debit.Balance.Sub(amount)
	locked[debitID] = debit
	credit := locked[creditID]
	credit.Balance = credit.Balance.Add(amount)
	locked[creditID] = credit

	for _, id := range ids {
		if _, err := tx.Exec(ctx, `UPDATE participants SET balance = $1::numeric WHERE id = $2`,
			locked[id].Balance.StringFixed(2), id); err != nil {
			return Entry{}, err
		}
	}

	entry := Entry{
		ID:                  uuid.NewString(),
		PaymentID:           paymentID,
		Kind:                kind,
		Amount:              amount,
		DebitParticipantID:  debitID,
		CreditParticipantID: creditID,
		DebitBalanceAfter:   locked[debitID].Balance,
		CreditBalanceAfter:  locked[creditID].Balance,
		CreatedAt:           time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries
        (id, payment_id, kind, amount, debit_participant_id, credit_participant_id,
         debit_balance_after, credit_balance_after, created_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8::numeric, $9)`,
		entry.ID, entry.PaymentID, string(entry.Kind), entry.Amount.StringFixed(2),
		entry.DebitParticipantID, entry.CreditParticipantID,
		entry.DebitBalanceAfter.StringFixed(2), entry.CreditBalanceAfter.StringFixed(2), entry.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Entry{}, fmt.Errorf("%w: %s %s", ErrDuplicateEntry, kind, paymentID)
		}
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Balances lists every participant with its current balance.
func (l *PostgresLedger) Balances(ctx context.Context) ([]Participant, error) {
	rows, err := l.db.Query(ctx, `SELECT id, name, short_name, bic, routing, balance::text
        FROM participants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Entries returns the transfer history, most recent first.
func (l *PostgresLedger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `SELECT `+entryColumns+`
        FROM ledger_entries ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const uniqueViolation = "23505"

const entryColumns = `id, payment_id, kind, amount::text,
        debit_participant_id, credit_participant_id,
        debit_balance_after::text, credit_balance_after::text, created_at`

func recordedEntry(ctx context.Context, tx pgx.Tx, paymentID string, kind EntryKind) (Entry, error) {
	row := tx.QueryRow(ctx, `SELECT `+entryColumns+`
        FROM ledger_entries WHERE payment_id = $1 AND kind = $2`, paymentID, string(kind))
	return scanEntry(row)
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e                             Entry
		kind, amount, debAft, credAft string
		err                           error
	)
	if err = row.Scan(&e.ID, &e.PaymentID, &kind, &amount,
		&e.DebitParticipantID, &e.CreditParticipantID, &debAft, &credAft, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.Kind = EntryKind(kind)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return Entry{}, err
	}
	if e.DebitBalanceAfter, err = decimal.NewFromString(debAft); err != nil {
		return Entry{}, err
	}
	if e.CreditBalanceAfter, err = decimal.NewFromString(credAft); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func lockParticipant(ctx context.Context, tx pgx.Tx, id string) (Participant, error) {
	row := tx.QueryRow(ctx, `SELECT id, name, short_name, bic, routing, balance::text
        FROM participants WHERE id = $1 FOR UPDATE`, id)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Participant{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
		}
		return Participant{}, err
	}
	return p, nil
}

func scanParticipant(row pgx.Row) (Participant, error) {
	var (
		p       Participant
		balance string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.ShortName, &p.BIC, &p.Routing, &balance); err != nil {
		return Participant{}, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Participant{}, fmt.Errorf("parse balance for %s: %w", p.ID, err)
	}
	p.Balance = amount
	return p, nil
}
