package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository stores payments in PostgreSQL. Account and agent snapshots are
// joined from the directory tables on read.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed payment repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentSelect = `SELECT p.id, p.correlation_id, p.end_to_end_id, p.amount::text, p.currency, p.state,
        p.rejection_reason, p.alias_used, p.remittance, p.created_at, p.updated_at,
        da.id, da.routing, da.number, da.owner_name, dp.id, dp.name, dp.short_name, dp.bic,
        ca.id, ca.routing, ca.number, ca.owner_name, cp.id, cp.name, cp.short_name, cp.bic
        FROM payments p
        JOIN accounts da ON da.id = p.debtor_account_id
        JOIN participants dp ON dp.id = da.participant_id
        JOIN accounts ca ON ca.id = p.creditor_account_id
        JOIN participants cp ON cp.id = ca.participant_id`

func (r *PostgresRepository) Create(ctx context.Context, p Payment) error {
	_, err := r.db.Exec(ctx, `INSERT INTO payments
        (id, correlation_id, end_to_end_id, amount, currency, state, rejection_reason, alias_used,
         remittance, debtor_account_id, creditor_account_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.CorrelationID, p.EndToEndID, p.Amount.StringFixed(2), p.Currency, string(p.State),
		p.RejectionReason, p.AliasUsed, p.Remittance, p.Debtor.ID, p.Creditor.ID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, paymentSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Payment, error) {
	rows, err := r.db.Query(ctx, paymentSelect+` ORDER BY p.seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, p Payment, expected State) error {
	tag, err := r.db.Exec(ctx, `UPDATE payments SET state = $1, rejection_reason = $2, updated_at = $3
        WHERE id = $4 AND state = $5`,
		string(p.State), p.RejectionReason, p.UpdatedAt, p.ID, string(expected))
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}

func (r *PostgresRepository) CountByState(ctx context.Context) (map[State]int, error) {
	rows, err := r.db.Query(ctx, `SELECT state, count(*) FROM payments GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[State(state)] = n
	}
	return counts, rows.Err()
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p             Payment
		amount, state string
	)
	err := row.Scan(&p.ID, &p.CorrelationID, &p.EndToEndID, &amount, &p.Currency, &state,
		&p.RejectionReason, &p.AliasUsed, &p.Remittance, &p.CreatedAt, &p.UpdatedAt,
		&p.Debtor.ID, &p.Debtor.Routing, &p.Debtor.Number, &p.Debtor.OwnerName,
		&p.Debtor.Agent.ID, &p.Debtor.Agent.Name, &p.Debtor.Agent.ShortName, &p.Debtor.Agent.BIC,
		&p.Creditor.ID, &p.Creditor.Routing, &p.Creditor.Number, &p.Creditor.OwnerName,
		&p.Creditor.Agent.ID, &p.Creditor.Agent.Name, &p.Creditor.Agent.ShortName, &p.Creditor.Agent.BIC)
	if err != nil {
		return Payment{}, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return Payment{}, fmt.Errorf("parse amount for %s: %w", p.ID, err)
	}
	p.State = State(state)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
