package mandates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository stores mandates in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed mandate repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const mandateSelect = `SELECT m.id, m.description, m.max_amount::text, m.frequency, m.state,
        m.valid_from, m.valid_to, m.created_at, m.updated_at,
        ca.id, ca.routing, ca.number, ca.owner_name, cp.id, cp.name, cp.short_name, cp.bic,
        da.id, da.routing, da.number, da.owner_name, dp.id, dp.name, dp.short_name, dp.bic
        FROM mandates m
        JOIN accounts ca ON ca.id = m.creditor_account_id
        JOIN participants cp ON cp.id = ca.participant_id
        JOIN accounts da ON da.id = m.debtor_account_id
        JOIN participants dp ON dp.id = da.participant_id`

// Create inserts the mandate; an existing id is left untouched so seeding is repeatable.
func (r *PostgresRepository) Create(ctx context.Context, m Mandate) error {
	_, err := r.db.Exec(ctx, `INSERT INTO mandates
        (id, description, max_amount, frequency, state, valid_from, valid_to,
         creditor_account_id, debtor_account_id, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Description, m.MaxAmount.StringFixed(2), m.Frequency, string(m.State),
		m.ValidFrom, m.ValidTo, m.Creditor.ID, m.Debtor.ID, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert mandate: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Mandate, error) {
	m, err := scanMandate(r.db.QueryRow(ctx, mandateSelect+` WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Mandate{}, ErrNotFound
		}
		return Mandate{}, err
	}
	return m, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Mandate, error) {
	rows, err := r.db.Query(ctx, mandateSelect+` ORDER BY m.created_at DESC, m.seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mandate
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, m Mandate, expected State) error {
	tag, err := r.db.Exec(ctx, `UPDATE mandates SET state = $1, updated_at = $2
        WHERE id = $3 AND state = $4`,
		string(m.State), m.UpdatedAt, m.ID, string(expected))
	if err != nil {
		return fmt.Errorf("update mandate: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, m.ID); err != nil {
		return err
	}
	return ErrInvalidState
}

func scanMandate(row pgx.Row) (Mandate, error) {
	var (
		m             Mandate
		amount, state string
	)
	err := row.Scan(&m.ID, &m.Description, &amount, &m.Frequency, &state,
		&m.ValidFrom, &m.ValidTo, &m.CreatedAt, &m.UpdatedAt,
		&m.Creditor.ID, &m.Creditor.Routing, &m.Creditor.Number, &m.Creditor.OwnerName,
		&m.Creditor.Agent.ID, &m.Creditor.Agent.Name, &m.Creditor.Agent.ShortName, &m.Creditor.Agent.BIC,
		&m.Debtor.ID, &m.Debtor.Routing, &m.Debtor.Number, &m.Debtor.OwnerName,
		&m.Debtor.Agent.ID, &m.Debtor.Agent.Name, &m.Debtor.Agent.ShortName, &m.Debtor.Agent.BIC)
	if err != nil {
		return Mandate{}, err
	}
	if m.MaxAmount, err = decimal.NewFromString(amount); err != nil {
		return Mandate{}, fmt.Errorf("parse max amount for %s: %w", m.ID, err)
	}
	m.State = State(state)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}
