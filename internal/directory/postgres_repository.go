package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository reads accounts joined with their servicing participant.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed directory.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountSelect = `SELECT a.id, a.routing, a.number, a.owner_name,
        p.id, p.name, p.short_name, p.bic
        FROM accounts a JOIN participants p ON p.id = a.participant_id`

func (r *PostgresRepository) SaveAccount(ctx context.Context, a Account) error {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (id, routing, number, owner_name, participant_id)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET owner_name = EXCLUDED.owner_name`,
		a.ID, a.Routing, a.Number, a.OwnerName, a.Agent.ID)
	return err
}

func (r *PostgresRepository) SaveAlias(ctx context.Context, a Alias) error {
	_, err := r.db.Exec(ctx, `INSERT INTO aliases (type, value, display_name, account_id)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (type, value) DO UPDATE SET display_name = EXCLUDED.display_name, account_id = EXCLUDED.account_id`,
		string(a.Type), a.Value, a.DisplayName, a.AccountID)
	return err
}

func (r *PostgresRepository) AccountByID(ctx context.Context, id string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, accountSelect+` WHERE a.id = $1`, id))
}

func (r *PostgresRepository) AccountByNumber(ctx context.Context, routing, number string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, accountSelect+` WHERE a.routing = $1 AND a.number = $2`, routing, number))
}

func (r *PostgresRepository) Alias(ctx context.Context, t AliasType, value string) (Alias, error) {
	var (
		a   Alias
		typ string
	)
	err := r.db.QueryRow(ctx, `SELECT type, value, display_name, account_id
        FROM aliases WHERE type = $1 AND value = $2`, string(t), value).
		Scan(&typ, &a.Value, &a.DisplayName, &a.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Alias{}, ErrNotFound
		}
		return Alias{}, err
	}
	a.Type = AliasType(typ)
	return a, nil
}

func (r *PostgresRepository) Aliases(ctx context.Context) ([]Alias, error) {
	rows, err := r.db.Query(ctx, `SELECT type, value, display_name, account_id FROM aliases ORDER BY type, value`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Alias
	for rows.Next() {
		var (
			a   Alias
			typ string
		)
		if err := rows.Scan(&typ, &a.Value, &a.DisplayName, &a.AccountID); err != nil {
			return nil, err
		}
		a.Type = AliasType(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Routing, &a.Number, &a.OwnerName,
		&a.Agent.ID, &a.Agent.Name, &a.Agent.ShortName, &a.Agent.BIC)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}
