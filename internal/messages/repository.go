package messages

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores audit artifacts.
type Repository interface {
	Save(ctx context.Context, msg Message) error
	List(ctx context.Context) ([]Message, error)
	Get(ctx context.Context, id string) (Message, error)
	ListByPayment(ctx context.Context, paymentID string) ([]Message, error)
}

// MemoryRepository keeps messages in insertion order.
type MemoryRepository struct {
	mu   sync.RWMutex
	msgs []Message
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Message, 0, len(r.msgs))
	for i := len(r.msgs) - 1; i >= 0; i-- {
		out = append(out, r.msgs[i])
	}
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return Message{}, ErrNotFound
}

func (r *MemoryRepository) ListByPayment(_ context.Context, paymentID string) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Message
	for _, m := range r.msgs {
		if m.PaymentID == paymentID {
			out = append(out, m)
		}
	}
	return out, nil
}

// PostgresRepository stores messages in the iso_messages table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed message repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const messageColumns = `id, type, message_id, direction, sender_bic, receiver_bic, payment_id, content, fallback, created_at`

func (r *PostgresRepository) Save(ctx context.Context, msg Message) error {
	_, err := r.db.Exec(ctx, `INSERT INTO iso_messages (`+messageColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, string(msg.Type), msg.MessageID, string(msg.Direction), msg.SenderBIC, msg.ReceiverBIC,
		msg.PaymentID, msg.Content, msg.Fallback, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Message, error) {
	return r.query(ctx, `SELECT `+messageColumns+` FROM iso_messages ORDER BY seq DESC`)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Message, error) {
	row := r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM iso_messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	return msg, nil
}

func (r *PostgresRepository) ListByPayment(ctx context.Context, paymentID string) ([]Message, error) {
	return r.query(ctx, `SELECT `+messageColumns+` FROM iso_messages WHERE payment_id = $1 ORDER BY seq`, paymentID)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]Message, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m              Message
		typ, direction string
	)
	if err := row.Scan(&m.ID, &typ, &m.MessageID, &direction, &m.SenderBIC, &m.ReceiverBIC,
		&m.PaymentID, &m.Content, &m.Fallback, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	m.Type = Type(typ)
	m.Direction = Direction(direction)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
