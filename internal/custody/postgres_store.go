package custody

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed custody store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Transfer) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transfers (
			id, verdict_id, sender_id, recipient_id, amount,
			status, action, held_until, created_at, settled_at, settled_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.VerdictID, t.SenderID, t.RecipientID, t.Amount,
		t.Status, t.Action, t.HeldUntil, t.CreatedAt, t.SettledAt, t.SettledBy)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transfer, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, selectTransfer+` WHERE id = $1`, id))
}

func (p *PostgresStore) GetByVerdict(ctx context.Context, verdictID string) (*Transfer, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, selectTransfer+` WHERE verdict_id = $1`, verdictID))
}

func (p *PostgresStore) ListHeld(ctx context.Context) ([]*Transfer, error) {
	rows, err := p.db.QueryContext(ctx, selectTransfer+` WHERE status = 'held' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list held: %w", err)
	}
	return p.scanAll(rows)
}

func (p *PostgresStore) ListExpiredHeld(ctx context.Context, action string, now time.Time) ([]*Transfer, error) {
	rows, err := p.db.QueryContext(ctx, selectTransfer+`
		WHERE status = 'held' AND action = $1 AND held_until <= $2
		ORDER BY held_until
	`, action, now)
	if err != nil {
		return nil, fmt.Errorf("list expired held: %w", err)
	}
	return p.scanAll(rows)
}

func (p *PostgresStore) Settle(ctx context.Context, id string, to Status, settledAt time.Time, settledBy string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE transfers SET status = $2, settled_at = $3, settled_by = $4
		WHERE id = $1 AND status = 'held'
	`, id, to, settledAt, settledBy)
	if err != nil {
		return fmt.Errorf("settle transfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle transfer: %w", err)
	}
	if n == 0 {
		// Distinguish missing from already settled.
		var status string
		err := p.db.QueryRowContext(ctx, `SELECT status FROM transfers WHERE id = $1`, id).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrTransferNotFound
		}
		if err != nil {
			return fmt.Errorf("settle transfer: %w", err)
		}
		return ErrInvalidTransition
	}
	return nil
}

const selectTransfer = `
	SELECT id, verdict_id, sender_id, recipient_id, amount,
	       status, action, held_until, created_at, settled_at, settled_by
	FROM transfers`

func (p *PostgresStore) scanOne(row *sql.Row) (*Transfer, error) {
	var (
		t         Transfer
		heldUntil sql.NullTime
		settledAt sql.NullTime
		settledBy sql.NullString
	)
	err := row.Scan(&t.ID, &t.VerdictID, &t.SenderID, &t.RecipientID, &t.Amount,
		&t.Status, &t.Action, &heldUntil, &t.CreatedAt, &settledAt, &settledBy)
	if err == sql.ErrNoRows {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	if heldUntil.Valid {
		t.HeldUntil = &heldUntil.Time
	}
	if settledAt.Valid {
		t.SettledAt = &settledAt.Time
	}
	t.SettledBy = settledBy.String
	return &t, nil
}

func (p *PostgresStore) scanAll(rows *sql.Rows) ([]*Transfer, error) {
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		var (
			t         Transfer
			heldUntil sql.NullTime
			settledAt sql.NullTime
			settledBy sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.VerdictID, &t.SenderID, &t.RecipientID, &t.Amount,
			&t.Status, &t.Action, &heldUntil, &t.CreatedAt, &settledAt, &settledBy); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		if heldUntil.Valid {
			t.HeldUntil = &heldUntil.Time
		}
		if settledAt.Valid {
			t.SettledAt = &settledAt.Time
		}
		t.SettledBy = settledBy.String
		transfers = append(transfers, &t)
	}
	return transfers, rows.Err()
}
