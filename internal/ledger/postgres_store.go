package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/helixpay/payguard/internal/idgen"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. Every money movement
// runs inside a single transaction, and the table carries CHECK constraints
// so a bug in Go can never drive a balance negative.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	var (
		available, held int64
		updatedAt       time.Time
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT available_cents, held_cents, updated_at
		FROM ledger_balances WHERE user_id = $1
	`, userID).Scan(&available, &held, &updatedAt)
	if err == sql.ErrNoRows {
		return &Balance{UserID: userID, Available: "0.00", Held: "0.00", UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &Balance{
		UserID:    userID,
		Available: FormatAmount(available),
		Held:      FormatAmount(held),
		UpdatedAt: updatedAt,
	}, nil
}

func (p *PostgresStore) TopUp(ctx context.Context, userID, amount, description string) error {
	cents, err := ParseAmount(amount)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := credit(ctx, tx, userID, cents); err != nil {
		return err
	}
	if err := appendEntry(ctx, tx, userID, "top_up", cents, "", description); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Transfer(ctx context.Context, senderID, recipientID, amount, reference string) error {
	cents, err := ParseAmount(amount)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := debit(ctx, tx, senderID, cents); err != nil {
		return err
	}
	if err := credit(ctx, tx, recipientID, cents); err != nil {
		return err
	}
	if err := appendEntry(ctx, tx, senderID, "transfer_out", cents, reference, ""); err != nil {
		return err
	}
	if err := appendEntry(ctx, tx, recipientID, "transfer_in", cents, reference, ""); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Hold(ctx context.Context, senderID, amount, reference string) error {
	cents, err := ParseAmount(amount)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := debit(ctx, tx, senderID, cents); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE ledger_balances SET held_cents = held_cents + $2, updated_at = NOW()
		WHERE user_id = $1
	`, senderID, cents); err != nil {
		return fmt.Errorf("add held: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_holds (reference, user_id, amount_cents, created_at)
		VALUES ($1, $2, $3, NOW())
	`, reference, senderID, cents); err != nil {
		return fmt.Errorf("insert hold: %w", err)
	}
	if err := appendEntry(ctx, tx, senderID, "hold", cents, reference, ""); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ReleaseHold(ctx context.Context, senderID, recipientID, amount, reference string) error {
	return p.settleHold(ctx, senderID, amount, reference, "release", func(ctx context.Context, tx *sql.Tx, cents int64) error {
		if err := credit(ctx, tx, recipientID, cents); err != nil {
			return err
		}
		return appendEntry(ctx, tx, recipientID, "release", cents, reference, "")
	})
}

func (p *PostgresStore) ReturnHold(ctx context.Context, senderID, amount, reference string) error {
	return p.settleHold(ctx, senderID, amount, reference, "return", func(ctx context.Context, tx *sql.Tx, cents int64) error {
		if err := credit(ctx, tx, senderID, cents); err != nil {
			return err
		}
		return appendEntry(ctx, tx, senderID, "return", cents, reference, "")
	})
}

func (p *PostgresStore) ConfiscateHold(ctx context.Context, senderID, amount, reference string) error {
	return p.settleHold(ctx, senderID, amount, reference, "confiscation", func(ctx context.Context, tx *sql.Tx, cents int64) error {
		if err := credit(ctx, tx, SeizureAccount, cents); err != nil {
			return err
		}
		return appendEntry(ctx, tx, SeizureAccount, "confiscation", cents, reference, "seized from "+senderID)
	})
}

func (p *PostgresStore) GetHistory(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount_cents, reference, description, created_at
		FROM ledger_entries WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e     Entry
			cents int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &cents, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Amount = FormatAmount(cents)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// settleHold consumes a live hold and hands its cents to apply, all in one
// transaction. The DELETE ... RETURNING doubles as the exactly-once guard:
// a second settlement of the same reference finds no row.
func (p *PostgresStore) settleHold(ctx context.Context, senderID, amount, reference, kind string, apply func(context.Context, *sql.Tx, int64) error) error {
	cents, err := ParseAmount(amount)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var heldCents int64
	err = tx.QueryRowContext(ctx, `
		DELETE FROM ledger_holds WHERE reference = $1 AND user_id = $2
		RETURNING amount_cents
	`, reference, senderID).Scan(&heldCents)
	if err == sql.ErrNoRows {
		return ErrHoldNotFound
	}
	if err != nil {
		return fmt.Errorf("consume hold (%s): %w", kind, err)
	}
	if heldCents != cents {
		return ErrHoldNotFound
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_balances SET held_cents = held_cents - $2, updated_at = NOW()
		WHERE user_id = $1 AND held_cents >= $2
	`, senderID, cents)
	if err != nil {
		return fmt.Errorf("reduce held: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrHoldNotFound
	}

	if err := apply(ctx, tx, cents); err != nil {
		return err
	}
	return tx.Commit()
}

// debit removes cents from a user's available balance, failing with
// ErrInsufficientBalance when they do not have enough.
func debit(ctx context.Context, tx *sql.Tx, userID string, cents int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_balances
		SET available_cents = available_cents - $2, updated_at = NOW()
		WHERE user_id = $1 AND available_cents >= $2
	`, userID, cents)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// credit adds cents to a user's available balance, creating the row on first use.
func credit(ctx context.Context, tx *sql.Tx, userID string, cents int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_balances (user_id, available_cents, held_cents, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET available_cents = ledger_balances.available_cents + $2, updated_at = NOW()
	`, userID, cents)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	return nil
}

func appendEntry(ctx context.Context, tx *sql.Tx, userID, entryType string, cents int64, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, type, amount_cents, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, idgen.WithPrefix("led_"), userID, entryType, cents, reference, description)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}
