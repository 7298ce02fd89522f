package appeals

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

// NewPostgresStore creates a new PostgreSQL-backed appeal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, a *Appeal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO appeals (id, verdict_id, actor_id, reason, status, resolved_by, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.VerdictID, a.ActorID, a.Reason, a.Status, a.ResolvedBy, a.ResolvedAt, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appeal: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Appeal, error) {
	a, err := scanAppeal(p.db.QueryRowContext(ctx, selectAppeal+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrAppealNotFound
	}
	return a, err
}

func (p *PostgresStore) ListByVerdict(ctx context.Context, verdictID string) ([]*Appeal, error) {
	rows, err := p.db.QueryContext(ctx, selectAppeal+`
		WHERE verdict_id = $1 ORDER BY created_at DESC
	`, verdictID)
	if err != nil {
		return nil, fmt.Errorf("list by verdict: %w", err)
	}
	return scanAppeals(rows)
}

func (p *PostgresStore) ListByActor(ctx context.Context, actorID string, limit int) ([]*Appeal, error) {
	rows, err := p.db.QueryContext(ctx, selectAppeal+`
		WHERE actor_id = $1 ORDER BY created_at DESC LIMIT $2
	`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by actor: %w", err)
	}
	return scanAppeals(rows)
}

func (p *PostgresStore) ListPending(ctx context.Context) ([]*Appeal, error) {
	rows, err := p.db.QueryContext(ctx, selectAppeal+`
		WHERE status = 'pending' ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return scanAppeals(rows)
}

func (p *PostgresStore) Resolve(ctx context.Context, id string, to Status, resolvedBy string, resolvedAt time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE appeals SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, to, resolvedBy, resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve appeal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve appeal: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM appeals WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("resolve appeal: %w", err)
		}
		if !exists {
			return ErrAppealNotFound
		}
		return ErrAlreadyResolved
	}
	return nil
}

const selectAppeal = `
	SELECT id, verdict_id, actor_id, reason, status, resolved_by, resolved_at, created_at
	FROM appeals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppeal(row rowScanner) (*Appeal, error) {
	var (
		a          Appeal
		resolvedBy sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.VerdictID, &a.ActorID, &a.Reason, &a.Status, &resolvedBy, &resolvedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return &a, nil
}

func scanAppeals(rows *sql.Rows) ([]*Appeal, error) {
	defer rows.Close()

	var appeals []*Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appeal: %w", err)
		}
		appeals = append(appeals, a)
	}
	return appeals, rows.Err()
}
