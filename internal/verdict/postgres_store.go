package verdict

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixpay/payguard/internal/fusion"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. Snapshot fields
// live in JSONB columns; the annotation sits in its own columns so the
// exactly-once label guard can be a WHERE clause.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed verdict store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, v *Verdict) error {
	rulesJSON, err := json.Marshal(v.TriggeredRules)
	if err != nil {
		return fmt.Errorf("marshal triggered rules: %w", err)
	}
	flagsJSON, err := json.Marshal(v.AIRedFlags)
	if err != nil {
		return fmt.Errorf("marshal red flags: %w", err)
	}
	locationJSON, err := marshalNullable(v.LocationSnapshot)
	if err != nil {
		return fmt.Errorf("marshal location snapshot: %w", err)
	}
	counterpartyJSON, err := marshalNullable(v.Counterparty)
	if err != nil {
		return fmt.Errorf("marshal counterparty snapshot: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO verdicts (
			id, actor_id, amount, kind, rule_score, triggered_rules,
			ai_score, ai_confidence, ai_reasoning, ai_red_flags,
			final_score, risk_level, action, detection_method,
			execution_time_ms, created_at, location_snapshot, counterparty_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, v.ID, v.ActorID, v.Amount, v.Kind, v.RuleScore, rulesJSON,
		v.AIScore, v.AIConfidence, v.AIReasoning, flagsJSON,
		v.FinalScore, v.RiskLevel, v.Action, v.DetectionMethod,
		v.ExecutionTimeMs, v.CreatedAt, locationJSON, counterpartyJSON)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Verdict, error) {
	row := p.db.QueryRowContext(ctx, selectVerdict+` WHERE id = $1`, id)
	v, err := scanVerdict(row)
	if err == sql.ErrNoRows {
		return nil, ErrVerdictNotFound
	}
	return v, err
}

func (p *PostgresStore) ListByActor(ctx context.Context, actorID string, limit int) ([]*Verdict, error) {
	rows, err := p.db.QueryContext(ctx, selectVerdict+`
		WHERE actor_id = $1 ORDER BY created_at DESC LIMIT $2
	`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by actor: %w", err)
	}
	return scanVerdicts(rows)
}

func (p *PostgresStore) ListUnlabeled(ctx context.Context, action fusion.Action, olderThan time.Time) ([]*Verdict, error) {
	rows, err := p.db.QueryContext(ctx, selectVerdict+`
		WHERE label IS NULL AND action = $1 AND created_at < $2
		ORDER BY created_at
	`, action, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list unlabeled: %w", err)
	}
	return scanVerdicts(rows)
}

func (p *PostgresStore) ListLabeled(ctx context.Context) ([]*Verdict, error) {
	rows, err := p.db.QueryContext(ctx, selectVerdict+`
		WHERE label IS NOT NULL ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list labeled: %w", err)
	}
	return scanVerdicts(rows)
}

func (p *PostgresStore) ListForHealth(ctx context.Context, actorID string, since time.Time) ([]*Verdict, error) {
	rows, err := p.db.QueryContext(ctx, selectVerdict+`
		WHERE actor_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, actorID, since)
	if err != nil {
		return nil, fmt.Errorf("list for health: %w", err)
	}
	return scanVerdicts(rows)
}

func (p *PostgresStore) AttachLabel(ctx context.Context, id string, a *Annotation) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE verdicts
		SET label = $2, confusion_class = $3, verified_by = $4, verified_at = $5
		WHERE id = $1 AND label IS NULL
	`, id, a.Label, a.ConfusionClass, a.VerifiedBy, a.VerifiedAt)
	if err != nil {
		return fmt.Errorf("attach label: %w", err)
	}
	return p.labelGuard(ctx, res, id, true)
}

func (p *PostgresStore) ReplaceLabel(ctx context.Context, id string, a *Annotation) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE verdicts
		SET label = $2, confusion_class = $3, verified_by = $4, verified_at = $5,
		    revoked_from = $6, revoke_reason = $7
		WHERE id = $1 AND label IS NOT NULL
	`, id, a.Label, a.ConfusionClass, a.VerifiedBy, a.VerifiedAt, a.RevokedFrom, a.RevokeReason)
	if err != nil {
		return fmt.Errorf("replace label: %w", err)
	}
	return p.labelGuard(ctx, res, id, false)
}

// labelGuard maps a zero-row update to the right sentinel error.
func (p *PostgresStore) labelGuard(ctx context.Context, res sql.Result, id string, attaching bool) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("label guard: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM verdicts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("label guard: %w", err)
	}
	if !exists {
		return ErrVerdictNotFound
	}
	if attaching {
		return ErrAlreadyLabeled
	}
	return ErrNotLabeled
}

const selectVerdict = `
	SELECT id, actor_id, amount, kind, rule_score, triggered_rules,
	       ai_score, ai_confidence, ai_reasoning, ai_red_flags,
	       final_score, risk_level, action, detection_method,
	       execution_time_ms, created_at, location_snapshot, counterparty_snapshot,
	       label, confusion_class, verified_by, verified_at, revoked_from, revoke_reason
	FROM verdicts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerdict(row rowScanner) (*Verdict, error) {
	var (
		v                     Verdict
		rulesJSON, flagsJSON  []byte
		locationJSON          []byte
		counterpartyJSON      []byte
		aiScore, aiConfidence sql.NullInt64
		aiReasoning           sql.NullString
		label, class          sql.NullString
		verifiedBy            sql.NullString
		verifiedAt            sql.NullTime
		revokedFrom           sql.NullString
		revokeReason          sql.NullString
	)
	err := row.Scan(&v.ID, &v.ActorID, &v.Amount, &v.Kind, &v.RuleScore, &rulesJSON,
		&aiScore, &aiConfidence, &aiReasoning, &flagsJSON,
		&v.FinalScore, &v.RiskLevel, &v.Action, &v.DetectionMethod,
		&v.ExecutionTimeMs, &v.CreatedAt, &locationJSON, &counterpartyJSON,
		&label, &class, &verifiedBy, &verifiedAt, &revokedFrom, &revokeReason)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rulesJSON, &v.TriggeredRules); err != nil {
		return nil, fmt.Errorf("unmarshal triggered rules: %w", err)
	}
	if err := json.Unmarshal(flagsJSON, &v.AIRedFlags); err != nil {
		return nil, fmt.Errorf("unmarshal red flags: %w", err)
	}
	if len(locationJSON) > 0 {
		if err := json.Unmarshal(locationJSON, &v.LocationSnapshot); err != nil {
			return nil, fmt.Errorf("unmarshal location snapshot: %w", err)
		}
	}
	if len(counterpartyJSON) > 0 {
		if err := json.Unmarshal(counterpartyJSON, &v.Counterparty); err != nil {
			return nil, fmt.Errorf("unmarshal counterparty snapshot: %w", err)
		}
	}
	if aiScore.Valid {
		s := int(aiScore.Int64)
		v.AIScore = &s
	}
	if aiConfidence.Valid {
		c := int(aiConfidence.Int64)
		v.AIConfidence = &c
	}
	v.AIReasoning = aiReasoning.String
	if label.Valid {
		v.Annotation = &Annotation{
			Label:          Label(label.String),
			ConfusionClass: ConfusionClass(class.String),
			VerifiedBy:     verifiedBy.String,
			VerifiedAt:     verifiedAt.Time,
			RevokedFrom:    Label(revokedFrom.String),
			RevokeReason:   revokeReason.String,
		}
	}
	return &v, nil
}

func scanVerdicts(rows *sql.Rows) ([]*Verdict, error) {
	defer rows.Close()

	var verdicts []*Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
