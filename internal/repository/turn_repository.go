package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"teams_bridge/internal/entities"
)

// execer is the subset of pgxpool.Pool the repository needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type TurnRepository struct {
	db execer
}

func NewTurnRepository(db *pgxpool.Pool) *TurnRepository {
	return &TurnRepository{db: db}
}

const insertTurnSQL = `
	INSERT INTO teams_turns (request_id, organization_id, conversation_id, kind, outcome, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Record appends one row to the turn log.
func (r *TurnRepository) Record(ctx context.Context, rec entities.TurnRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.Exec(ctx, insertTurnSQL,
		rec.RequestID,
		nullable(rec.OrganizationID),
		nullable(rec.ConversationID),
		string(rec.Kind),
		rec.Outcome,
		int(rec.Duration.Milliseconds()),
		created.UTC(),
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
