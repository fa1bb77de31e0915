package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teams_bridge/internal/entities"
)

type fakeExecer struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestTurnRepository_Record(t *testing.T) {
	db := &fakeExecer{}
	repo := &TurnRepository{db: db}
	created := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	err := repo.Record(context.Background(), entities.TurnRecord{
		RequestID:      "req-1",
		OrganizationID: "aad-1",
		Kind:           entities.EventMessage,
		Outcome:        "answered",
		Duration:       1500 * time.Millisecond,
		CreatedAt:      created,
	})
	require.NoError(t, err)

	assert.Contains(t, db.sql, "INSERT INTO teams_turns")
	assert.Equal(t, []any{"req-1", "aad-1", nil, "message", "answered", 1500, created}, db.args)
}

func TestTurnRepository_RecordError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection refused")}
	repo := &TurnRepository{db: db}

	err := repo.Record(context.Background(), entities.TurnRecord{RequestID: "r", Kind: entities.EventOther})
	assert.EqualError(t, err, "connection refused")
	assert.IsType(t, time.Time{}, db.args[6])
}
