package usercontext

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

func newSQLiteProvider(t *testing.T) *SQLiteProvider {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p, err := NewSQLiteProvider(db)
	require.NoError(t, err)
	return p
}

func TestSQLiteProvider_RoundTrip(t *testing.T) {
	p := newSQLiteProvider(t)
	ctx := context.Background()

	require.NoError(t, p.Upsert(ctx, seedUser()))

	got, err := p.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Engineering", got.Department)
	assert.Equal(t, 3, got.ClearanceLevel)
	assert.Equal(t, []string{"vpn"}, got.CurrentPermissions)
	assert.Equal(t, []string{"Security Training"}, got.CompletedTrainings)
	assert.Empty(t, got.History)
}

func TestSQLiteProvider_UpsertReplaces(t *testing.T) {
	p := newSQLiteProvider(t)
	ctx := context.Background()

	require.NoError(t, p.Upsert(ctx, seedUser()))
	updated := seedUser()
	updated.ClearanceLevel = 4
	require.NoError(t, p.Upsert(ctx, updated))

	got, err := p.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, got.ClearanceLevel)
}

func TestSQLiteProvider_UnknownUser(t *testing.T) {
	p := newSQLiteProvider(t)
	_, err := p.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, contracts.ErrUnknownUser)

	err = p.RecordGrant(context.Background(), "nobody", "x")
	assert.ErrorIs(t, err, contracts.ErrUnknownUser)
}

func TestSQLiteProvider_GrantAndHistory(t *testing.T) {
	p := newSQLiteProvider(t)
	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, seedUser()))

	require.NoError(t, p.RecordGrant(ctx, "alice", "prod-db"))
	require.NoError(t, p.RecordGrant(ctx, "alice", "prod-db"))

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.AppendHistory(ctx, "alice", contracts.Outcome{
		Permission: "prod-db",
		Decision:   contracts.DecisionGrant,
		Timestamp:  ts,
	}))

	got, err := p.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"vpn", "prod-db"}, got.CurrentPermissions)
	require.Len(t, got.History, 1)
	assert.Equal(t, "prod-db", got.History[0].Permission)
	assert.Equal(t, contracts.DecisionGrant, got.History[0].Decision)
	assert.True(t, got.History[0].Timestamp.Equal(ts))
	assert.True(t, got.HasPriorGrant())
}
