package usercontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

func seedUser() *contracts.UserContext {
	return &contracts.UserContext{
		UserID:             "alice",
		Department:         "Engineering",
		Role:               "Developer",
		ClearanceLevel:     3,
		CurrentPermissions: []string{"vpn"},
		CompletedTrainings: []string{"Security Training"},
	}
}

func TestMemoryProvider_GetUnknownUser(t *testing.T) {
	p := NewMemoryProvider()
	_, err := p.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, contracts.ErrUnknownUser)
}

func TestMemoryProvider_GetReturnsCopy(t *testing.T) {
	p := NewMemoryProvider()
	p.Put(seedUser())

	got, err := p.Get(context.Background(), "alice")
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the store.
	got.CurrentPermissions = append(got.CurrentPermissions, "prod-db")
	got.Department = "Sales"

	again, err := p.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"vpn"}, again.CurrentPermissions)
	assert.Equal(t, "Engineering", again.Department)
}

func TestMemoryProvider_RecordGrantIdempotent(t *testing.T) {
	p := NewMemoryProvider()
	p.Put(seedUser())
	ctx := context.Background()

	require.NoError(t, p.RecordGrant(ctx, "alice", "prod-db"))
	require.NoError(t, p.RecordGrant(ctx, "alice", "prod-db"))

	got, err := p.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"vpn", "prod-db"}, got.CurrentPermissions)

	assert.ErrorIs(t, p.RecordGrant(ctx, "nobody", "x"), contracts.ErrUnknownUser)
}

func TestMemoryProvider_AppendHistory(t *testing.T) {
	p := NewMemoryProvider()
	p.Put(seedUser())
	ctx := context.Background()

	out := contracts.Outcome{
		Permission: "prod-db",
		Decision:   contracts.DecisionTicket,
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.AppendHistory(ctx, "alice", out))

	got, err := p.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, out, got.History[0])

	assert.ErrorIs(t, p.AppendHistory(ctx, "nobody", out), contracts.ErrUnknownUser)
}
