package usercontext

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

func newPostgresProvider(t *testing.T) (*PostgresProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	p, err := NewPostgresProvider(db)
	require.NoError(t, err)
	return p, mock
}

func TestPostgresProvider_GetUnknownUser(t *testing.T) {
	p, mock := newPostgresProvider(t)

	mock.ExpectQuery("SELECT user_id, department").
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, err := p.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, contracts.ErrUnknownUser)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_Get(t *testing.T) {
	p, mock := newPostgresProvider(t)

	mock.ExpectQuery("SELECT user_id, department").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(
			[]string{"user_id", "department", "role", "clearance_level", "permissions", "trainings"},
		).AddRow("alice", "Engineering", "Developer", 3, `["vpn"]`, `["Security Training"]`))
	mock.ExpectQuery("SELECT permission, decision, decided_at").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"permission", "decision", "decided_at"}))

	got, err := p.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Engineering", got.Department)
	assert.Equal(t, []string{"vpn"}, got.CurrentPermissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_RecordGrant_UnknownUser(t *testing.T) {
	p, mock := newPostgresProvider(t)

	mock.ExpectExec("UPDATE users").
		WithArgs("nobody", "prod-db").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := p.RecordGrant(context.Background(), "nobody", "prod-db")
	assert.ErrorIs(t, err, contracts.ErrUnknownUser)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_RecordGrant_AlreadyPresent(t *testing.T) {
	p, mock := newPostgresProvider(t)

	mock.ExpectExec("UPDATE users").
		WithArgs("alice", "vpn").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	assert.NoError(t, p.RecordGrant(context.Background(), "alice", "vpn"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_AppendHistory(t *testing.T) {
	p, mock := newPostgresProvider(t)

	mock.ExpectExec("INSERT INTO request_history").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := p.AppendHistory(context.Background(), "alice", contracts.Outcome{
		Permission: "prod-db",
		Decision:   contracts.DecisionTicket,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
