package usercontext

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uam-labs/arbiter/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteProvider persists user contexts and request history in SQLite.
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLiteProvider wraps an open database handle and creates the schema.
func NewSQLiteProvider(db *sql.DB) (*SQLiteProvider, error) {
	p := &SQLiteProvider{db: db}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SQLiteProvider) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		department TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		clearance_level INTEGER NOT NULL DEFAULT 0,
		permissions JSON NOT NULL DEFAULT '[]',
		trainings JSON NOT NULL DEFAULT '[]'
	);
	CREATE TABLE IF NOT EXISTS request_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		permission TEXT NOT NULL,
		decision TEXT NOT NULL,
		decided_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_user ON request_history(user_id);`
	_, err := p.db.ExecContext(context.Background(), query)
	return err
}

// Upsert seeds or replaces a user's stored attributes.
func (p *SQLiteProvider) Upsert(ctx context.Context, user *contracts.UserContext) error {
	perms, _ := json.Marshal(user.CurrentPermissions)
	trainings, _ := json.Marshal(user.CompletedTrainings)

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (user_id, department, role, clearance_level, permissions, trainings)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			department = excluded.department,
			role = excluded.role,
			clearance_level = excluded.clearance_level,
			permissions = excluded.permissions,
			trainings = excluded.trainings`,
		user.UserID, user.Department, user.Role, user.ClearanceLevel, string(perms), string(trainings),
	)
	if err != nil {
		return fmt.Errorf("usercontext: upsert %s: %w", user.UserID, err)
	}
	return nil
}

// Get implements Provider.
func (p *SQLiteProvider) Get(ctx context.Context, userID string) (*contracts.UserContext, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT user_id, department, role, clearance_level, permissions, trainings
		FROM users WHERE user_id = ?`, userID)

	var (
		u             contracts.UserContext
		permsJSON     string
		trainingsJSON string
	)
	err := row.Scan(&u.UserID, &u.Department, &u.Role, &u.ClearanceLevel, &permsJSON, &trainingsJSON)
	if err == sql.ErrNoRows {
		return nil, contracts.ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("usercontext: get %s: %w", userID, err)
	}
	_ = json.Unmarshal([]byte(permsJSON), &u.CurrentPermissions)
	_ = json.Unmarshal([]byte(trainingsJSON), &u.CompletedTrainings)

	history, err := p.history(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.History = history
	return &u, nil
}

func (p *SQLiteProvider) history(ctx context.Context, userID string) ([]contracts.Outcome, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT permission, decision, decided_at
		FROM request_history WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("usercontext: history %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Outcome
	for rows.Next() {
		var (
			o  contracts.Outcome
			ts string
		)
		if err := rows.Scan(&o.Permission, &o.Decision, &ts); err != nil {
			return nil, err
		}
		o.Timestamp = parseTime(ts)
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecordGrant implements Provider. The permission set is read-modified
// under the caller's per-user serialization obligation.
func (p *SQLiteProvider) RecordGrant(ctx context.Context, userID, permission string) error {
	u, err := p.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.HasPermission(permission) {
		return nil
	}
	u.CurrentPermissions = append(u.CurrentPermissions, permission)
	perms, _ := json.Marshal(u.CurrentPermissions)

	_, err = p.db.ExecContext(ctx,
		`UPDATE users SET permissions = ? WHERE user_id = ?`, string(perms), userID)
	if err != nil {
		return fmt.Errorf("usercontext: record grant %s/%s: %w", userID, permission, err)
	}
	return nil
}

// AppendHistory implements Provider.
func (p *SQLiteProvider) AppendHistory(ctx context.Context, userID string, outcome contracts.Outcome) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO request_history (user_id, permission, decision, decided_at)
		VALUES (?, ?, ?, ?)`,
		userID, outcome.Permission, string(outcome.Decision),
		outcome.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("usercontext: append history %s: %w", userID, err)
	}
	return nil
}

func parseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
