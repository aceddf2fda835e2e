package usercontext

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/uam-labs/arbiter/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresProvider is the Provider backing for multi-process deployments.
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgresProvider wraps an open database handle and creates the schema.
func NewPostgresProvider(db *sql.DB) (*PostgresProvider, error) {
	p := &PostgresProvider{db: db}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgresProvider) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		department TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		clearance_level INTEGER NOT NULL DEFAULT 0,
		permissions JSONB NOT NULL DEFAULT '[]',
		trainings JSONB NOT NULL DEFAULT '[]'
	);
	CREATE TABLE IF NOT EXISTS request_history (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		permission TEXT NOT NULL,
		decision TEXT NOT NULL,
		decided_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_user ON request_history(user_id);`
	_, err := p.db.ExecContext(context.Background(), query)
	return err
}

// Upsert seeds or replaces a user's stored attributes.
func (p *PostgresProvider) Upsert(ctx context.Context, user *contracts.UserContext) error {
	perms, _ := json.Marshal(user.CurrentPermissions)
	trainings, _ := json.Marshal(user.CompletedTrainings)

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (user_id, department, role, clearance_level, permissions, trainings)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			department = EXCLUDED.department,
			role = EXCLUDED.role,
			clearance_level = EXCLUDED.clearance_level,
			permissions = EXCLUDED.permissions,
			trainings = EXCLUDED.trainings`,
		user.UserID, user.Department, user.Role, user.ClearanceLevel, string(perms), string(trainings),
	)
	if err != nil {
		return fmt.Errorf("usercontext: upsert %s: %w", user.UserID, err)
	}
	return nil
}

// Get implements Provider.
func (p *PostgresProvider) Get(ctx context.Context, userID string) (*contracts.UserContext, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT user_id, department, role, clearance_level, permissions, trainings
		FROM users WHERE user_id = $1`, userID)

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

	rows, err := p.db.QueryContext(ctx, `
		SELECT permission, decision, decided_at
		FROM request_history WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("usercontext: history %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var o contracts.Outcome
		if err := rows.Scan(&o.Permission, &o.Decision, &o.Timestamp); err != nil {
			return nil, err
		}
		u.History = append(u.History, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &u, nil
}

// RecordGrant implements Provider using a JSONB append that is a no-op
// when the permission is already present.
func (p *PostgresProvider) RecordGrant(ctx context.Context, userID, permission string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users
		SET permissions = permissions || to_jsonb($2::text)
		WHERE user_id = $1 AND NOT permissions ? $2`,
		userID, permission)
	if err != nil {
		return fmt.Errorf("usercontext: record grant %s/%s: %w", userID, permission, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either the user is unknown or the permission already exists;
		// distinguish so callers see ErrUnknownUser.
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return contracts.ErrUnknownUser
		}
	}
	return nil
}

// AppendHistory implements Provider.
func (p *PostgresProvider) AppendHistory(ctx context.Context, userID string, outcome contracts.Outcome) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO request_history (user_id, permission, decision, decided_at)
		VALUES ($1, $2, $3, $4)`,
		userID, outcome.Permission, string(outcome.Decision), outcome.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("usercontext: append history %s: %w", userID, err)
	}
	return nil
}
