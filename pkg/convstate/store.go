package convstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLStore is the write-through persistence behind Manager. One row per
// user; rewrites in place on every transition.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates the contexts table if needed.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS contexts (
		user_identity    TEXT PRIMARY KEY,
		ctx_type         TEXT NOT NULL,
		step             TEXT NOT NULL,
		data             TEXT NOT NULL DEFAULT '{}',
		created_at       INTEGER NOT NULL,
		last_interaction INTEGER NOT NULL,
		expires_at       INTEGER NOT NULL,
		active           INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_contexts_active ON contexts(active, expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create contexts table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Save upserts the context row.
func (s *SQLStore) Save(ctx context.Context, c *Context) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("encode context data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contexts (user_identity, ctx_type, step, data, created_at, last_interaction, expires_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_identity) DO UPDATE SET
			ctx_type = excluded.ctx_type,
			step = excluded.step,
			data = excluded.data,
			created_at = excluded.created_at,
			last_interaction = excluded.last_interaction,
			expires_at = excluded.expires_at,
			active = excluded.active`,
		c.UserID, c.Type, c.Step, string(data),
		c.Created.Unix(), c.LastInteraction.Unix(), c.ExpiresAt.Unix(),
		boolToInt(c.Active),
	)
	if err != nil {
		return fmt.Errorf("save context for %s: %w", c.UserID, err)
	}
	return nil
}

// LoadActive returns every row still marked active. The manager decides
// which of them actually survived their TTL.
func (s *SQLStore) LoadActive(ctx context.Context) ([]*Context, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_identity, ctx_type, step, data, created_at, last_interaction, expires_at, active
		FROM contexts WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("load active contexts: %w", err)
	}
	defer rows.Close()

	var out []*Context
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContext(rows *sql.Rows) (*Context, error) {
	var (
		c                         Context
		data                      string
		created, interact, expire int64
		active                    int
	)
	if err := rows.Scan(&c.UserID, &c.Type, &c.Step, &data, &created, &interact, &expire, &active); err != nil {
		return nil, fmt.Errorf("scan context row: %w", err)
	}

	c.Data = make(map[string]any)
	if data != "" {
		if err := json.Unmarshal([]byte(data), &c.Data); err != nil {
			return nil, fmt.Errorf("decode context data for %s: %w", c.UserID, err)
		}
	}
	c.Created = time.Unix(created, 0)
	c.LastInteraction = time.Unix(interact, 0)
	c.ExpiresAt = time.Unix(expire, 0)
	c.Active = active == 1
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
