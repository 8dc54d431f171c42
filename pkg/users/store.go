package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists users in the shared charla database.
type Store struct {
	db *sql.DB
}

// NewStore ensures the users schema and returns a Store.
func NewStore(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			identity TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			level TEXT NOT NULL DEFAULT 'guest',
			registered INTEGER NOT NULL DEFAULT 0,
			last_activity INTEGER NOT NULL,
			prefs TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}
	return &Store{db: db}, nil
}

// FindByIdentity returns the user for the identity, or nil when unknown.
func (s *Store) FindByIdentity(ctx context.Context, identity string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, display_name, level, registered, last_activity, prefs, created_at, updated_at
		FROM users
		WHERE identity = ?
	`, identity)
	return scanUser(row)
}

// Create inserts a user. Creating over an existing identity degrades to
// an update of the mutable fields; the first write owns the identity.
func (s *Store) Create(ctx context.Context, u *User) (*User, error) {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.LastActivity.IsZero() {
		u.LastActivity = now
	}
	u.UpdatedAt = now

	prefs, err := encodePrefs(u.Prefs)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (identity, display_name, level, registered, last_activity, prefs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			display_name = excluded.display_name,
			level = excluded.level,
			registered = excluded.registered,
			last_activity = excluded.last_activity,
			prefs = excluded.prefs,
			updated_at = excluded.updated_at
	`, u.Identity, u.DisplayName, u.Level.String(), boolToInt(u.Registered),
		u.LastActivity.Unix(), prefs, u.CreatedAt.Unix(), u.UpdatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.FindByIdentity(ctx, u.Identity)
}

// Ensure returns the user for the identity, creating a fresh guest
// record on first contact.
func (s *Store) Ensure(ctx context.Context, identity string) (*User, error) {
	existing, err := s.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.Create(ctx, &User{
		Identity: identity,
		Level:    LevelGuest,
	})
}

// Update applies a partial mutation and returns the stored result.
func (s *Store) Update(ctx context.Context, identity string, upd Update) (*User, error) {
	u, err := s.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s not found", identity)
	}

	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.Level != nil {
		u.Level = *upd.Level
	}
	if upd.Registered != nil {
		u.Registered = *upd.Registered
	}
	if upd.Prefs != nil {
		if u.Prefs == nil {
			u.Prefs = make(map[string]string, len(upd.Prefs))
		}
		for k, v := range upd.Prefs {
			u.Prefs[k] = v
		}
	}
	u.UpdatedAt = time.Now()

	prefs, err := encodePrefs(u.Prefs)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users
		SET display_name = ?, level = ?, registered = ?, prefs = ?, updated_at = ?
		WHERE identity = ?
	`, u.DisplayName, u.Level.String(), boolToInt(u.Registered), prefs, u.UpdatedAt.Unix(), identity)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return u, nil
}

// TouchActivity records that the user was just seen.
func (s *Store) TouchActivity(ctx context.Context, identity string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_activity = ?, updated_at = ? WHERE identity = ?
	`, now, now, identity)
	if err != nil {
		return fmt.Errorf("failed to touch activity: %w", err)
	}
	return nil
}

// Count returns the number of known users.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u            User
		level        string
		registered   int
		lastActivity int64
		prefs        string
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(&u.Identity, &u.DisplayName, &level, &registered,
		&lastActivity, &prefs, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Level, _ = ParseLevel(level)
	u.Registered = registered != 0
	u.LastActivity = time.Unix(lastActivity, 0)
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)

	if prefs != "" && prefs != "{}" {
		if err := json.Unmarshal([]byte(prefs), &u.Prefs); err != nil {
			return nil, fmt.Errorf("failed to decode prefs: %w", err)
		}
	}

	return &u, nil
}

func encodePrefs(prefs map[string]string) (string, error) {
	if len(prefs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return "", fmt.Errorf("failed to encode prefs: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
