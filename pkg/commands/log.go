package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Log is the append-only record of command executions. Diagnostics
// only: dispatch logic never reads it back.
type Log struct {
	db *sql.DB
}

// LogEntry is one recorded execution.
type LogEntry struct {
	ID         string
	Command    string
	UserID     string
	Args       string
	Success    bool
	ExecutedAt time.Time
}

// NewLog creates the command_logs table if needed.
func NewLog(db *sql.DB) (*Log, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS command_logs (
		id            TEXT PRIMARY KEY,
		command       TEXT NOT NULL,
		user_identity TEXT NOT NULL,
		args          TEXT NOT NULL DEFAULT '',
		success       INTEGER NOT NULL,
		executed_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_command_logs_time ON command_logs(executed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create command_logs table: %w", err)
	}
	return &Log{db: db}, nil
}

// Append records one execution.
func (l *Log) Append(ctx context.Context, command, userID string, args []string, success bool) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO command_logs (id, command, user_identity, args, success, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), command, userID, strings.Join(args, " "),
		boolToInt(success), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append command log: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, command, user_identity, args, success, executed_at
		FROM command_logs ORDER BY executed_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("read command logs: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e       LogEntry
			success int
			at      int64
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.UserID, &e.Args, &success, &at); err != nil {
			return nil, fmt.Errorf("scan command log row: %w", err)
		}
		e.Success = success == 1
		e.ExecutedAt = time.Unix(at, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
