package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/dialog-trainer/internal/domain"
	"github.com/ashureev/dialog-trainer/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts  = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dialog_bindings (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		scenario_id INTEGER NOT NULL,
		dialog_id INTEGER NOT NULL,
		timed_mode INTEGER NOT NULL DEFAULT 0,
		phase TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id, scenario_id)
	);
	CREATE INDEX IF NOT EXISTS idx_bindings_dialog ON dialog_bindings(user_id, dialog_id);
	CREATE INDEX IF NOT EXISTS idx_bindings_updated ON dialog_bindings(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

const bindingColumns = `user_id, session_id, scenario_id, dialog_id, timed_mode,
		       phase, started_at, ended_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (*domain.DialogBinding, error) {
	var b domain.DialogBinding
	var phase string
	var startedAt, updatedAt int64
	var endedAt sql.NullInt64

	if err := row.Scan(
		&b.UserID, &b.SessionID, &b.ScenarioID, &b.DialogID, &b.TimedMode,
		&phase, &startedAt, &endedAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	b.Phase = domain.Phase(phase)
	b.StartedAt = time.Unix(startedAt, 0)
	b.UpdatedAt = time.Unix(updatedAt, 0)
	if endedAt.Valid {
		ts := time.Unix(endedAt.Int64, 0)
		b.EndedAt = &ts
	}
	return &b, nil
}

// GetActiveBinding returns the open binding of a tab for a scenario.
func (s *SQLiteStore) GetActiveBinding(ctx context.Context, userID, sessionID string, scenarioID int64) (*domain.DialogBinding, error) {
	query := `SELECT ` + bindingColumns + `
		FROM dialog_bindings
		WHERE user_id = ? AND session_id = ? AND scenario_id = ? AND ended_at IS NULL`

	b, err := scanBinding(s.db.QueryRowContext(ctx, query, userID, sessionID, scenarioID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan binding row: %w", err)
	}
	return b, nil
}

// UpsertBinding creates or replaces the binding for (user, tab, scenario).
// It retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) UpsertBinding(ctx context.Context, b *domain.DialogBinding) error {
	query := `
	INSERT INTO dialog_bindings (` + bindingColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, session_id, scenario_id) DO UPDATE SET
		dialog_id = excluded.dialog_id,
		timed_mode = excluded.timed_mode,
		phase = excluded.phase,
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		updated_at = excluded.updated_at`

	var endedAt any
	if b.EndedAt != nil {
		endedAt = b.EndedAt.Unix()
	}
	updatedAt := b.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	err := shared.RetryOnConflict(ctx, writeAttempts, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			b.UserID, b.SessionID, b.ScenarioID, b.DialogID, b.TimedMode,
			string(b.Phase), b.StartedAt.Unix(), endedAt, updatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}

// MarkBindingEnded records that a bound dialog has terminated. ended_at is
// only set once.
func (s *SQLiteStore) MarkBindingEnded(ctx context.Context, userID string, dialogID int64, endedAt time.Time) error {
	query := `
		UPDATE dialog_bindings
		SET phase = ?, ended_at = COALESCE(ended_at, ?), updated_at = ?
		WHERE user_id = ? AND dialog_id = ?`

	var rows int64
	err := shared.RetryOnConflict(ctx, writeAttempts, writeBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, query,
			string(domain.PhaseTerminated), endedAt.Unix(), time.Now().Unix(), userID, dialogID,
		)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("mark binding ended: %w", err)
	}
	if rows == 0 {
		slog.Warn("MarkBindingEnded affected 0 rows", "user_id", userID, "dialog_id", dialogID)
	}
	return nil
}

// ListBindings returns a user's bindings, most recently updated first.
func (s *SQLiteStore) ListBindings(ctx context.Context, userID string) ([]*domain.DialogBinding, error) {
	query := `SELECT ` + bindingColumns + `
		FROM dialog_bindings WHERE user_id = ?
		ORDER BY updated_at DESC, dialog_id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close binding rows", "error", closeErr)
		}
	}()

	var bindings []*domain.DialogBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding row: %w", err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}
	return bindings, nil
}

// CleanupStaleBindings removes bindings not updated within ttl.
func (s *SQLiteStore) CleanupStaleBindings(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	var n int64
	err := shared.RetryOnConflict(ctx, writeAttempts, writeBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM dialog_bindings WHERE updated_at < ?`, threshold)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup stale bindings: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
