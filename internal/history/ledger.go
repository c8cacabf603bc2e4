package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vigil/internal/config"
	"vigil/internal/runstats"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; old databases are rejected rather than migrated since the ledger
// is observational and safe to delete.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Row is one recorded pipeline outcome.
type Row struct {
	ID          int64            `json:"id"`
	RecordedAt  time.Time        `json:"recorded_at"`
	TaskID      string           `json:"task_id,omitempty"`
	Outcome     runstats.Outcome `json:"outcome"`
	Playthrough string           `json:"playthrough,omitempty"`
	SourcePath  string           `json:"source_path,omitempty"`
	GameDay     *int64           `json:"game_day,omitempty"`
	Signature   string           `json:"signature,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Detail      string           `json:"detail,omitempty"`
}

// Ledger manages outcome persistence backed by SQLite.
type Ledger struct {
	db   *sql.DB
	path string
}

// SQLITE_BUSY is result code 5. Writes that hit it are retried with
// backoff since WAL mode only ever blocks on a concurrent writer.
const sqliteBusyResult = 5

const (
	busyMaxAttempts = 5
	busyBaseDelay   = 10 * time.Millisecond
	busyMaxDelay    = 200 * time.Millisecond
)

var startupPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// Open initializes or connects to the outcome database under the log
// directory.
func Open(cfg *config.Config) (*Ledger, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.HistoryDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	ledger := &Ledger{db: db, path: dbPath}
	if err := ledger.prepare(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// prepare applies connection pragmas and brings the schema up.
func (l *Ledger) prepare(ctx context.Context) error {
	for _, pragma := range startupPragmas {
		if _, err := l.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return l.initSchema(ctx)
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns where the database file lives on disk.
func (l *Ledger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Record inserts one outcome row. A nil ledger is a no-op so callers can
// treat the ledger as optional.
func (l *Ledger) Record(ctx context.Context, row Row) error {
	if l == nil || l.db == nil {
		return nil
	}

	recordedAt := row.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var gameDay any
	if row.GameDay != nil {
		gameDay = *row.GameDay
	}

	return l.exec(ctx, `
		INSERT INTO outcomes (recorded_at, task_id, outcome, playthrough, source_path, game_day, signature, reason, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordedAt.UTC().Format(time.RFC3339Nano),
		row.TaskID,
		string(row.Outcome),
		row.Playthrough,
		row.SourcePath,
		gameDay,
		row.Signature,
		row.Reason,
		row.Detail,
	)
}

func (l *Ledger) initSchema(ctx context.Context) error {
	var count int
	row := l.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if count == 0 {
		return l.createSchema(ctx)
	}
	return l.verifySchemaVersion(ctx)
}

func (l *Ledger) verifySchemaVersion(ctx context.Context) error {
	var version int
	row := l.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}
	return fmt.Errorf("%w: database has version %d, expected %d (delete the history database to recreate it)",
		ErrSchemaMismatch, version, schemaVersion)
}

func (l *Ledger) createSchema(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	if strings.Contains(text, "SQLITE_BUSY") || strings.Contains(text, "database is locked") {
		return true
	}
	var coder interface{ Code() int }
	return errors.As(err, &coder) && coder.Code() == sqliteBusyResult
}

// withBusyRetry runs op up to busyMaxAttempts times, sleeping with doubling
// backoff between attempts that failed with a busy error. Any other error
// returns immediately.
func withBusyRetry(ctx context.Context, op func() error) error {
	delay := busyBaseDelay
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !isBusyError(err) || attempt == busyMaxAttempts {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > busyMaxDelay {
			delay = busyMaxDelay
		}
	}
}

func (l *Ledger) exec(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return withBusyRetry(ctx, func() error {
		_, err := l.db.ExecContext(ctx, query, args...)
		return err
	})
}
