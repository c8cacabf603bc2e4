package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"vigil/internal/runstats"
)

const rowColumns = "id, recorded_at, task_id, outcome, playthrough, source_path, game_day, signature, reason, detail"

// PlaythroughSummary aggregates recorded outcomes for one playthrough.
type PlaythroughSummary struct {
	Playthrough string    `json:"playthrough"`
	Processed   int       `json:"processed"`
	Duplicates  int       `json:"duplicates"`
	Failures    int       `json:"failures"`
	LatestDay   *int64    `json:"latest_day,omitempty"`
	LastOutcome time.Time `json:"last_outcome"`
}

// DatabaseHealth carries diagnostic information about the ledger database.
type DatabaseHealth struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	TableExists      bool   `json:"table_exists"`
	RowCount         int64  `json:"row_count"`
	Error            string `json:"error,omitempty"`
}

// Recent returns the most recent rows, newest first. limit values below one
// fall back to a small default.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Row, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	if limit < 1 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ensureContext(ctx),
		fmt.Sprintf("SELECT %s FROM outcomes ORDER BY id DESC LIMIT ?", rowColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent outcomes: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Stats returns a count of rows grouped by outcome.
func (l *Ledger) Stats(ctx context.Context) (map[runstats.Outcome]int, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}

	rows, err := l.db.QueryContext(ensureContext(ctx),
		"SELECT outcome, COUNT(1) FROM outcomes GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[runstats.Outcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats[runstats.Outcome(outcome)] = count
	}
	return stats, rows.Err()
}

// PlaythroughSummaries aggregates the ledger per playthrough, ordered by
// most recent activity.
func (l *Ledger) PlaythroughSummaries(ctx context.Context) ([]PlaythroughSummary, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}

	rows, err := l.db.QueryContext(ensureContext(ctx), `
		SELECT playthrough,
			SUM(outcome = 'processed'),
			SUM(outcome IN ('duplicate_skipped', 'event_duplicate_skipped')),
			SUM(outcome IN ('error', 'unsupported_format')),
			MAX(game_day),
			MAX(recorded_at)
		FROM outcomes
		WHERE playthrough != ''
		GROUP BY playthrough
		ORDER BY MAX(recorded_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("playthrough summaries: %w", err)
	}
	defer rows.Close()

	var out []PlaythroughSummary
	for rows.Next() {
		var summary PlaythroughSummary
		var latestDay sql.NullInt64
		var lastRaw sql.NullString
		if err := rows.Scan(&summary.Playthrough, &summary.Processed, &summary.Duplicates,
			&summary.Failures, &latestDay, &lastRaw); err != nil {
			return nil, err
		}
		if latestDay.Valid {
			day := latestDay.Int64
			summary.LatestDay = &day
		}
		if lastRaw.Valid {
			summary.LastOutcome = parseTimestamp(lastRaw.String)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Prune deletes the oldest rows beyond maxRows and returns how many were
// removed.
func (l *Ledger) Prune(ctx context.Context, maxRows int64) (int64, error) {
	if l == nil || l.db == nil || maxRows < 1 {
		return 0, nil
	}

	ctx = ensureContext(ctx)
	var removed int64
	err := withBusyRetry(ctx, func() error {
		res, err := l.db.ExecContext(ctx, `
			DELETE FROM outcomes
			WHERE id NOT IN (SELECT id FROM outcomes ORDER BY id DESC LIMIT ?)`, maxRows)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return removed, nil
}

// CheckHealth returns diagnostic information about the ledger database.
func (l *Ledger) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: l.Path()}

	if health.DBPath == "" {
		return health, errors.New("history database path is unknown")
	}

	info, err := os.Stat(health.DBPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat history database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("history database path %q is a directory", health.DBPath)
	}
	health.DatabaseExists = true

	if l.db == nil {
		return health, errors.New("history database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := l.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping history database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := l.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'outcomes'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
			return health, nil
		}
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	health.TableExists = true

	if err := l.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM outcomes").Scan(&health.RowCount); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count outcomes: %w", err)
	}

	return health, nil
}

func scanRow(scanner interface{ Scan(dest ...any) error }) (Row, error) {
	var (
		row         Row
		recordedRaw string
		taskID      sql.NullString
		outcome     string
		playthrough sql.NullString
		sourcePath  sql.NullString
		gameDay     sql.NullInt64
		signature   sql.NullString
		reason      sql.NullString
		detail      sql.NullString
	)

	if err := scanner.Scan(
		&row.ID,
		&recordedRaw,
		&taskID,
		&outcome,
		&playthrough,
		&sourcePath,
		&gameDay,
		&signature,
		&reason,
		&detail,
	); err != nil {
		return Row{}, fmt.Errorf("scan outcome row: %w", err)
	}

	row.RecordedAt = parseTimestamp(recordedRaw)
	row.TaskID = taskID.String
	row.Outcome = runstats.Outcome(outcome)
	row.Playthrough = playthrough.String
	row.SourcePath = sourcePath.String
	if gameDay.Valid {
		day := gameDay.Int64
		row.GameDay = &day
	}
	row.Signature = signature.String
	row.Reason = reason.String
	row.Detail = detail.String
	return row, nil
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	return time.Time{}
}
