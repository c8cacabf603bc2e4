package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil/internal/fileutil"
	"vigil/internal/logging"
	"vigil/internal/playthrough"
	"vigil/internal/runstats"
	"vigil/internal/sigstore"
)

// timestampFragment renders t in the compact form embedded in snapshot and
// data point names: YYYYMMDD_HHMMSS_microseconds.
func timestampFragment(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// nextUniquePath appends a numeric suffix until the name is free. Collisions
// are rare (names carry a microsecond timestamp) but two saves captured in
// the same tick must both survive.
func nextUniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for idx := 1; ; idx++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, idx, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// isWatchTarget reports whether path is a save file inside the watched
// directory. Editors and the game itself drop temp files next to saves;
// everything without the save extension is ignored outright.
func (m *Monitor) isWatchTarget(path string) bool {
	if strings.ToLower(filepath.Ext(path)) != m.cfg.Monitor.Extension {
		return false
	}
	return sigstore.PathKey(filepath.Dir(path)) == m.watchKey
}

// isRotationSlot reports whether the save name marks a rotating slot the
// game will overwrite, in which case the snapshot may take the file instead
// of copying it.
func (m *Monitor) isRotationSlot(path string) bool {
	marker := m.cfg.Monitor.RotationMarker
	if marker == "" {
		return false
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Contains(strings.ToLower(stem), marker)
}

func (m *Monitor) moveWithRetries(src, dst string) error {
	var lastErr error
	for attempt := 0; attempt < m.cfg.Monitor.CopyRetries; attempt++ {
		if lastErr = fileutil.MoveFile(src, dst); lastErr == nil {
			return nil
		}
		time.Sleep(m.cfg.CopyRetryDelay())
	}
	return lastErr
}

func (m *Monitor) copyWithRetries(src, dst string) error {
	var lastErr error
	for attempt := 0; attempt < m.cfg.Monitor.CopyRetries; attempt++ {
		if lastErr = fileutil.CopyFileVerified(src, dst); lastErr == nil {
			return nil
		}
		time.Sleep(m.cfg.CopyRetryDelay())
	}
	return lastErr
}

// captureTask turns one change notification into at most one queued task.
// It filters non-saves, waits for the file to stabilize, drops events whose
// signature matches the last capture of the same path, and quarantines a
// snapshot. A nil return means nothing was queued; counters and logs already
// reflect why.
func (m *Monitor) captureTask(ctx context.Context, path, reason string) *Task {
	if !m.isWatchTarget(path) {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		// Temp files vanish between the event and now. Not worth noise.
		return nil
	}

	stable, observed := waitForStable(path, m.cfg.SignaturePoll(), m.cfg.Debounce(), m.cfg.StabilizeTimeout())
	if !observed {
		m.stats.Record(runstats.Error)
		logging.WarnWithContext(m.logger, "save did not stabilize in time", "stabilize_timeout",
			logging.String(logging.FieldPath, path),
			logging.Duration("waited", m.cfg.StabilizeTimeout()),
			logging.String(logging.FieldErrorHint, "raise stabilize_timeout_seconds if saves are large"),
			logging.String(logging.FieldImpact, "this save change was not captured"))
		m.recordOutcome(ctx, runstats.Error, &Task{SourcePath: path, Reason: reason}, nil, "save did not stabilize in time")
		return nil
	}

	pathKey := sigstore.PathKey(path)
	if previous, known := m.store.Signature(pathKey); known && previous == stable {
		m.stats.Record(runstats.EventDuplicateSkipped)
		m.logger.Debug("event duplicate skipped",
			logging.String(logging.FieldPath, path),
			logging.String("signature", stable.Key()),
			logging.String(logging.FieldEventType, "event_duplicate"))
		m.recordOutcome(ctx, runstats.EventDuplicateSkipped, &Task{SourcePath: path, Signature: stable, Reason: reason}, nil, "")
		return nil
	}

	playthroughID := playthrough.Identify(path)
	task := m.snapshotTask(ctx, path, playthroughID, stable, reason)
	if task == nil {
		m.stats.Record(runstats.Error)
		m.recordOutcome(ctx, runstats.Error, &Task{SourcePath: path, Signature: stable, Playthrough: playthroughID, Reason: reason}, nil, "snapshot capture failed")
		return nil
	}

	if err := m.store.SetSignature(pathKey, stable); err != nil {
		m.logger.Warn("failed to persist monitor state",
			logging.Error(err),
			logging.String(logging.FieldEventType, "state_save_failed"),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			logging.String(logging.FieldImpact, "this save may be captured again after a restart"))
	}
	return task
}

// snapshotTask copies or moves the save into the quarantine area and wraps
// it in a Task. Rotating slots are moved when possible so the next rotation
// cannot overwrite the capture mid-read; anything else is copied with
// verification since the game still owns the file.
func (m *Monitor) snapshotTask(ctx context.Context, sourcePath, playthroughID string, stable sigstore.Signature, reason string) *Task {
	queueDir := filepath.Join(m.cfg.QuarantineDir(), playthroughID)
	if err := os.MkdirAll(queueDir, 0o755); err != nil {
		m.logger.Warn("failed to create quarantine directory",
			logging.Error(err),
			logging.String(logging.FieldPath, queueDir),
			logging.String(logging.FieldEventType, "quarantine_dir_failed"),
			logging.String(logging.FieldImpact, "this save change was not captured"))
		return nil
	}

	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	queueName := fmt.Sprintf("%s_%s_%s%s", stem, timestampFragment(time.Now()), stable.Fragment(), ext)
	queuedPath := nextUniquePath(filepath.Join(queueDir, queueName))

	captured := false
	if m.isRotationSlot(sourcePath) {
		if err := m.moveWithRetries(sourcePath, queuedPath); err == nil {
			captured = true
		} else {
			m.logger.Debug("could not move rotating save, falling back to copy",
				logging.Error(err),
				logging.String(logging.FieldPath, sourcePath))
		}
	}
	if !captured {
		if _, err := os.Stat(sourcePath); err != nil {
			m.logger.Warn("save disappeared before snapshot capture",
				logging.String(logging.FieldPath, sourcePath),
				logging.String(logging.FieldEventType, "save_vanished"),
				logging.String(logging.FieldImpact, "this save change was not captured"))
			return nil
		}
		if err := m.copyWithRetries(sourcePath, queuedPath); err != nil {
			m.logger.Warn("could not capture save snapshot",
				logging.Error(err),
				logging.String(logging.FieldPath, sourcePath),
				logging.String(logging.FieldEventType, "capture_failed"),
				logging.String(logging.FieldErrorHint, "check disk space and permissions"),
				logging.String(logging.FieldImpact, "this save change was not captured"))
			return nil
		}
	}

	task := &Task{
		ID:          uuid.NewString(),
		QueuedPath:  queuedPath,
		SourcePath:  sourcePath,
		Signature:   stable,
		Playthrough: playthroughID,
		Reason:      reason,
		QueuedAt:    time.Now(),
	}
	m.stats.Record(runstats.Captured)
	m.recordOutcome(ctx, runstats.Captured, task, nil, "")
	m.logger.Info("captured save snapshot",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldPath, sourcePath),
		logging.String(logging.FieldPlaythrough, playthroughID),
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "save_captured"))
	return task
}
