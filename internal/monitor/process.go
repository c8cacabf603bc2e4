package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vigil/internal/logging"
	"vigil/internal/runstats"
	"vigil/internal/services"
)

// processTask runs one quarantined snapshot through extraction, timeline
// enrichment, deduplication, data point persistence, and archival. Exactly
// one outcome counter moves per task, and the snapshot is archived whenever
// extraction produced a result, duplicate or not; only extraction failures
// leave it in quarantine for inspection.
func (m *Monitor) processTask(ctx context.Context, task *Task) {
	ctx = services.WithTaskID(ctx, task.ID)
	ctx = services.WithStage(ctx, "process")
	ctx = services.WithPlaythrough(ctx, task.Playthrough)
	logger := logging.WithContext(ctx, m.logger)

	if _, err := os.Stat(task.QueuedPath); err != nil {
		m.stats.Record(runstats.Error)
		logger.Warn("queued snapshot missing",
			logging.String(logging.FieldPath, task.QueuedPath),
			logging.String(logging.FieldEventType, "snapshot_missing"),
			logging.String(logging.FieldErrorHint, "something outside the pipeline removed the quarantine file"),
			logging.String(logging.FieldImpact, "this capture was lost"))
		m.recordOutcome(ctx, runstats.Error, task, nil, "queued snapshot missing")
		return
	}

	result, err := m.extractor.Extract(ctx, task.QueuedPath, task.Playthrough)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRuntimeUnavailable):
			m.stats.Record(runstats.Error)
			logging.ErrorWithContext(logger, "save parser runtime unavailable", "parser_runtime_unavailable",
				logging.Error(err),
				logging.String(logging.FieldPath, task.QueuedPath),
				logging.String(logging.FieldErrorHint, "reinstall or update the melter binary to restore binary save support"),
				logging.Alert("melter_unavailable"))
			m.recordOutcome(ctx, runstats.Error, task, nil, err.Error())
		case errors.Is(err, services.ErrUnsupportedFormat):
			m.stats.Record(runstats.UnsupportedFormat)
			logger.Warn("save format not supported",
				logging.Error(err),
				logging.String(logging.FieldPath, task.QueuedPath),
				logging.String(logging.FieldEventType, "unsupported_format"),
				logging.String(logging.FieldErrorHint, "snapshot stays in quarantine for inspection"),
				logging.String(logging.FieldImpact, "this save was skipped; monitoring continues"))
			m.recordOutcome(ctx, runstats.UnsupportedFormat, task, nil, err.Error())
		default:
			m.stats.Record(runstats.Error)
			logger.Error("failed to extract save snapshot",
				logging.Error(err),
				logging.String(logging.FieldPath, task.QueuedPath),
				logging.String(logging.FieldEventType, "extract_failed"))
			m.recordOutcome(ctx, runstats.Error, task, nil, err.Error())
		}
		return
	}
	if result == nil || len(result.Metadata) == 0 {
		m.stats.Record(runstats.Error)
		logger.Error("extractor returned no data",
			logging.String(logging.FieldPath, task.QueuedPath),
			logging.String(logging.FieldEventType, "extract_empty"))
		m.recordOutcome(ctx, runstats.Error, task, nil, "extractor returned no data")
		return
	}

	metadata := enrichTimeline(result, task.SourcePath, task.Signature)

	var gameDay *int
	if raw, present := metadata[MetaGameDay]; present {
		if dayValue, valid := coerceGameDay(raw); valid {
			metadata[MetaGameDay] = dayValue
			gameDay = &dayValue
		} else {
			delete(metadata, MetaGameDay)
		}
	}

	recorded := true
	var duplicateOf string
	if gameDay != nil {
		if m.store.HasSeenGameDay(task.Playthrough, *gameDay) {
			recorded = false
			duplicateOf = fmt.Sprintf("game day %d", *gameDay)
		} else {
			m.store.MarkGameDay(task.Playthrough, *gameDay)
		}
	} else {
		key := task.Signature.Key()
		if m.store.HasSeenSignatureKey(key) {
			recorded = false
			duplicateOf = fmt.Sprintf("signature %s", key)
		} else {
			m.store.MarkSignatureKey(key)
		}
	}

	if recorded {
		m.saveDataPoint(task, result, logger)
		m.stats.Record(runstats.Processed)
		m.recordOutcome(ctx, runstats.Processed, task, gameDay, "")
		attrs := []logging.Attr{
			logging.String(logging.FieldPath, task.SourcePath),
			logging.String("timeline_source", timelineSource(metadata)),
			logging.String("reason", task.Reason),
			logging.String(logging.FieldEventType, "save_processed"),
		}
		if gameDay != nil {
			attrs = append(attrs, logging.Int(logging.FieldGameDay, *gameDay))
		}
		logger.Info("processed save snapshot", logging.Args(attrs...)...)
	} else {
		m.stats.Record(runstats.DuplicateSkipped)
		m.recordOutcome(ctx, runstats.DuplicateSkipped, task, gameDay, duplicateOf)
		logger.Info("duplicate snapshot skipped",
			logging.String(logging.FieldPath, task.SourcePath),
			logging.String("duplicate_of", duplicateOf),
			logging.String(logging.FieldEventType, "duplicate_skipped"))
	}

	if err := m.store.Flush(); err != nil {
		logger.Warn("failed to persist monitor state",
			logging.Error(err),
			logging.String(logging.FieldEventType, "state_save_failed"),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			logging.String(logging.FieldImpact, "duplicates may be reprocessed after a restart"))
	}

	m.archiveSnapshot(task, gameDay, logger)
}

// saveDataPoint writes the extracted observation to the per-playthrough data
// directory. Persistence failures are logged but do not fail the task; the
// snapshot archive still preserves the save itself.
func (m *Monitor) saveDataPoint(task *Task, dp *DataPoint, logger *slog.Logger) {
	dir := filepath.Join(m.cfg.Paths.DataDir, task.Playthrough)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("could not create data point directory",
			logging.Error(err),
			logging.String(logging.FieldPath, dir),
			logging.String(logging.FieldEventType, "data_point_failed"),
			logging.String(logging.FieldImpact, "extraction result was not stored"))
		return
	}

	name := fmt.Sprintf("data_%s.json", timestampFragment(time.Now()))
	path := nextUniquePath(filepath.Join(dir, name))

	payload, err := json.MarshalIndent(dp, "", "  ")
	if err == nil {
		err = os.WriteFile(path, payload, 0o644)
	}
	if err != nil {
		logger.Warn("could not write data point",
			logging.Error(err),
			logging.String(logging.FieldPath, path),
			logging.String(logging.FieldEventType, "data_point_failed"),
			logging.String(logging.FieldImpact, "extraction result was not stored"))
	}
}

// archiveSnapshot moves the quarantined snapshot into the per-playthrough
// archive, named after the original save and its game day when one is known.
// Archival is best effort: a stuck file stays in quarantine and is reported,
// never retried across restarts.
func (m *Monitor) archiveSnapshot(task *Task, gameDay *int, logger *slog.Logger) {
	if _, err := os.Stat(task.QueuedPath); err != nil {
		return
	}

	dir := filepath.Join(m.cfg.ArchiveDir(), task.Playthrough)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("could not create archive directory",
			logging.Error(err),
			logging.String(logging.FieldPath, dir),
			logging.String(logging.FieldEventType, "archive_failed"),
			logging.String(logging.FieldImpact, "snapshot remains in quarantine"))
		return
	}

	sourceBase := filepath.Base(task.SourcePath)
	ext := filepath.Ext(sourceBase)
	stem := strings.TrimSuffix(sourceBase, ext)
	stamp := timestampFragment(time.Now())

	var name string
	if gameDay != nil {
		name = fmt.Sprintf("%s_day%d_%s%s", stem, *gameDay, stamp, ext)
	} else {
		name = fmt.Sprintf("%s_%s%s", stem, stamp, ext)
	}
	destination := nextUniquePath(filepath.Join(dir, name))

	if err := m.moveWithRetries(task.QueuedPath, destination); err != nil {
		logger.Warn("could not archive save snapshot",
			logging.Error(err),
			logging.String(logging.FieldPath, task.QueuedPath),
			logging.String(logging.FieldEventType, "archive_failed"),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			logging.String(logging.FieldImpact, "snapshot remains in quarantine"))
		return
	}
	logger.Debug("archived save snapshot", logging.String(logging.FieldPath, destination))
}

func timelineSource(metadata map[string]any) string {
	if source, ok := metadata[MetaTimelineSource].(string); ok {
		return source
	}
	return ""
}
