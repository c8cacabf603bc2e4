package logging_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/logging"
	"vigil/internal/services"
)

func fileLogger(t *testing.T, format, level string) (*slog.Logger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "vigil-test.log")
	logger, err := logging.New(logging.Options{
		Format:       format,
		Level:        level,
		Outputs:      []string{logPath},
		ErrorOutputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return logger, logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerRendersFields(t *testing.T) {
	logger, logPath := fileLogger(t, "console", "info")

	logger.Info("snapshot captured",
		logging.String("playthrough", "sweden_1836"),
		logging.String("detail", "copied after retry"),
		logging.Int("attempts", 2))

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO snapshot captured") {
		t.Fatalf("expected level and message in output, got %q", content)
	}
	if !strings.Contains(content, "playthrough=sweden_1836") {
		t.Fatalf("expected bare key=value field, got %q", content)
	}
	if !strings.Contains(content, `detail="copied after retry"`) {
		t.Fatalf("expected quoted value with spaces, got %q", content)
	}
	if !strings.Contains(content, "attempts=2") {
		t.Fatalf("expected integer field, got %q", content)
	}
}

func TestConsoleLoggerPromotesComponent(t *testing.T) {
	logger, logPath := fileLogger(t, "console", "info")

	logging.NewComponentLogger(logger, "monitor").Info("watching save directory")

	content := readLog(t, logPath)
	if !strings.Contains(content, "monitor: watching save directory") {
		t.Fatalf("expected component prefix in message, got %q", content)
	}
	if strings.Contains(content, "component=") {
		t.Fatalf("component should not render as a field, got %q", content)
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logger, logPath := fileLogger(t, "console", "info")

	logger.Info("message without source")

	if content := readLog(t, logPath); strings.Contains(content, ".go:") {
		t.Fatalf("expected no source location at info level, got %q", content)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logger, logPath := fileLogger(t, "console", "debug")

	logger.Info("message with source")

	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected source location at debug level, got %q", content)
	}
}

func TestDuplicateOutputsWriteOnce(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "vigil-test.log")
	logger, err := logging.New(logging.Options{
		Format:       "console",
		Level:        "info",
		Outputs:      []string{logPath, logPath},
		ErrorOutputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("deduplicated sink")

	if content := readLog(t, logPath); strings.Count(content, "deduplicated sink") != 1 {
		t.Fatalf("expected exactly one line, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewJSONUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "vigil-test.log")
	logger, err := logging.New(logging.Options{
		Format:       "json",
		Level:        "info",
		Outputs:      []string{logPath},
		ErrorOutputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("json message", logging.String("k", "v"))

	content := readLog(t, logPath)
	for _, want := range []string{`"ts":"`, `"level":"info"`, `"msg":"json message"`, `"k":"v"`} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %s in JSON output, got %q", want, content)
		}
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	logger, logPath := fileLogger(t, "console", "chatty")

	logger.Debug("suppressed")
	logger.Info("kept")

	content := readLog(t, logPath)
	if strings.Contains(content, "suppressed") {
		t.Fatalf("expected debug line to be suppressed, got %q", content)
	}
	if !strings.Contains(content, "kept") {
		t.Fatalf("expected info line to pass, got %q", content)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logger, logPath := fileLogger(t, "console", "info")

	ctx := services.WithTaskID(context.Background(), "task-42")
	ctx = services.WithStage(ctx, "capture")
	ctx = services.WithPlaythrough(ctx, "sweden_1836")

	logging.WithContext(ctx, logger).Info("contextual line")

	content := readLog(t, logPath)
	for _, want := range []string{"task_id=task-42", "stage=capture", "playthrough=sweden_1836"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %s in output, got %q", want, content)
		}
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	logger, logPath := fileLogger(t, "console", "info")

	logging.WarnWithContext(logger, "melter unavailable", "melter_missing")

	content := readLog(t, logPath)
	if !strings.Contains(content, "event_type=melter_missing") {
		t.Fatalf("expected event type field, got %q", content)
	}
	if !strings.Contains(content, `error_hint="check logs for details"`) {
		t.Fatalf("expected default hint, got %q", content)
	}
	if !strings.Contains(content, `impact="operation completed with warnings"`) {
		t.Fatalf("expected default impact, got %q", content)
	}
}

func TestWarnWithContextKeepsCallerFields(t *testing.T) {
	logger, logPath := fileLogger(t, "console", "info")

	logging.WarnWithContext(logger, "copy failed", "copy_failed",
		logging.String(logging.FieldErrorHint, "check save directory permissions"))

	content := readLog(t, logPath)
	if !strings.Contains(content, `error_hint="check save directory permissions"`) {
		t.Fatalf("expected caller hint to win, got %q", content)
	}
	if strings.Contains(content, "check logs for details") {
		t.Fatalf("default hint should not override caller's, got %q", content)
	}
}
