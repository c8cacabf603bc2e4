package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"vigil/internal/history"
	"vigil/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Monitor", statusWarn, "Offline", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Monitor:", "[WARN] Offline")
	if got != want {
		t.Fatalf("plain line = %q, want %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Monitor", statusOK, "Tracking sweden_1836", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("colored OK line missing green prefix: %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("colored line never resets: %q", got)
	}
}

func TestCheckKind(t *testing.T) {
	if kind := checkKind(preflight.Result{Passed: true}); kind != statusOK {
		t.Fatalf("passed check should be OK, got %v", kind)
	}
	if kind := checkKind(preflight.Result{Optional: true}); kind != statusWarn {
		t.Fatalf("failed optional check should be WARN, got %v", kind)
	}
	if kind := checkKind(preflight.Result{}); kind != statusError {
		t.Fatalf("failed check should be ERROR, got %v", kind)
	}
}

func TestHistoryHealthLine(t *testing.T) {
	line := historyHealthLine(&history.DatabaseHealth{}, false)
	if !strings.Contains(line, "[INFO] not created yet") {
		t.Fatalf("expected missing database detail, got %q", line)
	}

	line = historyHealthLine(&history.DatabaseHealth{DatabaseExists: true}, false)
	if !strings.Contains(line, "[WARN] missing outcomes table") {
		t.Fatalf("expected missing table detail, got %q", line)
	}

	line = historyHealthLine(&history.DatabaseHealth{DatabaseExists: true, TableExists: true, RowCount: 42}, false)
	if !strings.Contains(line, "[OK] 42 rows") {
		t.Fatalf("expected row count detail, got %q", line)
	}

	line = historyHealthLine(&history.DatabaseHealth{Error: "disk I/O error"}, false)
	if !strings.Contains(line, "[ERROR] disk I/O error") {
		t.Fatalf("expected error detail, got %q", line)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("non-file writer turned color on")
	}
}
