package main

import (
	"context"
	"testing"

	"vigil/internal/history"
	"vigil/internal/runstats"
)

func TestCLIStatusBeforeStart(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Not running")
	requireContains(t, out, "Tracking")
	requireContains(t, out, "No outcomes recorded")
}

func TestCLIStartAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	// A second start finds the monitor already up.
	out, _, err = runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	requireContains(t, out, "Daemon already running")

	day := int64(675354)
	if err := env.ledger.Record(context.Background(), history.Row{
		TaskID:      "task-a",
		Outcome:     runstats.Processed,
		Playthrough: "prussia",
		SourcePath:  "/saves/prussia.v3",
		GameDay:     &day,
		Signature:   "sig-a",
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Monitoring")
	requireContains(t, out, "Outcome History")
	requireContains(t, out, "Processed")
}
