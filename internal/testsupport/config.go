package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vigil/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*testEnv)

type testEnv struct {
	t    testing.TB
	base string
	cfg  *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The watched save directory is created; output directories are left to
// EnsureDirectories so tests exercise the same startup path as the daemon.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SaveDir = filepath.Join(base, "saves")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	shortenTimings(&cfg)

	if err := os.MkdirAll(cfg.Paths.SaveDir, 0o755); err != nil {
		t.Fatalf("mkdir save dir: %v", err)
	}

	env := &testEnv{t: t, base: base, cfg: &cfg}
	for _, opt := range opts {
		opt(env)
	}
	return env.cfg
}

// shortenTimings drops the debounce and poll intervals to keep pipeline
// tests under a second while still exercising the stabilization path.
func shortenTimings(cfg *config.Config) {
	cfg.Monitor.DebounceSeconds = 0.05
	cfg.Monitor.SignaturePollSeconds = 0.01
	cfg.Monitor.StabilizeTimeoutSeconds = 2
	cfg.Monitor.CopyRetryDelaySeconds = 0.01
	cfg.Monitor.ScanOnStart = false
}

// WithRotationMarker overrides the autosave slot marker.
func WithRotationMarker(marker string) ConfigOption {
	return func(env *testEnv) {
		env.cfg.Monitor.RotationMarker = marker
	}
}

// WithScanOnStart toggles the startup backlog pass.
func WithScanOnStart(enabled bool) ConfigOption {
	return func(env *testEnv) {
		env.cfg.Monitor.ScanOnStart = enabled
	}
}

// WithStubbedMelter puts a do-nothing melter executable on PATH for the
// duration of the test, so preflight and extraction probes resolve it.
func WithStubbedMelter() ConfigOption {
	return func(env *testEnv) {
		prependPath(env.t, stubMelter(env.t, env.base))
	}
}

func stubMelter(t testing.TB, base string) string {
	t.Helper()

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	stub := filepath.Join(binDir, "rakaly")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write melter stub: %v", err)
	}
	return binDir
}

func prependPath(t testing.TB, dir string) {
	t.Helper()

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() { _ = os.Setenv("PATH", oldPath) })
}
