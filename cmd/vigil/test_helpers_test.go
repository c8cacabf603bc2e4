package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/config"
	"vigil/internal/daemon"
	"vigil/internal/history"
	"vigil/internal/ipc"
	"vigil/internal/logging"
	"vigil/internal/monitor"
	"vigil/internal/testsupport"
)

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string, string) (*monitor.DataPoint, error) {
	return &monitor.DataPoint{Metadata: map[string]any{monitor.MetaDate: "1850.3.14"}}, nil
}

type noopNotifier struct{}

func (noopNotifier) Start() error { return nil }
func (noopNotifier) Stop()        {}

// cliTestEnv carries the handles test bodies need; the daemon, ledger, and
// IPC server behind them are torn down through t.Cleanup.
type cliTestEnv struct {
	cfg        *config.Config
	ledger     *history.Ledger
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedMelter())

	configPath := filepath.Join(homeDir, ".config", "vigil", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	ledger := testsupport.MustOpenHistory(t, cfg)

	logger := logging.NewNop()
	mon, err := monitor.New(cfg, stubExtractor{},
		monitor.WithHistory(ledger),
		monitor.WithNotifierFactory(func(func(string)) monitor.Notifier { return noopNotifier{} }))
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}

	d, err := daemon.New(cfg, ledger, logger, mon)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{cfg: cfg, ledger: ledger, socketPath: socketPath, configPath: configPath}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	root := newRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	cliArgs := []string{"--socket", socket}
	if configPath != "" {
		cliArgs = append(cliArgs, "--config", configPath)
	}
	root.SetArgs(append(cliArgs, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
save_dir = %q
data_dir = %q
log_dir = %q

[monitor]
extension = %q
debounce_seconds = %g
signature_poll_seconds = %g
stabilize_timeout_seconds = %g
copy_retry_delay_seconds = %g
scan_on_start = %t

[logging]
format = "console"
level = "error"
`,
		cfg.Paths.SaveDir,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Monitor.Extension,
		cfg.Monitor.DebounceSeconds,
		cfg.Monitor.SignaturePollSeconds,
		cfg.Monitor.StabilizeTimeoutSeconds,
		cfg.Monitor.CopyRetryDelaySeconds,
		cfg.Monitor.ScanOnStart,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("output %q is missing %q", output, substr)
	}
}
