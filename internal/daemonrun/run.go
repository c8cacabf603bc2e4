// Package daemonrun owns the foreground daemon process: signal handling,
// per-run log files, the PID file, and wiring every service into the
// daemon before parking on the signal context.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"vigil/internal/config"
	"vigil/internal/daemon"
	"vigil/internal/extractor"
	"vigil/internal/history"
	"vigil/internal/ipc"
	"vigil/internal/logging"
	"vigil/internal/monitor"
	"vigil/internal/preflight"
)

// historyMaxRows bounds the outcome ledger; the oldest rows beyond it are
// pruned at startup.
const historyMaxRows = 10000

// Options carries the flags the daemon command forwards into the process
// runtime.
type Options struct {
	LogLevel string
}

// Run starts the vigil daemon runtime loop and blocks until SIGINT or
// SIGTERM arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}

	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	sessionID := uuid.NewString()
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("vigil-%s.log", runID))

	logger, err := logging.New(logging.Options{
		Level:        opts.LogLevel,
		Format:       cfg.Logging.Format,
		Outputs:      []string{"stdout", logPath},
		ErrorOutputs: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldSessionID, sessionID))

	logStartupEnvironment(logger, cfg)
	logPreflight(logger, cfg)
	if err := refreshLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vigil.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "vigil.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ledger, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history ledger", logging.Error(err))
		return err
	}
	defer ledger.Close()

	if removed, err := ledger.Prune(ctx, historyMaxRows); err != nil {
		logger.Warn("prune history ledger", logging.Error(err))
	} else if removed > 0 {
		logger.Info("pruned old history rows", logging.Int64("removed", removed))
	}

	ext, err := extractor.New(cfg.MelterBinary(), cfg.Extraction.MelterTimeoutSeconds, logger)
	if err != nil {
		return fmt.Errorf("create extractor: %w", err)
	}

	mon, err := monitor.New(cfg, ext,
		monitor.WithLogger(logger),
		monitor.WithHistory(ledger))
	if err != nil {
		return fmt.Errorf("create monitor: %w", err)
	}

	d, err := daemon.New(cfg, ledger, logger, mon)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := filepath.Join(cfg.Paths.LogDir, "vigil.sock")
	ipcServer, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the save directory path and rerun vigil start"),
			logging.String(logging.FieldImpact, "saves will not be captured until monitoring starts"),
		)
	}

	<-ctx.Done()
	logger.Info("vigil daemon shutting down")
	return nil
}

// refreshLogPointer repoints logDir/vigil.log at the current run's log file.
// A hard link is the fallback on filesystems without symlink support.
func refreshLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	pointer := filepath.Join(logDir, "vigil.log")
	if err := os.Remove(pointer); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace log pointer: %w", err)
	}
	if os.Symlink(target, pointer) == nil {
		return nil
	}
	if err := os.Link(target, pointer); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, fmt.Appendf(nil, "%d\n", os.Getpid()), 0o644)
}

// logStartupEnvironment records the monitored paths and melter state at the
// top of each run log.
func logStartupEnvironment(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	melter := cfg.MelterBinary()
	available := false
	if strings.TrimSpace(melter) != "" {
		_, lookErr := exec.LookPath(melter)
		available = lookErr == nil
	}
	logger.Info("startup environment",
		logging.String(logging.FieldEventType, "startup_environment"),
		logging.String("save_dir", cfg.Paths.SaveDir),
		logging.String("save_extension", cfg.Monitor.Extension),
		logging.Group("melter",
			logging.Bool("available", available),
			logging.String("binary", melter)),
	)
}

// logPreflight reports readiness before the watcher starts; failures are
// warnings because the monitor surfaces its own fatal errors.
func logPreflight(logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(cfg) {
		switch {
		case result.Passed:
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
		case result.Optional:
			logger.Info("preflight check degraded",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldEventType, "preflight_degraded"))
		default:
			logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "fix the path or permissions named in the detail"))
		}
	}
}
