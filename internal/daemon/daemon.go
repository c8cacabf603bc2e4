package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vigil/internal/config"
	"vigil/internal/history"
	"vigil/internal/logging"
	"vigil/internal/monitor"
	"vigil/internal/runstats"
	"vigil/internal/sigstore"
)

// Daemon owns the monitor pipeline lifecycle. A flock-guarded lock file
// keeps a second daemon (or a concurrent one-shot command) from running
// against the same tracking state.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	ledger  *history.Ledger
	monitor *monitor.Monitor

	logPath  string
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status is the runtime snapshot handed to IPC and the status command.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	Stats         runstats.Snapshot
	Backlog       monitor.Backlog
	Tracking      sigstore.Totals
	SaveDir       string
	LockFilePath  string
	HistoryDBPath string
}

// LockFilePath returns the lock file guarding single-instance execution.
// One-shot commands check the same lock before touching tracking state.
func LockFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "vigil.lock")
}

// New wires a daemon around the monitor, ledger, and logger it will drive.
func New(cfg *config.Config, ledger *history.Ledger, logger *slog.Logger, mon *monitor.Monitor) (*Daemon, error) {
	if cfg == nil || ledger == nil || mon == nil {
		return nil, errors.New("daemon requires config, ledger, and monitor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "daemon"),
		ledger:  ledger,
		monitor: mon,
	}
	d.logPath = filepath.Join(cfg.Paths.LogDir, "vigil.log")
	d.lockPath = LockFilePath(cfg)
	d.lock = flock.New(d.lockPath)
	return d, nil
}

// Start acquires the daemon lock and launches the monitor pipeline.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.acquireLock(); err != nil {
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	queued, err := d.monitor.Start(d.ctx)
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start monitor: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("vigil daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("backlog_queued", queued),
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (d *Daemon) acquireLock() error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vigil daemon instance is already running")
	}
	return nil
}

// Stop drains the monitor pipeline and releases the daemon lock. The
// context is canceled only after the drain: the workers abandon their
// queues the moment the context dies.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("vigil daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops monitoring and drops the instance lock.
func (d *Daemon) Close() error {
	d.Stop()
	if d.ledger == nil {
		return nil
	}
	return d.ledger.Close()
}

func (d *Daemon) requireLedger() (*history.Ledger, error) {
	if d.ledger == nil {
		return nil, errors.New("history ledger unavailable")
	}
	return d.ledger, nil
}

// RecentOutcomes returns the newest ledger rows, most recent first.
func (d *Daemon) RecentOutcomes(ctx context.Context, limit int) ([]history.Row, error) {
	ledger, err := d.requireLedger()
	if err != nil {
		return nil, err
	}
	return ledger.Recent(ctx, limit)
}

// HistoryStats returns all-time outcome totals from the ledger.
func (d *Daemon) HistoryStats(ctx context.Context) (map[runstats.Outcome]int, error) {
	ledger, err := d.requireLedger()
	if err != nil {
		return nil, err
	}
	return ledger.Stats(ctx)
}

// PlaythroughSummaries aggregates the ledger per playthrough.
func (d *Daemon) PlaythroughSummaries(ctx context.Context) ([]history.PlaythroughSummary, error) {
	ledger, err := d.requireLedger()
	if err != nil {
		return nil, err
	}
	return ledger.PlaythroughSummaries(ctx)
}

// ResetTracking clears the dedup state so every save is treated as new.
func (d *Daemon) ResetTracking() error {
	return d.monitor.ResetTracking()
}

// DatabaseHealth returns diagnostics for the history database.
func (d *Daemon) DatabaseHealth(ctx context.Context) (history.DatabaseHealth, error) {
	ledger, err := d.requireLedger()
	if err != nil {
		return history.DatabaseHealth{}, err
	}
	return ledger.CheckHealth(ctx)
}

// LogPath reports where the daemon log pointer lives.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status assembles the live runtime snapshot.
func (d *Daemon) Status(context.Context) Status {
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     d.monitor.StartedAt(),
		Stats:         d.monitor.Stats(),
		Backlog:       d.monitor.QueueBacklog(),
		Tracking:      d.monitor.StoreTotals(),
		SaveDir:       d.cfg.Paths.SaveDir,
		LockFilePath:  d.lockPath,
		HistoryDBPath: d.cfg.HistoryDBPath(),
	}
}
