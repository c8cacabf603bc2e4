package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/history"
	"vigil/internal/logging"
	"vigil/internal/runstats"
	"vigil/internal/services"
	"vigil/internal/sigstore"
	"vigil/internal/watcher"
)

const (
	// eventQueueCapacity bounds raw change notifications. The game emits
	// bursts of events per save write; the capture worker collapses them.
	eventQueueCapacity = 1024

	// taskQueueCapacity bounds captured snapshots awaiting processing.
	// Snapshots already live on disk, so the queue only carries metadata.
	taskQueueCapacity = 256

	// rollbackJoinTimeout caps how long a failed start waits for the
	// workers it just launched.
	rollbackJoinTimeout = 5 * time.Second
)

// Monitor owns the two-stage pipeline and its workers.
type Monitor struct {
	cfg       *config.Config
	logger    *slog.Logger
	baseLog   *slog.Logger
	store     *sigstore.Store
	stats     *runstats.Registry
	ledger    *history.Ledger
	extractor Extractor
	factory   NotifierFactory

	watchKey string

	mu          sync.Mutex
	running     bool
	notifier    Notifier
	events      chan eventItem
	tasks       chan taskItem
	captureDone chan struct{}
	processDone chan struct{}
	startedAt   time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the base logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.baseLog = logger }
}

// WithStore substitutes the dedup state store. Defaults to a store backed
// by the configured state file.
func WithStore(store *sigstore.Store) Option {
	return func(m *Monitor) { m.store = store }
}

// WithStats substitutes the outcome counter registry.
func WithStats(stats *runstats.Registry) Option {
	return func(m *Monitor) { m.stats = stats }
}

// WithHistory attaches the outcome ledger. Without one, outcomes are only
// counted, not recorded.
func WithHistory(ledger *history.Ledger) Option {
	return func(m *Monitor) { m.ledger = ledger }
}

// WithNotifierFactory substitutes the change notification source. Defaults
// to a filesystem watcher on the configured save directory.
func WithNotifierFactory(factory NotifierFactory) Option {
	return func(m *Monitor) { m.factory = factory }
}

// New builds a monitor for the configured save directory. The extractor is
// mandatory; everything else has working defaults.
func New(cfg *config.Config, extractor Extractor, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if extractor == nil {
		return nil, errors.New("extractor cannot be nil")
	}

	m := &Monitor{
		cfg:       cfg,
		extractor: extractor,
		stats:     runstats.NewRegistry(),
		watchKey:  sigstore.PathKey(cfg.Paths.SaveDir),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.baseLog == nil {
		m.baseLog = logging.NewNop()
	}
	m.logger = logging.NewComponentLogger(m.baseLog, "monitor")

	if m.store == nil {
		store, err := sigstore.NewStore(cfg.StateFilePath(), m.baseLog)
		if err != nil {
			return nil, err
		}
		m.store = store
	}
	if m.factory == nil {
		m.factory = func(handler func(path string)) Notifier {
			return watcher.New(cfg.Paths.SaveDir, handler, m.baseLog)
		}
	}
	return m, nil
}

// Start launches the pipeline workers, captures any saves already present
// when scan_on_start is enabled, and begins listening for change
// notifications. It returns the number of backlog snapshots queued. Calling
// Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) (int, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return 0, nil
	}

	info, err := os.Stat(m.cfg.Paths.SaveDir)
	if err != nil || !info.IsDir() {
		m.mu.Unlock()
		return 0, services.Wrap(services.ErrConfiguration, "monitor", "start",
			fmt.Sprintf("save directory not found: %s", m.cfg.Paths.SaveDir), err)
	}

	m.stats.Reset()
	events := make(chan eventItem, eventQueueCapacity)
	tasks := make(chan taskItem, taskQueueCapacity)
	captureDone := make(chan struct{})
	processDone := make(chan struct{})

	m.events = events
	m.tasks = tasks
	m.captureDone = captureDone
	m.processDone = processDone
	m.running = true
	m.startedAt = time.Now()
	m.mu.Unlock()

	go m.captureLoop(ctx, events, tasks, captureDone)
	go m.processLoop(ctx, tasks, processDone)

	// Backlog runs after the workers are up so the bounded task queue
	// drains while the scan is still feeding it.
	queued := 0
	if m.cfg.Monitor.ScanOnStart {
		queued = m.scanExisting(ctx, tasks)
	}

	notifier := m.factory(m.Enqueue)
	if startErr := notifier.Start(); startErr != nil {
		events <- eventItem{stop: true}
		waitDone(captureDone, rollbackJoinTimeout)
		tasks <- taskItem{stop: true}
		waitDone(processDone, rollbackJoinTimeout)

		m.mu.Lock()
		m.running = false
		m.events = nil
		m.tasks = nil
		m.captureDone = nil
		m.processDone = nil
		m.mu.Unlock()
		return 0, services.Wrap(services.ErrExternalTool, "monitor", "start",
			"failed to start the save directory watcher", startErr)
	}

	m.mu.Lock()
	m.notifier = notifier
	m.mu.Unlock()

	m.logger.Info("monitoring started",
		logging.String(logging.FieldPath, m.cfg.Paths.SaveDir),
		logging.Int("backlog_queued", queued),
		logging.String(logging.FieldEventType, "monitor_started"))
	return queued, nil
}

// Stop halts event intake, then drains both workers in pipeline order:
// capture first so every accepted event becomes a task, processing second
// so every task reaches an outcome. Timeouts are logged, never fatal.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	notifier := m.notifier
	events := m.events
	tasks := m.tasks
	captureDone := m.captureDone
	processDone := m.processDone
	m.notifier = nil
	m.events = nil
	m.tasks = nil
	m.captureDone = nil
	m.processDone = nil
	m.mu.Unlock()

	if notifier != nil {
		notifier.Stop()
	}

	events <- eventItem{stop: true}
	if !waitDone(captureDone, m.cfg.CaptureDrainTimeout()) {
		logging.WarnWithContext(m.logger, "capture worker did not drain in time", "drain_timeout",
			logging.String(logging.FieldErrorHint, "a save may still have been mid-stabilization"),
			logging.String(logging.FieldImpact, "pending events were abandoned"))
	}

	tasks <- taskItem{stop: true}
	if !waitDone(processDone, m.cfg.ProcessDrainTimeout()) {
		logging.WarnWithContext(m.logger, "process worker did not drain in time", "drain_timeout",
			logging.String(logging.FieldErrorHint, "an extraction may still have been running"),
			logging.String(logging.FieldImpact, "queued snapshots remain in quarantine"))
	}

	m.logger.Info("monitoring stopped",
		logging.String(logging.FieldEventType, "monitor_stopped"))
}

// Enqueue feeds one change notification into the pipeline. It is the
// callback handed to the notifier and is safe to call from any goroutine;
// notifications arriving while the monitor is stopped are dropped.
func (m *Monitor) Enqueue(path string) {
	m.mu.Lock()
	running := m.running
	events := m.events
	m.mu.Unlock()
	if !running || events == nil {
		return
	}
	events <- eventItem{path: path}
}

// RunScan captures and processes every save currently in the directory
// without starting the watcher, using the same capture and process steps as
// live monitoring. It returns the run's outcome counters.
func (m *Monitor) RunScan(ctx context.Context) (runstats.Snapshot, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return runstats.Snapshot{}, services.Wrap(services.ErrValidation, "monitor", "scan",
			"monitor is already running", nil)
	}
	m.mu.Unlock()

	info, err := os.Stat(m.cfg.Paths.SaveDir)
	if err != nil || !info.IsDir() {
		return runstats.Snapshot{}, services.Wrap(services.ErrConfiguration, "monitor", "scan",
			fmt.Sprintf("save directory not found: %s", m.cfg.Paths.SaveDir), err)
	}

	m.stats.Reset()
	for _, path := range m.saveFiles() {
		task := m.captureTask(ctx, path, ReasonStartupScan)
		if task == nil {
			continue
		}
		m.processTask(ctx, task)
	}
	return m.stats.Snapshot(), nil
}

// ResetTracking clears dedup state and counters. Stored data points and
// archived snapshots are untouched; the next change to any save will be
// treated as new.
func (m *Monitor) ResetTracking() error {
	if err := m.store.Reset(); err != nil {
		return fmt.Errorf("reset tracking state: %w", err)
	}
	m.stats.Reset()
	m.logger.Info("tracking state reset",
		logging.String(logging.FieldEventType, "tracking_reset"))
	return nil
}

// Running reports whether the pipeline workers are active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// StartedAt returns when the current run began, zero when stopped.
func (m *Monitor) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return time.Time{}
	}
	return m.startedAt
}

// Stats returns the outcome counters for the current run.
func (m *Monitor) Stats() runstats.Snapshot {
	return m.stats.Snapshot()
}

// Backlog reports how much queued work each pipeline stage is holding.
type Backlog struct {
	EventQueue   int `json:"event_queue"`
	ProcessQueue int `json:"process_queue"`
}

// QueueBacklog samples the depth of both pipeline queues.
func (m *Monitor) QueueBacklog() Backlog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b Backlog
	if m.events != nil {
		b.EventQueue = len(m.events)
	}
	if m.tasks != nil {
		b.ProcessQueue = len(m.tasks)
	}
	return b
}

// StoreTotals reports the size of the dedup state.
func (m *Monitor) StoreTotals() sigstore.Totals {
	return m.store.Totals()
}

// captureLoop collapses raw events into quarantined snapshot tasks. It
// exits on its stop sentinel, or when the surrounding context dies and
// orderly draining is off the table anyway.
func (m *Monitor) captureLoop(ctx context.Context, events <-chan eventItem, tasks chan<- taskItem, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-events:
			if item.stop {
				return
			}
			if task := m.captureTask(ctx, item.path, ReasonFileEvent); task != nil {
				select {
				case tasks <- taskItem{task: task}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// processLoop drains snapshot tasks one at a time in arrival order.
func (m *Monitor) processLoop(ctx context.Context, tasks <-chan taskItem, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-tasks:
			if item.stop {
				return
			}
			m.processTask(ctx, item.task)
		}
	}
}

// scanExisting captures every save already present, oldest first so the
// processing order matches the order the saves were written.
func (m *Monitor) scanExisting(ctx context.Context, tasks chan<- taskItem) int {
	files := m.saveFiles()
	if len(files) == 0 {
		return 0
	}
	m.logger.Info("evaluating existing saves",
		logging.Int("count", len(files)),
		logging.String(logging.FieldEventType, "startup_scan"))

	queued := 0
	for _, path := range files {
		task := m.captureTask(ctx, path, ReasonStartupScan)
		if task == nil {
			continue
		}
		select {
		case tasks <- taskItem{task: task}:
			queued++
		case <-ctx.Done():
			return queued
		}
	}
	return queued
}

// saveFiles lists save files in the watched directory, oldest first.
func (m *Monitor) saveFiles() []string {
	entries, err := os.ReadDir(m.cfg.Paths.SaveDir)
	if err != nil {
		m.logger.Warn("save directory not readable",
			logging.Error(err),
			logging.String(logging.FieldPath, m.cfg.Paths.SaveDir),
			logging.String(logging.FieldEventType, "scan_failed"),
			logging.String(logging.FieldImpact, "existing saves were not scanned"))
		return nil
	}

	type saveEntry struct {
		path  string
		mtime time.Time
	}
	var files []saveEntry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != m.cfg.Monitor.Extension {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, saveEntry{
			path:  filepath.Join(m.cfg.Paths.SaveDir, entry.Name()),
			mtime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths
}

// recordOutcome appends one row to the outcome ledger when one is attached.
// The ledger is observational; failures are logged and swallowed.
func (m *Monitor) recordOutcome(ctx context.Context, outcome runstats.Outcome, task *Task, gameDay *int, detail string) {
	if m.ledger == nil {
		return
	}
	row := history.Row{
		TaskID:      task.ID,
		Outcome:     outcome,
		Playthrough: task.Playthrough,
		SourcePath:  task.SourcePath,
		Reason:      task.Reason,
		Detail:      detail,
	}
	if !task.Signature.IsZero() {
		row.Signature = task.Signature.Key()
	}
	if gameDay != nil {
		day := int64(*gameDay)
		row.GameDay = &day
	}
	if err := m.ledger.Record(ctx, row); err != nil {
		m.logger.Warn("failed to record outcome history",
			logging.Error(err),
			logging.String(logging.FieldEventType, "history_write_failed"),
			logging.String(logging.FieldErrorHint, "check the history database file"),
			logging.String(logging.FieldImpact, "outcome is counted but not in history"))
	}
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
