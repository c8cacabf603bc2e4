package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/runstats"
	"vigil/internal/services"
	"vigil/internal/testsupport"
)

type fakeNotifier struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
}

func (f *fakeNotifier) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeNotifier) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeNotifier) wasStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeNotifier) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// scriptedExtractor lets each test decide what a snapshot yields. Without a
// script it returns bare metadata, leaving the timeline to the fallbacks.
type scriptedExtractor struct {
	mu     sync.Mutex
	delay  time.Duration
	script func(path, playthrough string) (*DataPoint, error)
	calls  []string
}

func (s *scriptedExtractor) Extract(ctx context.Context, path, playthrough string) (*DataPoint, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, path)
	s.mu.Unlock()
	if s.script != nil {
		return s.script(path, playthrough)
	}
	return &DataPoint{Metadata: map[string]any{"prestige": 100}}, nil
}

func (s *scriptedExtractor) callPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newTestMonitor(t *testing.T, cfg *config.Config, ext Extractor) (*Monitor, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	m, err := New(cfg, ext, WithNotifierFactory(func(func(string)) Notifier {
		return notifier
	}))
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m, notifier
}

func waitFor(t *testing.T, timeout time.Duration, describe string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", describe)
}

func dirCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0
		}
		t.Fatalf("read dir %s: %v", dir, err)
	}
	return len(entries)
}

func TestMonitorProcessesSaveEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ext := &scriptedExtractor{script: func(path, playthrough string) (*DataPoint, error) {
		return &DataPoint{Metadata: map[string]any{MetaDate: "1840.1.1", "prestige": 250}}, nil
	}}
	m, notifier := newTestMonitor(t, cfg, ext)

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()
	if !notifier.wasStarted() {
		t.Fatal("notifier was not started")
	}

	savePath := filepath.Join(cfg.Paths.SaveDir, "france.v3")
	testsupport.WriteFile(t, savePath, 2048)
	m.Enqueue(savePath)

	waitFor(t, 5*time.Second, "save to be processed", func() bool {
		return m.Stats().Processed == 1
	})

	stats := m.Stats()
	if stats.Captured != 1 || stats.Errors != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// 1840.1.1 is day (1840-1836)*365 + 1 on the linear axis.
	archiveDir := filepath.Join(cfg.ArchiveDir(), "france")
	entries, err := os.ReadDir(archiveDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one archived snapshot, got %d (err %v)", len(entries), err)
	}
	if !strings.HasPrefix(entries[0].Name(), "france_day1461_") {
		t.Errorf("unexpected archive name %q", entries[0].Name())
	}
	if got := dirCount(t, filepath.Join(cfg.QuarantineDir(), "france")); got != 0 {
		t.Errorf("expected empty quarantine, found %d entries", got)
	}

	points, err := LoadPlaythroughData(cfg.Paths.DataDir, "france")
	if err != nil {
		t.Fatalf("load data points: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected one data point, got %d", len(points))
	}
	metadata := points[0].Metadata
	if got, ok := metadata[MetaGameDay].(float64); !ok || int(got) != 1461 {
		t.Errorf("unexpected game day %v", metadata[MetaGameDay])
	}
	if metadata[MetaTimelineSource] != "save_date" {
		t.Errorf("unexpected timeline source %v", metadata[MetaTimelineSource])
	}
	if metadata[MetaFilename] != "france.v3" {
		t.Errorf("unexpected filename %v", metadata[MetaFilename])
	}
}

func TestMonitorCollapsesDuplicateEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ext := &scriptedExtractor{}
	m, _ := newTestMonitor(t, cfg, ext)

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	savePath := filepath.Join(cfg.Paths.SaveDir, "prussia.v3")
	testsupport.WriteFile(t, savePath, 4096)
	m.Enqueue(savePath)
	m.Enqueue(savePath)

	waitFor(t, 5*time.Second, "duplicate event to be skipped", func() bool {
		s := m.Stats()
		return s.Captured == 1 && s.EventDuplicateSkipped == 1
	})
	waitFor(t, 5*time.Second, "single snapshot to be processed", func() bool {
		return m.Stats().Processed == 1
	})

	if calls := ext.callPaths(); len(calls) != 1 {
		t.Fatalf("expected one extraction, got %d", len(calls))
	}
}

func TestMonitorDeduplicatesGameDayAcrossSlots(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ext := &scriptedExtractor{script: func(path, playthrough string) (*DataPoint, error) {
		return &DataPoint{Metadata: map[string]any{MetaDate: "1850.3.10"}}, nil
	}}
	m, _ := newTestMonitor(t, cfg, ext)

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	// Both names identify the same playthrough; the second snapshot lands
	// on an already seen game day.
	first := filepath.Join(cfg.Paths.SaveDir, "france.v3")
	second := filepath.Join(cfg.Paths.SaveDir, "france_backup.v3")
	testsupport.WriteFile(t, first, 1000)
	testsupport.WriteFile(t, second, 2000)
	m.Enqueue(first)
	m.Enqueue(second)

	waitFor(t, 5*time.Second, "duplicate game day to be skipped", func() bool {
		s := m.Stats()
		return s.Processed == 1 && s.DuplicateSkipped == 1
	})

	// Duplicates are still archived; only the data point is suppressed.
	if got := dirCount(t, filepath.Join(cfg.ArchiveDir(), "france")); got != 2 {
		t.Errorf("expected both snapshots archived, got %d", got)
	}
	points, err := LoadPlaythroughData(cfg.Paths.DataDir, "france")
	if err != nil || len(points) != 1 {
		t.Fatalf("expected one data point, got %d (err %v)", len(points), err)
	}
}

func TestMonitorRecapturesRotatingSlot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	day := 0
	ext := &scriptedExtractor{script: func(path, playthrough string) (*DataPoint, error) {
		day++
		return &DataPoint{Metadata: map[string]any{MetaGameDay: day * 100}}, nil
	}}
	m, _ := newTestMonitor(t, cfg, ext)

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	slot := filepath.Join(cfg.Paths.SaveDir, "campaign_autosave.v3")
	testsupport.WriteFile(t, slot, 1024)
	m.Enqueue(slot)

	waitFor(t, 5*time.Second, "first rotation to be processed", func() bool {
		return m.Stats().Processed == 1
	})
	if _, err := os.Stat(slot); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rotating slot should have been moved, stat err %v", err)
	}

	// The game rewrites the slot with the next autosave.
	testsupport.WriteFile(t, slot, 2048)
	m.Enqueue(slot)

	waitFor(t, 5*time.Second, "second rotation to be processed", func() bool {
		return m.Stats().Processed == 2
	})

	stats := m.Stats()
	if stats.Captured != 2 || stats.EventDuplicateSkipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if got := dirCount(t, filepath.Join(cfg.ArchiveDir(), "campaign")); got != 2 {
		t.Errorf("expected two archived rotations, got %d", got)
	}
}

func TestMonitorScansBacklogOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithScanOnStart(true))
	ext := &scriptedExtractor{}
	m, _ := newTestMonitor(t, cfg, ext)

	now := time.Now()
	for i, name := range []string{"alpha.v3", "beta.v3", "gamma.v3"} {
		path := filepath.Join(cfg.Paths.SaveDir, name)
		testsupport.WriteFile(t, path, int64(1000+i))
		age := time.Duration(3-i) * time.Hour
		if err := os.Chtimes(path, now.Add(-age), now.Add(-age)); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}

	queued, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()
	if queued != 3 {
		t.Fatalf("expected 3 backlog snapshots, got %d", queued)
	}

	waitFor(t, 5*time.Second, "backlog to be processed", func() bool {
		return m.Stats().Processed == 3
	})

	calls := ext.callPaths()
	if len(calls) != 3 {
		t.Fatalf("expected 3 extractions, got %d", len(calls))
	}
	for i, stem := range []string{"alpha_", "beta_", "gamma_"} {
		if !strings.HasPrefix(filepath.Base(calls[i]), stem) {
			t.Errorf("call %d = %s, want prefix %s", i, filepath.Base(calls[i]), stem)
		}
	}
}

func TestMonitorStopDrainsQueuedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ext := &scriptedExtractor{delay: 80 * time.Millisecond}
	m, notifier := newTestMonitor(t, cfg, ext)

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 4; i++ {
		path := filepath.Join(cfg.Paths.SaveDir, fmt.Sprintf("slot%d.v3", i))
		testsupport.WriteFile(t, path, int64(500*(i+1)))
		m.Enqueue(path)
	}

	waitFor(t, 5*time.Second, "all snapshots to be captured", func() bool {
		return m.Stats().Captured == 4
	})

	// Stop must account every queued task before returning.
	m.Stop()
	if got := m.Stats().Processed; got != 4 {
		t.Fatalf("expected 4 processed after drain, got %d", got)
	}
	if m.Running() {
		t.Fatal("monitor still running after stop")
	}
	if !notifier.wasStopped() {
		t.Fatal("notifier was not stopped")
	}
}

func TestRunScanIsExactlyOnceAcrossRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	for _, name := range []string{"sweden.v3", "japan.v3"} {
		testsupport.WriteFile(t, filepath.Join(cfg.Paths.SaveDir, name), 1500)
	}

	first, _ := newTestMonitor(t, cfg, &scriptedExtractor{})
	snap, err := first.RunScan(context.Background())
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if snap.Captured != 2 || snap.Processed != 2 {
		t.Fatalf("unexpected first scan stats: %+v", snap)
	}

	// A fresh monitor reloads dedup state from disk; nothing changed on
	// disk, so the second scan must not capture anything.
	second, _ := newTestMonitor(t, cfg, &scriptedExtractor{})
	snap, err = second.RunScan(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if snap.Captured != 0 || snap.EventDuplicateSkipped != 2 {
		t.Fatalf("unexpected second scan stats: %+v", snap)
	}
}

func TestRunScanClassifiesExtractionFailures(t *testing.T) {
	tests := []struct {
		name       string
		extractErr error
		check      func(t *testing.T, snap runstats.Snapshot)
	}{
		{
			name:       "unsupported format",
			extractErr: services.Wrap(services.ErrUnsupportedFormat, "extract", "melt", "ironman save rejected", nil),
			check: func(t *testing.T, snap runstats.Snapshot) {
				if snap.UnsupportedFormat != 1 || snap.Errors != 0 {
					t.Fatalf("unexpected stats: %+v", snap)
				}
			},
		},
		{
			name:       "runtime unavailable",
			extractErr: services.Wrap(services.ErrRuntimeUnavailable, "extract", "melt", "melter missing", os.ErrNotExist),
			check: func(t *testing.T, snap runstats.Snapshot) {
				if snap.Errors != 1 || snap.UnsupportedFormat != 0 {
					t.Fatalf("unexpected stats: %+v", snap)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			testsupport.WriteFile(t, filepath.Join(cfg.Paths.SaveDir, "austria.v3"), 900)

			ext := &scriptedExtractor{script: func(path, playthrough string) (*DataPoint, error) {
				return nil, tc.extractErr
			}}
			m, _ := newTestMonitor(t, cfg, ext)
			snap, err := m.RunScan(context.Background())
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			tc.check(t, snap)

			// Failed extractions leave the snapshot in quarantine.
			if got := dirCount(t, filepath.Join(cfg.QuarantineDir(), "austria")); got != 1 {
				t.Errorf("expected snapshot kept in quarantine, found %d entries", got)
			}
		})
	}
}

func TestMonitorRecordsOutcomeHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ledger := testsupport.MustOpenHistory(t, cfg)

	ext := &scriptedExtractor{script: func(path, playthrough string) (*DataPoint, error) {
		return &DataPoint{Metadata: map[string]any{MetaDate: "1845.6.1"}}, nil
	}}
	notifier := &fakeNotifier{}
	m, err := New(cfg, ext,
		WithHistory(ledger),
		WithNotifierFactory(func(func(string)) Notifier { return notifier }))
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SaveDir, "france.v3"), 1200)
	if _, err := m.RunScan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}

	rows, err := ledger.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected capture and process rows, got %d", len(rows))
	}
	processed, captured := rows[0], rows[1]
	if processed.Outcome != runstats.Processed || captured.Outcome != runstats.Captured {
		t.Fatalf("unexpected outcomes: %s, %s", processed.Outcome, captured.Outcome)
	}
	if processed.TaskID == "" || processed.TaskID != captured.TaskID {
		t.Errorf("rows should share a task id, got %q and %q", processed.TaskID, captured.TaskID)
	}
	if processed.Playthrough != "france" || processed.Reason != ReasonStartupScan {
		t.Errorf("unexpected row fields: %+v", processed)
	}
	if processed.GameDay == nil || *processed.GameDay != int64(LinearGameDay(1845, 6, 1)) {
		t.Errorf("unexpected game day: %v", processed.GameDay)
	}
}

func TestMonitorStartFailsWithoutSaveDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.SaveDir = filepath.Join(cfg.Paths.SaveDir, "missing")

	m, _ := newTestMonitor(t, cfg, &scriptedExtractor{})
	if _, err := m.Start(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if m.Running() {
		t.Fatal("monitor should not be running after failed start")
	}
}

func TestMonitorRollsBackWhenNotifierFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	notifier := &fakeNotifier{startErr: errors.New("inotify limit reached")}
	m, err := New(cfg, &scriptedExtractor{}, WithNotifierFactory(func(func(string)) Notifier {
		return notifier
	}))
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	if _, err := m.Start(context.Background()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if m.Running() {
		t.Fatal("monitor should not be running after rollback")
	}
	// Dropped silently rather than blocking on a dead queue.
	m.Enqueue(filepath.Join(cfg.Paths.SaveDir, "late.v3"))
}

func TestMonitorResetTracking(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SaveDir, "rome.v3"), 800)

	m, _ := newTestMonitor(t, cfg, &scriptedExtractor{})
	if _, err := m.RunScan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if totals := m.StoreTotals(); totals.TrackedFiles != 1 {
		t.Fatalf("expected tracked file, got %+v", totals)
	}

	if err := m.ResetTracking(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if totals := m.StoreTotals(); totals.TrackedFiles != 0 || totals.SignatureKeys != 0 {
		t.Fatalf("expected empty totals after reset, got %+v", totals)
	}

	// The same save is new again after a reset.
	snap, err := m.RunScan(context.Background())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if snap.Captured != 1 {
		t.Fatalf("expected recapture after reset, got %+v", snap)
	}
}
