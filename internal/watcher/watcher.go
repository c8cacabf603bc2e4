// Package watcher delivers raw filesystem notifications for the watched
// save directory. It forwards paths without filtering or dedup; the capture
// stage owns both.
package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"vigil/internal/logging"
)

// Watcher forwards create/write/rename events for one directory to a
// handler callback. Notifications may repeat or arrive out of order; the
// consumer is expected to tolerate both.
type Watcher struct {
	dir     string
	logger  *slog.Logger
	handler func(path string)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// New creates a watcher for dir. The handler is invoked from the watch
// goroutine and must not block.
func New(dir string, handler func(path string), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		dir:     dir,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		handler: handler,
	}
}

// Start registers the directory watch and begins forwarding events. Unlike
// optional monitors, a watch that cannot be established is fatal: the caller
// rolls back startup.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if w.handler == nil {
		return errors.New("watcher handler cannot be nil")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.fsw = fsw
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.watchLoop(fsw, w.quit, w.done)

	w.logger.Info("file watcher started",
		logging.String(logging.FieldEventType, "watcher_started"),
		logging.String(logging.FieldPath, w.dir),
	)

	return nil
}

// Stop shuts the watcher down and waits for the watch goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()

	if !w.running {
		w.mu.Unlock()
		return
	}

	close(w.quit)
	w.quit = nil

	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}

	done := w.done
	w.done = nil
	w.running = false
	w.mu.Unlock()

	if done != nil {
		<-done
	}

	w.logger.Info("file watcher stopped",
		logging.String(logging.FieldEventType, "watcher_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) watchLoop(fsw *fsnotify.Watcher, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-quit:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "file watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits if this repeats"),
				logging.String(logging.FieldImpact, "a save change may have been missed"),
			)
		}
	}
}

// handleEvent forwards events that can indicate new save content. Writers
// either update a file in place (Write) or stage a temp file and move it
// over the target (Create of the final name, Rename of the old one).
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.handler(event.Name)
}
