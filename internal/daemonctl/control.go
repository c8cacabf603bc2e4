// Package daemonctl orchestrates the daemon process from the CLI side:
// launching a detached daemon, waiting for its socket, stopping it with a
// force-kill fallback, and assembling status snapshots with offline
// fallbacks when no daemon is reachable.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vigil/internal/config"
	"vigil/internal/daemon"
	"vigil/internal/history"
	"vigil/internal/ipc"
	"vigil/internal/preflight"
	"vigil/internal/sigstore"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions carries the flags forwarded to the detached daemon process.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult reports what EnsureStarted found and did.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StatusSnapshot bundles everything `vigil status` renders: live daemon
// state when reachable, ledger totals and health, and local preflight
// results.
type StatusSnapshot struct {
	Daemon ipc.StatusResponse
	Totals map[string]int
	Health history.DatabaseHealth
	Checks []preflight.Result
}

// Launch starts a detached vigil daemon process and releases it.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("launch daemon: executable path is empty")
	}
	cmd := exec.Command(executablePath, launchArgs(opts)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return cmd.Process.Release()
}

// launchArgs forwards non-empty CLI flags to the child daemon so it resolves
// the same socket and config the invoking command used.
func launchArgs(opts LaunchOptions) []string {
	args := []string{"daemon"}
	for _, f := range []struct{ flag, value string }{
		{"--socket", opts.SocketPath},
		{"--config", opts.ConfigPath},
	} {
		if value := strings.TrimSpace(f.value); value != "" {
			args = append(args, f.flag, value)
		}
	}
	return args
}

// WaitForClient polls the IPC socket until it answers a ping and returns
// the connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var client *ipc.Client
	err := poll(timeout, func() (bool, error) {
		c, err := ipc.Dial(socketPath)
		if err != nil {
			return false, err
		}
		if _, err := c.Ping(); err != nil {
			c.Close()
			return false, err
		}
		client = c
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return client, nil
}

// EnsureStarted brings monitoring up through whatever is missing: it dials
// an existing daemon or launches one, then asks it to start if it is not
// already running.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, launched, err := connectOrLaunch(socketPath, executablePath, opts, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()

	if status, statusErr := client.Status(); statusErr == nil && status != nil && status.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	return classifyStart(resp, launched), nil
}

// connectOrLaunch dials a live daemon, or launches a fresh process and waits
// for its socket. The bool reports whether a process was launched.
func connectOrLaunch(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (*ipc.Client, bool, error) {
	if client, err := ipc.Dial(socketPath); err == nil {
		return client, false, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return nil, false, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return nil, false, err
	}
	return client, true, nil
}

// classifyStart maps the daemon's start response onto a StartResult. The
// daemon phrases "already running" in its message rather than a flag, so
// the message text is inspected.
func classifyStart(resp *ipc.StartResponse, launched bool) StartResult {
	if resp == nil {
		return StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}
	}
	message := strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		return StartResult{State: StartStateStarted, Launched: launched, Message: message}
	case strings.Contains(strings.ToLower(message), "already running"):
		if launched {
			return StartResult{State: StartStateStarted, Launched: true, Message: message}
		}
		return StartResult{State: StartStateAlreadyRunning, Message: message}
	case message != "":
		return StartResult{State: StartStateRequested, Launched: launched, Message: message}
	default:
		return StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}
	}
}

// WaitForShutdown polls until daemon IPC disappears or reports not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	err := poll(timeout, func() (bool, error) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return true, nil
			}
			return false, err
		}
		status, statusErr := client.Status()
		client.Close()
		if statusErr != nil {
			return false, statusErr
		}
		if !status.Running {
			return true, nil
		}
		return false, errors.New("daemon still running")
	})
	if err != nil {
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

// StopAndTerminate requests a graceful stop and escalates to SIGKILL when
// the process is still alive after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}

	var lockPath, historyDBPath string
	var pid int
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		lockPath, historyDBPath, pid = status.LockPath, status.HistoryDBPath, status.PID
	}

	resp, err := client.Stop()
	client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid, StopAcknowledged: resp != nil && resp.Stopped}

	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID := stillAlive(socketPath)
	if !alive {
		return result, nil
	}

	targetPID := livePID
	if targetPID == 0 {
		targetPID = pid
	}
	logDir := deriveLogDir(lockPath, historyDBPath, cfg)
	if logDir == "" {
		return result, errors.New("cannot locate the daemon log directory")
	}
	killedPID, killErr := forceKillProcess(
		filepath.Join(logDir, "vigil.pid"),
		filepath.Join(logDir, "vigil.lock"),
		targetPID,
	)
	if killErr != nil {
		return result, fmt.Errorf("kill daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops any running daemon and brings a fresh one up. A daemon
// that was not running is simply started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	var result RestartResult

	stop, err := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	switch {
	case err == nil:
		result.WasRunning = true
		result.Stop = stop
	case !errors.Is(err, ErrDaemonNotRunning):
		return RestartResult{}, err
	}

	start, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}
	result.Start = start
	return result, nil
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for tracking totals and outcome history when the daemon is unreachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	snapshot := &StatusSnapshot{Totals: make(map[string]int)}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snapshot.Daemon = *resp
		}
		if recent, recentErr := client.RecentOutcomes(1); recentErr == nil && recent != nil {
			snapshot.Totals = recent.Totals
		}
		if health, healthErr := client.HistoryHealth(); healthErr == nil && health != nil {
			snapshot.Health = *health
		}
	}

	if !snapshot.Daemon.Running {
		snapshot.Daemon.SaveDir = cfg.Paths.SaveDir
		snapshot.Daemon.LockPath = daemon.LockFilePath(cfg)
		snapshot.Daemon.HistoryDBPath = cfg.HistoryDBPath()
		fillOfflineTracking(&snapshot.Daemon, cfg)

		queryCtx, cancel := context.WithTimeout(ctx, offlineQueryTimeout)
		defer cancel()

		ledger, openErr := history.Open(cfg)
		if openErr == nil {
			if stats, statsErr := ledger.Stats(queryCtx); statsErr == nil {
				totals := make(map[string]int, len(stats))
				for outcome, count := range stats {
					totals[string(outcome)] = count
				}
				snapshot.Totals = totals
			}
			if health, healthErr := ledger.CheckHealth(queryCtx); healthErr == nil {
				snapshot.Health = health
			}
			_ = ledger.Close()
		}
	}

	snapshot.Checks = preflight.RunAll(cfg)
	return snapshot, nil
}

// fillOfflineTracking loads dedup totals straight from the state file so
// status output stays useful while the daemon is down.
func fillOfflineTracking(status *ipc.StatusResponse, cfg *config.Config) {
	store, err := sigstore.NewStore(cfg.StateFilePath(), nil)
	if err != nil {
		return
	}
	totals := store.Totals()
	status.TrackedFiles = totals.TrackedFiles
	status.SeenGameDays = totals.SeenGameDays
	status.SignatureKeys = totals.SignatureKeys
}

const (
	pollInterval = 200 * time.Millisecond

	// offlineQueryTimeout caps direct ledger reads during status rendering
	// when the daemon is down.
	offlineQueryTimeout = 2 * time.Second
)

// poll runs probe every pollInterval until it reports done or timeout
// lapses. The error returned is the last one the probe produced.
func poll(timeout time.Duration, probe func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		done, err := probe()
		if done {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = errors.New("timed out")
	}
	return lastErr
}

// stillAlive reports whether a daemon still answers on the socket, along
// with its pid. A socket that connects but cannot produce a status does not
// count as alive.
func stillAlive(socketPath string) (bool, int) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return false, 0
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil || status == nil {
		return false, 0
	}
	return true, status.PID
}

// deriveLogDir recovers the daemon's log directory from whichever hint is
// available; the pid, lock, and socket files all live there.
func deriveLogDir(lockPath, historyDBPath string, cfg *config.Config) string {
	if lockPath != "" {
		return filepath.Dir(lockPath)
	}
	if historyDBPath != "" {
		return filepath.Dir(historyDBPath)
	}
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		return cfg.Paths.LogDir
	}
	return ""
}

// forceKillProcess sends SIGKILL to the daemon and cleans its pid and lock
// files. The pid file wins over fallbackPID when both are present.
func forceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return 0, err
	}
	if pid <= 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// readPIDFile returns the pid recorded at path, 0 when the file is absent
// or holds nothing usable.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
