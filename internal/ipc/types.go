package ipc

import (
	"time"

	"vigil/internal/history"
	"vigil/internal/monitor"
	"vigil/internal/runstats"
)

// Empty request payloads for the daemon calls that take no arguments.
type (
	PingRequest          struct{}
	StartRequest         struct{}
	StopRequest          struct{}
	StatusRequest        struct{}
	PlaythroughsRequest  struct{}
	ResetTrackingRequest struct{}
	HistoryHealthRequest struct{}
)

// PingResponse carries the daemon process id.
type PingResponse struct {
	PID int `json:"pid"`
}

// StartResponse reports whether monitoring came up, with a human-readable
// message when it did not.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopResponse acknowledges that the pipeline drained and stopped.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusResponse represents combined daemon/pipeline status information.
type StatusResponse struct {
	Running       bool              `json:"running"`
	PID           int               `json:"pid"`
	StartedAt     time.Time         `json:"started_at"`
	Stats         runstats.Snapshot `json:"stats"`
	Backlog       monitor.Backlog   `json:"backlog"`
	TrackedFiles  int               `json:"tracked_files"`
	SeenGameDays  int               `json:"seen_game_days"`
	SignatureKeys int               `json:"signature_keys"`
	SaveDir       string            `json:"save_dir"`
	LockPath      string            `json:"lock_path"`
	HistoryDBPath string            `json:"history_db_path"`
}

// OutcomeRow mirrors the history ledger row for IPC callers.
type OutcomeRow = history.Row

// PlaythroughSummary mirrors the ledger's per-playthrough aggregate.
type PlaythroughSummary = history.PlaythroughSummary

// RecentOutcomesRequest fetches the newest history rows.
type RecentOutcomesRequest struct {
	Limit int `json:"limit"`
}

// RecentOutcomesResponse contains history rows, newest first, plus
// all-time outcome totals.
type RecentOutcomesResponse struct {
	Rows   []OutcomeRow   `json:"rows"`
	Totals map[string]int `json:"totals"`
}

// PlaythroughsResponse lists playthroughs by most recent activity.
type PlaythroughsResponse struct {
	Playthroughs []PlaythroughSummary `json:"playthroughs"`
}

// ResetTrackingResponse confirms the reset.
type ResetTrackingResponse struct {
	Reset   bool   `json:"reset"`
	Message string `json:"message"`
}

// HistoryHealthResponse reports history database health.
type HistoryHealthResponse = history.DatabaseHealth
