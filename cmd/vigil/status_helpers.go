package main

import (
	"fmt"

	"vigil/internal/history"
	"vigil/internal/ipc"
	"vigil/internal/preflight"
)

func daemonStatusLine(status *ipc.StatusResponse, colorize bool) string {
	if !status.Running {
		return renderStatusLine("Vigil", statusWarn, "Not running (run `vigil start`)", colorize)
	}
	detail := fmt.Sprintf("Running (pid %d)", status.PID)
	if !status.StartedAt.IsZero() {
		detail = fmt.Sprintf("Running (pid %d, since %s)", status.PID, status.StartedAt.UTC().Format("2006-01-02 15:04"))
	}
	return renderStatusLine("Vigil", statusOK, detail, colorize)
}

func checkKind(result preflight.Result) statusKind {
	switch {
	case result.Passed:
		return statusOK
	case result.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func monitoringLines(status *ipc.StatusResponse, colorize bool) []string {
	session := fmt.Sprintf("%d processed, %d captured, %d duplicates, %d errors",
		status.Stats.Processed,
		status.Stats.Captured,
		status.Stats.DuplicateSkipped+status.Stats.EventDuplicateSkipped,
		status.Stats.Errors+status.Stats.UnsupportedFormat)

	backlogKind := statusOK
	backlogDetail := "queues empty"
	if status.Backlog.EventQueue > 0 || status.Backlog.ProcessQueue > 0 {
		backlogKind = statusInfo
		backlogDetail = fmt.Sprintf("%d events, %d snapshots queued", status.Backlog.EventQueue, status.Backlog.ProcessQueue)
	}

	return []string{
		renderStatusLine("Session", statusOK, session, colorize),
		renderStatusLine("Backlog", backlogKind, backlogDetail, colorize),
	}
}

func trackingLines(status *ipc.StatusResponse, health *history.DatabaseHealth, colorize bool) []string {
	tracked := fmt.Sprintf("%d saves, %d game days, %d signature keys",
		status.TrackedFiles, status.SeenGameDays, status.SignatureKeys)

	lines := []string{
		renderStatusLine("Dedup State", statusInfo, tracked, colorize),
		historyHealthLine(health, colorize),
	}
	return lines
}

func historyHealthLine(health *history.DatabaseHealth, colorize bool) string {
	switch {
	case health.Error != "":
		return renderStatusLine("History Database", statusError, health.Error, colorize)
	case !health.DatabaseExists:
		return renderStatusLine("History Database", statusInfo, "not created yet", colorize)
	case !health.TableExists:
		return renderStatusLine("History Database", statusWarn, "missing outcomes table", colorize)
	default:
		return renderStatusLine("History Database", statusOK, fmt.Sprintf("%d rows", health.RowCount), colorize)
	}
}
