package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"vigil/internal/history"
	"vigil/internal/playthrough"
	"vigil/internal/runstats"
)

const detailColumnWidth = 48

// buildOutcomeRows renders outcome totals in pipeline order rather than
// alphabetically so "processed" always leads.
func buildOutcomeRows(totals map[string]int) [][]string {
	if len(totals) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(totals))
	for _, outcome := range runstats.Outcomes() {
		count, ok := totals[string(outcome)]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{formatOutcomeLabel(string(outcome)), fmt.Sprintf("%d", count)})
	}
	return rows
}

func snapshotTotals(snap runstats.Snapshot) map[string]int {
	totals := make(map[string]int)
	for _, outcome := range runstats.Outcomes() {
		if count := snap.Count(outcome); count > 0 {
			totals[string(outcome)] = int(count)
		}
	}
	return totals
}

func buildHistoryRows(rows []history.Row) [][]string {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		save := "-"
		if trimmed := strings.TrimSpace(row.SourcePath); trimmed != "" {
			save = filepath.Base(trimmed)
		}
		detail := row.Reason
		if detail == "" {
			detail = row.Detail
		}
		out = append(out, []string{
			formatTimestamp(row.RecordedAt),
			formatOutcomeLabel(string(row.Outcome)),
			row.Playthrough,
			formatGameDay(row.GameDay),
			save,
			truncateDetail(detail),
		})
	}
	return out
}

func buildPlaythroughRows(summaries []history.PlaythroughSummary) [][]string {
	if len(summaries) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, []string{
			playthrough.DisplayName(summary.Playthrough),
			fmt.Sprintf("%d", summary.Processed),
			fmt.Sprintf("%d", summary.Duplicates),
			fmt.Sprintf("%d", summary.Failures),
			formatGameDay(summary.LatestDay),
			formatTimestamp(summary.LastOutcome),
		})
	}
	return rows
}

// summarizeTotals renders all-time totals as one line, e.g.
// "12 processed, 3 duplicate skipped, 1 error".
func summarizeTotals(totals map[string]int) string {
	parts := make([]string, 0, len(totals))
	for _, outcome := range runstats.Outcomes() {
		count, ok := totals[string(outcome)]
		if !ok || count == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s", count, strings.ToLower(formatOutcomeLabel(string(outcome)))))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func formatOutcomeLabel(outcome string) string {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return ""
	}
	parts := strings.Split(outcome, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02 15:04")
}

func formatGameDay(day *int64) string {
	if day == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *day)
}

func truncateDetail(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if len(value) > detailColumnWidth {
		return value[:detailColumnWidth-3] + "..."
	}
	return value
}
