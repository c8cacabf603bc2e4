// Package runstats counts pipeline outcomes for the current monitoring run.
package runstats

import "sync/atomic"

// Outcome labels the terminal classification of one pipeline step. The
// string values are stable: they appear in logs, status payloads, and the
// outcome history.
type Outcome string

const (
	// Processed counts snapshots whose data point was stored.
	Processed Outcome = "processed"
	// Captured counts snapshots moved into quarantine for processing.
	Captured Outcome = "captured"
	// DuplicateSkipped counts snapshots whose content was already recorded.
	DuplicateSkipped Outcome = "duplicate_skipped"
	// EventDuplicateSkipped counts notifications whose stable signature
	// matched the last one on record, before any capture happened.
	EventDuplicateSkipped Outcome = "event_duplicate_skipped"
	// UnsupportedFormat counts saves the extractor could not decode.
	UnsupportedFormat Outcome = "unsupported_format"
	// Error counts everything else that went wrong.
	Error Outcome = "error"
)

// Outcomes lists every outcome in reporting order.
func Outcomes() []Outcome {
	return []Outcome{Processed, Captured, DuplicateSkipped, EventDuplicateSkipped, UnsupportedFormat, Error}
}

// Registry accumulates outcome counts. Safe for concurrent use by the
// capture and process workers plus any status reader.
type Registry struct {
	processed             atomic.Int64
	captured              atomic.Int64
	duplicateSkipped      atomic.Int64
	eventDuplicateSkipped atomic.Int64
	unsupportedFormat     atomic.Int64
	errors                atomic.Int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Processed             int64 `json:"processed"`
	Captured              int64 `json:"captured"`
	DuplicateSkipped      int64 `json:"duplicate_skipped"`
	EventDuplicateSkipped int64 `json:"event_duplicate_skipped"`
	UnsupportedFormat     int64 `json:"unsupported_format"`
	Errors                int64 `json:"error"`
}

// NewRegistry returns a zeroed registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Record increments the counter for outcome. Unknown outcomes are ignored.
func (r *Registry) Record(outcome Outcome) {
	if counter := r.counter(outcome); counter != nil {
		counter.Add(1)
	}
}

// Snapshot returns a copy of the current counts.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Processed:             r.processed.Load(),
		Captured:              r.captured.Load(),
		DuplicateSkipped:      r.duplicateSkipped.Load(),
		EventDuplicateSkipped: r.eventDuplicateSkipped.Load(),
		UnsupportedFormat:     r.unsupportedFormat.Load(),
		Errors:                r.errors.Load(),
	}
}

// Reset zeroes every counter. Called at the start of each monitoring run.
func (r *Registry) Reset() {
	r.processed.Store(0)
	r.captured.Store(0)
	r.duplicateSkipped.Store(0)
	r.eventDuplicateSkipped.Store(0)
	r.unsupportedFormat.Store(0)
	r.errors.Store(0)
}

// Count returns the value for a single outcome in s.
func (s Snapshot) Count(outcome Outcome) int64 {
	switch outcome {
	case Processed:
		return s.Processed
	case Captured:
		return s.Captured
	case DuplicateSkipped:
		return s.DuplicateSkipped
	case EventDuplicateSkipped:
		return s.EventDuplicateSkipped
	case UnsupportedFormat:
		return s.UnsupportedFormat
	case Error:
		return s.Errors
	}
	return 0
}

func (r *Registry) counter(outcome Outcome) *atomic.Int64 {
	switch outcome {
	case Processed:
		return &r.processed
	case Captured:
		return &r.captured
	case DuplicateSkipped:
		return &r.duplicateSkipped
	case EventDuplicateSkipped:
		return &r.eventDuplicateSkipped
	case UnsupportedFormat:
		return &r.unsupportedFormat
	case Error:
		return &r.errors
	}
	return nil
}
