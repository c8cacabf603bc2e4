// Package monitor drives the save pipeline: change notifications fan into a
// capture worker that stabilizes and quarantines one snapshot per distinct
// save state, and a single process worker extracts, deduplicates, stores, and
// archives each snapshot in arrival order.
//
// Capture and processing are decoupled by a bounded task queue so a slow
// extraction never blocks snapshot capture. Every snapshot travels as a Task
// through the same queue regardless of origin; the startup backlog scan feeds
// the queue exactly the way live file events do.
package monitor
