// Package sigstore persists the dedup state that gives the pipeline its
// exactly-once behavior across restarts.
//
// Three maps are tracked: the last stable signature observed per watched
// file, the game days already recorded per playthrough, and a global set of
// signature keys used as a fallback when a save carries no usable date.
// Capture compares signatures to drop redundant filesystem events;
// processing consults the day and key sets to drop snapshots whose content
// was already recorded.
//
// # Storage
//
// State is stored as a versioned JSON file (monitor_state.json in the data
// directory). Loading is tolerant: malformed entries are skipped one by one
// rather than discarding the file. Files written by schema versions older
// than 2 are not migrated; the store restarts empty and rewrites the file at
// the current version.
package sigstore
