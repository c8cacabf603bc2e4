// Package history keeps a SQLite ledger of pipeline outcomes, one row per
// terminal decision (captured, processed, duplicate, unsupported, error).
//
// The ledger is observational: run counters and dedup state live elsewhere,
// and a failed ledger write never stalls the pipeline. It powers the
// `vigil history` command, per-playthrough summaries, and daemon status.
package history
