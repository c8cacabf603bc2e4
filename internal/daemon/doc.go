// Package daemon coordinates the long-running vigil process.
//
// It wires configuration, the outcome ledger, and the monitor pipeline
// into a single lifecycle with flock-based locking to prevent multiple
// instances from watching the same save directory. The daemon exposes
// the history and tracking helpers the IPC layer serves to the CLI.
//
// Keep orchestration logic here: pipeline behavior lives in the monitor
// package while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
