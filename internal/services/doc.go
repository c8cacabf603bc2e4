// Package services defines shared utilities consumed by the capture pipeline
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp snapshot task IDs, stage names, and
//     playthrough identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let stage boundaries
//     classify failures (runtime unavailable vs unsupported format vs generic)
//     with errors.Is instead of string matching.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the system.
package services
