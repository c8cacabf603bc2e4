package testsupport

import (
	"testing"

	"vigil/internal/config"
	"vigil/internal/history"
)

// MustOpenHistory opens the outcome ledger for a test config, failing the
// test on error and closing the database during cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Ledger {
	t.Helper()

	ledger, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("open history ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}
