package monitor

import (
	"time"

	"vigil/internal/sigstore"
)

// waitForStable polls path until its size and mtime have held still for the
// debounce window. The game rewrites the save slot over several seconds, so
// capturing on the first event would snapshot a torn file.
//
// On overall timeout the last observed signature is returned anyway so a
// slowly flushing save still gets captured; ok is false only when the file
// was never observable at all.
func waitForStable(path string, poll, debounce, timeout time.Duration) (sigstore.Signature, bool) {
	stableRequired := debounce
	if stableRequired < poll {
		stableRequired = poll
	}
	deadline := time.Now().Add(timeout)

	var (
		previous    sigstore.Signature
		hasPrevious bool
		stableSince time.Time
	)

	for time.Now().Before(deadline) {
		sig, observable := sigstore.Stat(path)
		if !observable {
			// Rotation can unlink the slot mid-write; start over when
			// it reappears.
			hasPrevious = false
			stableSince = time.Time{}
			time.Sleep(poll)
			continue
		}

		if hasPrevious && sig == previous {
			if stableSince.IsZero() {
				stableSince = time.Now()
			} else if time.Since(stableSince) >= stableRequired {
				return sig, true
			}
		} else {
			previous = sig
			hasPrevious = true
			stableSince = time.Now()
		}

		time.Sleep(poll)
	}

	return previous, hasPrevious
}
