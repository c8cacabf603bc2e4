package preflight

import (
	"vigil/internal/config"
)

// Result reports the outcome of a single preflight check. Optional checks
// degrade functionality when they fail instead of blocking the pipeline.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every preflight check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		// The save directory needs write access because rotation-slot captures
		// move the save out of it before the game reuses the name.
		CheckDirectoryAccess("Save directory", cfg.Paths.SaveDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckWritableFile("Tracking state", cfg.StateFilePath()),
		CheckWritableFile("History database", cfg.HistoryDBPath()),
		CheckMelter(cfg.MelterBinary()),
	}
}
