package monitor

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"vigil/internal/config"
)

// Playthroughs lists the playthrough ids that have data stored under
// dataDir. The pipeline working directories live alongside the playthrough
// directories and are excluded.
func Playthroughs(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == config.QuarantineDirName || name == config.ArchiveDirName {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadPlaythroughData reads every stored data point for one playthrough in
// chronological order. File names embed a zero-padded timestamp, so
// lexical order is time order. Files that fail to decode are skipped; a
// half-written data point must not hide the rest of the campaign.
func LoadPlaythroughData(dataDir, playthroughID string) ([]*DataPoint, error) {
	pattern := filepath.Join(dataDir, playthroughID, "data_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var points []*DataPoint
	for _, path := range matches {
		payload, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var dp DataPoint
		if err := json.Unmarshal(payload, &dp); err != nil {
			continue
		}
		points = append(points, &dp)
	}
	return points, nil
}
