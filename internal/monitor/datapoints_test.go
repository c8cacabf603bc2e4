package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"vigil/internal/testsupport"
)

func TestPlaythroughsExcludesPipelineDirs(t *testing.T) {
	dataDir := t.TempDir()
	for _, name := range []string{"france", "prussia", "queued_saves", "processed_saves"} {
		if err := os.MkdirAll(filepath.Join(dataDir, name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}
	testsupport.WriteText(t, filepath.Join(dataDir, "monitor_state.json"), "{}")

	ids, err := Playthroughs(dataDir)
	if err != nil {
		t.Fatalf("playthroughs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "france" || ids[1] != "prussia" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestPlaythroughsMissingDir(t *testing.T) {
	ids, err := Playthroughs(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if ids != nil {
		t.Fatalf("expected no ids, got %v", ids)
	}
}

func TestLoadPlaythroughDataSkipsMalformed(t *testing.T) {
	dataDir := t.TempDir()
	dir := filepath.Join(dataDir, "france")

	testsupport.WriteText(t, filepath.Join(dir, "data_20230101_000000_000001.json"),
		`{"metadata":{"seq":1}}`)
	testsupport.WriteText(t, filepath.Join(dir, "data_20230101_000000_000002.json"),
		`{"metadata":{"seq"`)
	testsupport.WriteText(t, filepath.Join(dir, "data_20230102_000000_000001.json"),
		`{"metadata":{"seq":3}}`)
	testsupport.WriteText(t, filepath.Join(dir, "notes.txt"), "not a data point")

	points, err := LoadPlaythroughData(dataDir, "france")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 readable points, got %d", len(points))
	}
	if points[0].Metadata["seq"] != float64(1) || points[1].Metadata["seq"] != float64(3) {
		t.Fatalf("unexpected order: %v, %v", points[0].Metadata, points[1].Metadata)
	}
}
