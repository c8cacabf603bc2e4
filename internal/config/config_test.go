package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vigil/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("Load resolved no config path")
	}
	if exists {
		t.Fatal("expected no config file under the temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "vigil", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if !strings.HasPrefix(cfg.Paths.SaveDir, tempHome) {
		t.Fatalf("expected save dir under temp home, got %q", cfg.Paths.SaveDir)
	}
	if cfg.Monitor.Extension != ".v3" {
		t.Fatalf("unexpected extension: %q", cfg.Monitor.Extension)
	}
	if cfg.Monitor.RotationMarker != "autosave" {
		t.Fatalf("unexpected rotation marker: %q", cfg.Monitor.RotationMarker)
	}
	if !cfg.Monitor.ScanOnStart {
		t.Fatal("expected scan_on_start enabled by default")
	}
	if cfg.QuarantineDir() != filepath.Join(wantData, "queued_saves") {
		t.Fatalf("unexpected quarantine dir: %q", cfg.QuarantineDir())
	}
	if cfg.ArchiveDir() != filepath.Join(wantData, "processed_saves") {
		t.Fatalf("unexpected archive dir: %q", cfg.ArchiveDir())
	}
	if cfg.StateFilePath() != filepath.Join(wantData, "monitor_state.json") {
		t.Fatalf("unexpected state file path: %q", cfg.StateFilePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.QuarantineDir(), cfg.ArchiveDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory %q was not created: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%q is not a directory", dir)
		}
	}
	if _, err := os.Stat(cfg.Paths.SaveDir); !os.IsNotExist(err) {
		t.Fatalf("save dir must not be created by EnsureDirectories: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vigil.toml")

	type overrides struct {
		Paths struct {
			SaveDir string `toml:"save_dir"`
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Monitor struct {
			Extension       string  `toml:"extension"`
			DebounceSeconds float64 `toml:"debounce_seconds"`
		} `toml:"monitor"`
	}
	custom := overrides{}
	custom.Paths.SaveDir = filepath.Join(tempDir, "saves")
	custom.Paths.DataDir = filepath.Join(tempDir, "out")
	custom.Monitor.Extension = "sav"
	custom.Monitor.DebounceSeconds = 3
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("Load missed the config file it was pointed at")
	}
	if resolved != configPath {
		t.Fatalf("resolved path %q, want %q", resolved, configPath)
	}
	if cfg.Paths.SaveDir != custom.Paths.SaveDir {
		t.Fatalf("expected save dir override, got %q", cfg.Paths.SaveDir)
	}
	if cfg.Monitor.Extension != ".sav" {
		t.Fatalf("expected normalized extension .sav, got %q", cfg.Monitor.Extension)
	}
	if cfg.Monitor.DebounceSeconds != 3 {
		t.Fatalf("expected debounce override, got %v", cfg.Monitor.DebounceSeconds)
	}
	if cfg.Monitor.StabilizeTimeoutSeconds != config.Default().Monitor.StabilizeTimeoutSeconds {
		t.Fatalf("unexpected stabilize timeout: %v", cfg.Monitor.StabilizeTimeoutSeconds)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "save_dir") {
		t.Fatalf("sample config missing save_dir: %s", contents)
	}

	// The sample must parse back into a Config.
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Monitor.Extension != ".v3" {
		t.Fatalf("unexpected extension in sample: %q", cfg.Monitor.Extension)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	newValid := func() config.Config {
		cfg := config.Default()
		cfg.Paths.SaveDir = "/tmp/saves"
		cfg.Paths.DataDir = "/tmp/data"
		cfg.Paths.LogDir = "/tmp/logs"
		return cfg
	}

	cfg := newValid()
	cfg.Monitor.Extension = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty extension")
	}

	cfg = newValid()
	cfg.Monitor.DebounceSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive debounce")
	}

	cfg = newValid()
	cfg.Monitor.StabilizeTimeoutSeconds = cfg.Monitor.DebounceSeconds / 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when stabilize timeout below debounce")
	}

	cfg = newValid()
	cfg.Monitor.CopyRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero copy retries")
	}

	cfg = newValid()
	cfg.Paths.DataDir = cfg.Paths.SaveDir
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when data dir equals save dir")
	}

	cfg = newValid()
	cfg.Monitor.ProcessDrainTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero process drain timeout")
	}
}
