package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	SaveDir   string `toml:"save_dir"`
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	StateFile string `toml:"state_file"`
}

// Monitor contains tuning for the capture pipeline.
type Monitor struct {
	Extension                  string  `toml:"extension"`
	RotationMarker             string  `toml:"rotation_marker"`
	DebounceSeconds            float64 `toml:"debounce_seconds"`
	SignaturePollSeconds       float64 `toml:"signature_poll_seconds"`
	StabilizeTimeoutSeconds    float64 `toml:"stabilize_timeout_seconds"`
	CopyRetries                int     `toml:"copy_retries"`
	CopyRetryDelaySeconds      float64 `toml:"copy_retry_delay_seconds"`
	CaptureDrainTimeoutSeconds int     `toml:"capture_drain_timeout_seconds"`
	ProcessDrainTimeoutSeconds int     `toml:"process_drain_timeout_seconds"`
	ScanOnStart                bool    `toml:"scan_on_start"`
}

// Extraction contains configuration for the save metadata extractor.
type Extraction struct {
	MelterBinary         string `toml:"melter_binary"`
	MelterTimeoutSeconds int    `toml:"melter_timeout_seconds"`
}

// Logging selects the log format and verbosity.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the full vigil configuration tree:
//   - Paths: the watched save directory plus data/log output locations
//   - Monitor: stabilization, dedup, retry, and drain tuning
//   - Extraction: external melter binary for binary saves
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Monitor    Monitor    `toml:"monitor"`
	Extraction Extraction `toml:"extraction"`
	Logging    Logging    `toml:"logging"`
}

// defaultConfigLocation is where Load looks first when no explicit path is
// given; a vigil.toml in the working directory is the fallback.
const defaultConfigLocation = "~/.config/vigil/config.toml"

// DefaultConfigPath returns the absolute path of the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigLocation)
}

// Load finds the effective configuration file and parses it over the
// defaults. Missing files are not an error: defaults apply and exists
// reports false. The returned config has all path fields expanded and
// normalized.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		raw, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// resolveConfigPath picks the config file to read. An explicit path is used
// as-is whether or not it exists; otherwise the default location and then a
// project-local vigil.toml are probed, and the default location is reported
// when neither exists.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		abs, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(abs); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return abs, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return abs, true, nil
	}

	defaultPath, err := expandPath(defaultConfigLocation)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("vigil.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation. The
// watched save directory belongs to the game and is never created here; its
// absence is surfaced by preflight checks instead.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.QuarantineDir(), c.ArchiveDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Names of the pipeline working directories under the data directory.
// Playthrough listings skip these when scanning for stored data points.
const (
	QuarantineDirName = "queued_saves"
	ArchiveDirName    = "processed_saves"
)

// QuarantineDir returns the holding area for captured snapshots awaiting
// processing.
func (c *Config) QuarantineDir() string {
	return filepath.Join(c.Paths.DataDir, QuarantineDirName)
}

// ArchiveDir returns the durable per-playthrough archive of processed
// snapshots.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.Paths.DataDir, ArchiveDirName)
}

// StateFilePath returns the dedup state ledger location.
func (c *Config) StateFilePath() string {
	if strings.TrimSpace(c.Paths.StateFile) != "" {
		return c.Paths.StateFile
	}
	return filepath.Join(c.Paths.DataDir, "monitor_state.json")
}

// HistoryDBPath returns the location of the outcome history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// MelterBinary returns the executable used to melt binary saves to plain text.
func (c *Config) MelterBinary() string {
	if strings.TrimSpace(c.Extraction.MelterBinary) == "" {
		return defaultMelterBinary
	}
	return c.Extraction.MelterBinary
}

func (c *Config) Debounce() time.Duration {
	return secondsToDuration(c.Monitor.DebounceSeconds)
}

func (c *Config) SignaturePoll() time.Duration {
	return secondsToDuration(c.Monitor.SignaturePollSeconds)
}

func (c *Config) StabilizeTimeout() time.Duration {
	return secondsToDuration(c.Monitor.StabilizeTimeoutSeconds)
}

func (c *Config) CopyRetryDelay() time.Duration {
	return secondsToDuration(c.Monitor.CopyRetryDelaySeconds)
}

func (c *Config) CaptureDrainTimeout() time.Duration {
	return time.Duration(c.Monitor.CaptureDrainTimeoutSeconds) * time.Second
}

func (c *Config) ProcessDrainTimeout() time.Duration {
	return time.Duration(c.Monitor.ProcessDrainTimeoutSeconds) * time.Second
}

func (c *Config) MelterTimeout() time.Duration {
	return time.Duration(c.Extraction.MelterTimeoutSeconds) * time.Second
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// expandPath turns a possibly ~-prefixed path into a cleaned absolute one.
func expandPath(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if value == "~" {
			value = home
		} else {
			value = filepath.Join(home, value[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(value))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(value string) (string, error) {
	return expandPath(value)
}

// CreateSample writes the embedded sample configuration to path, creating
// parent directories as needed.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
