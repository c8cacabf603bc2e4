package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMonitor()
	c.normalizeExtraction()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SaveDir, err = expandPath(c.Paths.SaveDir); err != nil {
		return fmt.Errorf("paths.save_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateFile) != "" {
		if c.Paths.StateFile, err = expandPath(c.Paths.StateFile); err != nil {
			return fmt.Errorf("paths.state_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeMonitor() {
	c.Monitor.Extension = strings.ToLower(strings.TrimSpace(c.Monitor.Extension))
	if c.Monitor.Extension != "" && !strings.HasPrefix(c.Monitor.Extension, ".") {
		c.Monitor.Extension = "." + c.Monitor.Extension
	}
	c.Monitor.RotationMarker = strings.ToLower(strings.TrimSpace(c.Monitor.RotationMarker))
	if c.Monitor.DebounceSeconds <= 0 {
		c.Monitor.DebounceSeconds = defaultDebounceSeconds
	}
	if c.Monitor.SignaturePollSeconds <= 0 {
		c.Monitor.SignaturePollSeconds = defaultSignaturePollSeconds
	}
	if c.Monitor.CopyRetryDelaySeconds < 0 {
		c.Monitor.CopyRetryDelaySeconds = defaultCopyRetryDelaySeconds
	}
}

func (c *Config) normalizeExtraction() {
	c.Extraction.MelterBinary = strings.TrimSpace(c.Extraction.MelterBinary)
	if c.Extraction.MelterBinary == "" {
		c.Extraction.MelterBinary = defaultMelterBinary
	}
	if c.Extraction.MelterTimeoutSeconds <= 0 {
		c.Extraction.MelterTimeoutSeconds = defaultMelterTimeoutSeconds
	}
}

// normalizeLogging folds the format down to the two supported values;
// anything unrecognized becomes console output.
func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format != "json" {
		format = "console"
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
