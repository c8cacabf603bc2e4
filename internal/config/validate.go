package config

import "errors"

// Validate rejects configurations the pipeline cannot run with. It runs
// after normalize, so every path is absolute and every default is filled.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	return c.validateExtraction()
}

func (c *Config) validatePaths() error {
	if c.Paths.SaveDir == "" {
		return errors.New("paths.save_dir must be set")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	// Capturing into the watched directory would feed the pipeline its own
	// output as fresh notifications.
	if c.Paths.DataDir == c.Paths.SaveDir {
		return errors.New("paths.data_dir must differ from paths.save_dir")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.Extension == "" {
		return errors.New("monitor.extension must be set")
	}
	if c.Monitor.DebounceSeconds <= 0 {
		return errors.New("monitor.debounce_seconds must be positive")
	}
	if c.Monitor.SignaturePollSeconds <= 0 {
		return errors.New("monitor.signature_poll_seconds must be positive")
	}
	if c.Monitor.StabilizeTimeoutSeconds <= 0 {
		return errors.New("monitor.stabilize_timeout_seconds must be positive")
	}
	if c.Monitor.StabilizeTimeoutSeconds < c.Monitor.DebounceSeconds {
		return errors.New("monitor.stabilize_timeout_seconds must be at least monitor.debounce_seconds")
	}
	if c.Monitor.CopyRetries < 1 {
		return errors.New("monitor.copy_retries must be >= 1")
	}
	if c.Monitor.CopyRetryDelaySeconds < 0 {
		return errors.New("monitor.copy_retry_delay_seconds must be >= 0")
	}
	if c.Monitor.CaptureDrainTimeoutSeconds <= 0 {
		return errors.New("monitor.capture_drain_timeout_seconds must be positive")
	}
	if c.Monitor.ProcessDrainTimeoutSeconds <= 0 {
		return errors.New("monitor.process_drain_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateExtraction() error {
	if c.Extraction.MelterTimeoutSeconds <= 0 {
		return errors.New("extraction.melter_timeout_seconds must be positive (seconds)")
	}
	return nil
}
