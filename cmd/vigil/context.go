package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"vigil/internal/config"
	"vigil/internal/ipc"
)

// commandContext carries the shared --socket and --config flags plus a
// lazily loaded configuration, so subcommands resolve both exactly once.
type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(c.loadConfig)
	return c.config, c.configErr
}

func (c *commandContext) loadConfig() {
	var path string
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	cfg, _, _, err := config.Load(path)
	if err == nil {
		err = cfg.EnsureDirectories()
	}
	if err != nil {
		c.configErr = err
		return
	}
	c.config = cfg
}

// configValue returns the loaded config or nil, for callers that can work
// without one.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil {
		if socket := strings.TrimSpace(*c.socketFlag); socket != "" {
			return socket
		}
	}
	return defaultSocketPath()
}

// tryDialClient returns a connected client or nil when no daemon is
// listening; hard dial failures still surface as errors.
func (c *commandContext) tryDialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) || os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `vigil start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: nothing is listening on %s; the daemon may have exited uncleanly, try `vigil start`", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

// defaultSocketPath mirrors the daemon's socket location under the
// configured log directory, falling back to the conventional location and
// finally the temp dir when no config loads.
func defaultSocketPath() string {
	if cfg, _, _, err := config.Load(""); err == nil {
		return filepath.Join(cfg.Paths.LogDir, "vigil.sock")
	}
	logDir, err := config.ExpandPath("~/.local/share/vigil/logs")
	if err != nil {
		return filepath.Join(os.TempDir(), "vigil.sock")
	}
	return filepath.Join(logDir, "vigil.sock")
}

// shouldSkipConfig reports whether cmd or an ancestor opted out of config
// loading via the skipConfigLoad annotation.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

