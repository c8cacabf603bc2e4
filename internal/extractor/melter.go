package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vigil/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// commandExecutor executes commands using os/exec.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.Output()
}

// Binary saves either open with the Paradox container header or are zip
// archives holding the compressed gamestate.
var (
	saveMagic = []byte("SAV")
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
)

func isBinarySave(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, 4)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	header = header[:n]
	return bytes.HasPrefix(header, saveMagic) || bytes.HasPrefix(header, zipMagic), nil
}

// melt converts a binary save to plain text through the melter binary. The
// melter is probed on every call rather than once at startup, so installing
// it later recovers binary support without a restart.
func (s *Service) melt(ctx context.Context, path string) ([]byte, error) {
	if _, err := exec.LookPath(s.binary); err != nil {
		return nil, services.Wrap(services.ErrRuntimeUnavailable, "extractor", "melt",
			fmt.Sprintf("melter binary %q not found", s.binary), err)
	}

	meltCtx := ctx
	if s.meltTimeout > 0 {
		var cancel context.CancelFunc
		meltCtx, cancel = context.WithTimeout(ctx, s.meltTimeout)
		defer cancel()
	}

	args := []string{"melt", "--unknown-key", "stringify", "--to-stdout", path}
	output, err := s.exec.Run(meltCtx, s.binary, args)
	if err != nil {
		base := filepath.Base(path)
		if meltCtx.Err() != nil {
			message := fmt.Sprintf("melting %s was canceled", base)
			if errors.Is(meltCtx.Err(), context.DeadlineExceeded) {
				message = fmt.Sprintf("melting %s exceeded %s", base, s.meltTimeout)
			}
			return nil, services.Wrap(services.ErrTimeout, "extractor", "melt", message, err)
		}
		type exitCoder interface{ ExitCode() int }
		var exitErr exitCoder
		if errors.As(err, &exitErr) {
			message := fmt.Sprintf("melter could not decode %s (exit status %d)", base, exitErr.ExitCode())
			if detail := stderrSummary(err); detail != "" {
				message += ": " + detail
			}
			return nil, services.Wrap(services.ErrUnsupportedFormat, "extractor", "melt", message, err)
		}
		return nil, services.Wrap(services.ErrRuntimeUnavailable, "extractor", "melt",
			fmt.Sprintf("melter %q could not run", s.binary), err)
	}
	if len(output) == 0 {
		return nil, services.Wrap(services.ErrUnsupportedFormat, "extractor", "melt",
			fmt.Sprintf("melter produced no output for %s", filepath.Base(path)), nil)
	}
	return output, nil
}

// stderrSummary pulls the first non-empty stderr line out of an exec error.
func stderrSummary(err error) string {
	for _, line := range strings.Split(string(extractStderr(err)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func extractStderr(err error) []byte {
	type stderrProvider interface {
		Stderr() []byte
	}
	var provider stderrProvider
	if errors.As(err, &provider) {
		return provider.Stderr()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Stderr
	}
	return nil
}
