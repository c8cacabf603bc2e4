// Package extractor pulls timeline metadata out of captured save snapshots.
// Plain-text saves are scanned directly; binary saves are first melted to
// text through an external melter binary. Extraction stops at the metadata
// the pipeline needs for ordering and dedup; snapshot content is otherwise
// left uninterpreted.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"vigil/internal/logging"
	"vigil/internal/monitor"
	"vigil/internal/services"
)

// Save header patterns. Paradox text saves quote values inconsistently, so
// the date pattern tolerates both forms. The first match wins; both headers
// live in the meta block at the front of the save.
var (
	saveDatePattern    = regexp.MustCompile(`(?:current_date|game_date)\s*=\s*"?(\d{4}\.\d{1,2}\.\d{1,2})"?`)
	gameVersionPattern = regexp.MustCompile(`version\s*=\s*"([^"]+)"`)
)

// Values recorded under the parse backend and save format metadata keys.
const (
	backendRegexText = "regex_text"
	backendMelter    = "rakaly"

	formatText   = "text"
	formatBinary = "binary"
)

// Option configures the service.
type Option func(*Service)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(s *Service) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// Service extracts data points from quarantined snapshots. It satisfies the
// monitor's extractor contract.
type Service struct {
	binary      string
	meltTimeout time.Duration
	logger      *slog.Logger
	exec        Executor
}

// New constructs an extractor that melts binary saves with the given binary.
func New(binary string, meltTimeoutSeconds int, logger *slog.Logger, opts ...Option) (*Service, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("melter binary required")
	}
	svc := &Service{
		binary:      binary,
		meltTimeout: time.Duration(meltTimeoutSeconds) * time.Second,
		logger:      logging.NewComponentLogger(logger, "extractor"),
		exec:        commandExecutor{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Extract reads the snapshot at path and returns a data point carrying the
// save date, linear game day, and game version when present. A missing date
// is not an error; the pipeline falls back to filename and mtime timelines.
func (s *Service) Extract(ctx context.Context, path, playthrough string) (*monitor.DataPoint, error) {
	isBinary, err := isBinarySave(path)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extractor", "inspect",
			fmt.Sprintf("could not read save header of %s", filepath.Base(path)), err)
	}

	var content []byte
	backend := backendRegexText
	format := formatText
	if isBinary {
		content, err = s.melt(ctx, path)
		if err != nil {
			return nil, err
		}
		backend = backendMelter
		format = formatBinary
	} else {
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "extractor", "read",
				fmt.Sprintf("could not read save %s", filepath.Base(path)), err)
		}
	}

	metadata := parseMetadata(content)
	metadata[monitor.MetaFilename] = filepath.Base(path)
	metadata[monitor.MetaParseBackend] = backend
	metadata[monitor.MetaSaveFormat] = format

	s.logger.Debug("extracted save metadata",
		logging.String(logging.FieldPath, path),
		logging.String(logging.FieldPlaythrough, playthrough),
		logging.String("save_format", format),
		logging.String(logging.FieldEventType, "save_extracted"),
	)

	return &monitor.DataPoint{Metadata: metadata}, nil
}

// parseMetadata scans save text for the date and version headers.
func parseMetadata(content []byte) map[string]any {
	metadata := make(map[string]any)
	if match := saveDatePattern.FindSubmatch(content); match != nil {
		date := string(match[1])
		metadata[monitor.MetaDate] = date
		if year, month, day, ok := monitor.ParseGameDate(date); ok {
			metadata[monitor.MetaGameDay] = monitor.LinearGameDay(year, month, day)
		}
	}
	if match := gameVersionPattern.FindSubmatch(content); match != nil {
		metadata[monitor.MetaGameVersion] = string(match[1])
	}
	return metadata
}
