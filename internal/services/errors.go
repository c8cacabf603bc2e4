package services

import (
	"errors"
	"fmt"
	"strings"
)

// Generic failure markers shared by all pipeline stages.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Extraction failure markers. The pipeline inspects these to decide how an
// outcome is counted and logged.
var (
	// ErrRuntimeUnavailable marks extraction failures caused by a missing or
	// broken parser runtime. The dependency may recover, so the pipeline keeps
	// running and counts the item as an error.
	ErrRuntimeUnavailable = errors.New("parser runtime unavailable")
	// ErrUnsupportedFormat marks saves the extractor recognized but could not
	// decode. Counted separately from generic errors.
	ErrUnsupportedFormat = errors.New("unsupported save format")
)

// Wrap tags err with a sentinel marker and stage context so callers can
// classify the failure with errors.Is while keeping the full chain. A nil
// marker falls back to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := buildDetail(stage, operation, message)
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

func buildDetail(stage, operation, message string) string {
	var parts []string
	for _, part := range []string{stage, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
