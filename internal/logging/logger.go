package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"vigil/internal/config"
)

// Options selects the level, output format, and destinations for a new
// logger.
type Options struct {
	Level        string
	Format       string
	Outputs      []string
	ErrorOutputs []string
}

// New builds a slog logger for the requested format. "console" renders
// component-prefixed key=value lines; "json" emits one object per line with
// ts/level/msg keys.
func New(opts Options) (*slog.Logger, error) {
	var levelVar slog.LevelVar
	levelVar.Set(parseLevel(opts.Level))

	sink, err := buildSink(opts.Outputs, opts.ErrorOutputs)
	if err != nil {
		return nil, err
	}

	withSource := levelVar.Level() <= slog.LevelDebug

	switch normalizeFormat(opts.Format) {
	case "json":
		return slog.New(jsonHandler(sink, &levelVar, withSource)), nil
	case "console":
		return slog.New(&consoleHandler{sink: sink, level: &levelVar, source: withSource}), nil
	default:
		return nil, fmt.Errorf("log format: %q is neither console nor json", opts.Format)
	}
}

// NewFromConfig creates a console logger honoring the config's level and
// format. One-shot commands use this; the daemon wires its per-run log
// files through New directly.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	opts := Options{Level: "info", Format: "console"}
	if cfg != nil {
		opts.Level = cfg.Logging.Level
		opts.Format = cfg.Logging.Format
	}
	return New(opts)
}

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
	"fatal": slog.LevelError,
}

func parseLevel(value string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(value))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

func normalizeFormat(value string) string {
	format := strings.ToLower(strings.TrimSpace(value))
	if format == "" {
		return "console"
	}
	return format
}

// buildSink opens every named output once. "stdout" and "stderr" map to the
// process streams; anything else is opened append-only with its parent
// directory created. Normal and error outputs share one writer so
// interleaved lines stay ordered.
func buildSink(outputs, errorOutputs []string) (io.Writer, error) {
	names := make([]string, 0, len(outputs)+len(errorOutputs)+2)
	if len(outputs) == 0 {
		names = append(names, "stdout")
	}
	names = append(names, outputs...)
	if len(errorOutputs) == 0 {
		names = append(names, "stderr")
	}
	names = append(names, errorOutputs...)

	seen := make(map[string]struct{}, len(names))
	writers := make([]io.Writer, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		switch name {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if dir := filepath.Dir(name); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create log directory %s: %w", dir, err)
				}
			}
			file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", name, err)
			}
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func jsonHandler(w io.Writer, level *slog.LevelVar, withSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   withSource,
		ReplaceAttr: normalizeJSONAttr,
	})
}

// normalizeJSONAttr renames the built-in keys to the short forms the rest
// of the tooling greps for and trims source paths to their basename.
func normalizeJSONAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		attr.Key = "level"
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "msg"
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}

// consoleHandler renders "TIME LEVEL component: message key=value" lines.
// The component attribute is promoted into the message prefix instead of
// being printed as a field.
type consoleHandler struct {
	mu     sync.Mutex
	sink   io.Writer
	level  *slog.LevelVar
	source bool

	attrs  []slog.Attr
	groups []string
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.fork()
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	next := h.fork()
	next.groups = append(next.groups, name)
	return next
}

func (h *consoleHandler) fork() *consoleHandler {
	next := &consoleHandler{sink: h.sink, level: h.level, source: h.source}
	next.attrs = append(next.attrs, h.attrs...)
	next.groups = append(next.groups, h.groups...)
	return next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := make([]field, 0, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		fields = appendField(fields, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.groups, attr)
		return true
	})

	component := ""
	kept := fields[:0]
	for _, f := range fields {
		if f.key == FieldComponent {
			if component == "" {
				component = rawString(f.value)
			}
			continue
		}
		kept = append(kept, f)
	}

	var line strings.Builder
	line.Grow(96 + len(kept)*24)
	line.WriteString(ts.UTC().Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(levelTag(record.Level))
	line.WriteByte(' ')
	if component != "" {
		line.WriteString(component)
		line.WriteString(": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		line.WriteString(msg)
	} else {
		line.WriteString("(no message)")
	}
	if h.source {
		if src := recordSource(record); src != nil {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range kept {
		if f.key == "" {
			continue
		}
		line.WriteByte(' ')
		line.WriteString(f.key)
		line.WriteByte('=')
		line.WriteString(renderValue(f.value))
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.sink, line.String())
	return err
}

// recordSource resolves the record's PC to a *slog.Source; it matches
// slog.Record.Source, which needs a newer toolchain than this module targets.
func recordSource(r slog.Record) *slog.Source {
	if r.PC == 0 {
		return nil
	}
	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()
	return &slog.Source{Function: f.Function, File: f.File, Line: f.Line}
}

type field struct {
	key   string
	value slog.Value
}

// appendField resolves attr and flattens group values into dot-joined keys.
func appendField(dst []field, groups []string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		scope := groups
		if attr.Key != "" {
			scope = append(append(make([]string, 0, len(groups)+1), groups...), attr.Key)
		}
		for _, nested := range attr.Value.Group() {
			dst = appendField(dst, scope, nested)
		}
		return dst
	}

	key := attr.Key
	if len(groups) > 0 {
		joined := strings.Join(groups, ".")
		if key == "" {
			key = joined
		} else {
			key = joined + "." + key
		}
	}
	return append(dst, field{key: key, value: attr.Value})
}

// valueText renders v as text. freeform reports whether the text came from a
// string-like kind and may need quoting before it joins a key=value line.
func valueText(v slog.Value) (text string, freeform bool) {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool()), false
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10), false
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10), false
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64), false
	case slog.KindDuration:
		return v.Duration().String(), false
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339), false
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error(), true
		}
		return fmt.Sprint(v.Any()), true
	default:
		return v.String(), true
	}
}

// rawString renders v without quoting, for values promoted into the line
// prefix.
func rawString(v slog.Value) string {
	text, _ := valueText(v)
	return text
}

func renderValue(v slog.Value) string {
	text, freeform := valueText(v)
	if freeform {
		return quoteIfNeeded(text)
	}
	return text
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	needsQuoting := strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
	if needsQuoting {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
