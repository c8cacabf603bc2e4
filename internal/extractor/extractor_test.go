package extractor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/extractor"
	"vigil/internal/monitor"
	"vigil/internal/services"
)

type stubExec struct {
	output []byte
	err    error
	calls  [][]string
}

func (s *stubExec) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	s.calls = append(s.calls, append([]string{binary}, args...))
	return s.output, s.err
}

type meltExitError struct {
	code   int
	stderr []byte
}

func (e meltExitError) Error() string  { return "melt failed" }
func (e meltExitError) ExitCode() int  { return e.code }
func (e meltExitError) Stderr() []byte { return e.stderr }

func writeSave(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write save: %v", err)
	}
	return path
}

// newService uses the test binary itself as the melter so the lookup check
// passes; the injected executor keeps it from ever being run.
func newService(t *testing.T, binary string, exec extractor.Executor) *extractor.Service {
	t.Helper()
	svc, err := extractor.New(binary, 30, nil, extractor.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestExtractTextSave(t *testing.T) {
	cases := []struct {
		name        string
		content     string
		wantDate    string
		wantDay     int
		wantVersion string
	}{
		{
			name:        "quoted current_date",
			content:     "meta_data={\n\tversion=\"1.5.10\"\n\tcurrent_date=\"1841.5.12\"\n}\n",
			wantDate:    "1841.5.12",
			wantDay:     monitor.LinearGameDay(1841, 5, 12),
			wantVersion: "1.5.10",
		},
		{
			name:        "unquoted game_date",
			content:     "game_date=1920.12.28\nversion=\"1.9.2\"\n",
			wantDate:    "1920.12.28",
			wantDay:     monitor.LinearGameDay(1920, 12, 28),
			wantVersion: "1.9.2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubExec{}
			svc := newService(t, os.Args[0], stub)
			path := writeSave(t, t.TempDir(), "sweden.v3", []byte(tc.content))

			dp, err := svc.Extract(context.Background(), path, "sweden")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got := dp.Metadata[monitor.MetaDate]; got != tc.wantDate {
				t.Fatalf("date = %v, want %s", got, tc.wantDate)
			}
			if got := dp.Metadata[monitor.MetaGameDay]; got != tc.wantDay {
				t.Fatalf("game day = %v, want %d", got, tc.wantDay)
			}
			if got := dp.Metadata[monitor.MetaGameVersion]; got != tc.wantVersion {
				t.Fatalf("game version = %v, want %s", got, tc.wantVersion)
			}
			if got := dp.Metadata[monitor.MetaSaveFormat]; got != "text" {
				t.Fatalf("save format = %v, want text", got)
			}
			if got := dp.Metadata[monitor.MetaParseBackend]; got != "regex_text" {
				t.Fatalf("parse backend = %v, want regex_text", got)
			}
			if got := dp.Metadata[monitor.MetaFilename]; got != "sweden.v3" {
				t.Fatalf("filename = %v, want sweden.v3", got)
			}
			if len(stub.calls) != 0 {
				t.Fatalf("melter invoked for a text save: %v", stub.calls)
			}
		})
	}
}

func TestExtractBinarySaveMelts(t *testing.T) {
	cases := []struct {
		name   string
		header []byte
	}{
		{name: "sav container", header: []byte("SAV\x01\x00\xff")},
		{name: "zip container", header: []byte{'P', 'K', 0x03, 0x04, 0x00}},
	}

	melted := "meta_data={\n\tversion=\"1.5.10\"\n\tgame_date=1850.3.14\n}\n"
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubExec{output: []byte(melted)}
			svc := newService(t, os.Args[0], stub)
			path := writeSave(t, t.TempDir(), "prussia.v3", tc.header)

			dp, err := svc.Extract(context.Background(), path, "prussia")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got := dp.Metadata[monitor.MetaSaveFormat]; got != "binary" {
				t.Fatalf("save format = %v, want binary", got)
			}
			if got := dp.Metadata[monitor.MetaParseBackend]; got != "rakaly" {
				t.Fatalf("parse backend = %v, want rakaly", got)
			}
			if got := dp.Metadata[monitor.MetaGameDay]; got != monitor.LinearGameDay(1850, 3, 14) {
				t.Fatalf("game day = %v", got)
			}
			if got := dp.Metadata[monitor.MetaGameVersion]; got != "1.5.10" {
				t.Fatalf("game version = %v", got)
			}

			if len(stub.calls) != 1 {
				t.Fatalf("expected one melter invocation, got %d", len(stub.calls))
			}
			want := strings.Join([]string{os.Args[0], "melt", "--unknown-key", "stringify", "--to-stdout", path}, " ")
			if got := strings.Join(stub.calls[0], " "); got != want {
				t.Fatalf("melter invocation = %q, want %q", got, want)
			}
		})
	}
}

func TestExtractMeltFailureClassification(t *testing.T) {
	cases := []struct {
		name       string
		exec       *stubExec
		wantMarker error
	}{
		{
			name:       "melter rejects the save",
			exec:       &stubExec{err: meltExitError{code: 1, stderr: []byte("unknown binary token\n")}},
			wantMarker: services.ErrUnsupportedFormat,
		},
		{
			name:       "melter cannot run",
			exec:       &stubExec{err: errors.New("fork/exec: resource unavailable")},
			wantMarker: services.ErrRuntimeUnavailable,
		},
		{
			name:       "melter produces no output",
			exec:       &stubExec{},
			wantMarker: services.ErrUnsupportedFormat,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(t, os.Args[0], tc.exec)
			path := writeSave(t, t.TempDir(), "sardinia.v3", []byte("SAV\x00\x01"))

			_, err := svc.Extract(context.Background(), path, "sardinia")
			if !errors.Is(err, tc.wantMarker) {
				t.Fatalf("error = %v, want marker %v", err, tc.wantMarker)
			}
		})
	}
}

func TestExtractMeltFailureIncludesStderr(t *testing.T) {
	stub := &stubExec{err: meltExitError{code: 3, stderr: []byte("\ninvalid zip archive\n")}}
	svc := newService(t, os.Args[0], stub)
	path := writeSave(t, t.TempDir(), "baden.v3", []byte("SAV"))

	_, err := svc.Extract(context.Background(), path, "baden")
	if err == nil {
		t.Fatal("expected melt failure")
	}
	msg := err.Error()
	if !strings.Contains(msg, "exit status 3") {
		t.Fatalf("expected exit status in message, got %q", msg)
	}
	if !strings.Contains(msg, "invalid zip archive") {
		t.Fatalf("expected stderr detail in message, got %q", msg)
	}
}

func TestExtractMissingMelter(t *testing.T) {
	stub := &stubExec{output: []byte("game_date=1850.1.1")}
	svc := newService(t, "vigil-melter-that-does-not-exist", stub)
	path := writeSave(t, t.TempDir(), "bavaria.v3", []byte("SAV\x01"))

	_, err := svc.Extract(context.Background(), path, "bavaria")
	if !errors.Is(err, services.ErrRuntimeUnavailable) {
		t.Fatalf("error = %v, want runtime unavailable", err)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("melter invoked despite missing binary: %v", stub.calls)
	}
}

func TestExtractMissingDateIsNotAnError(t *testing.T) {
	svc := newService(t, os.Args[0], &stubExec{})
	path := writeSave(t, t.TempDir(), "no_date.v3", []byte("population=12000\n"))

	dp, err := svc.Extract(context.Background(), path, "no_date")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, present := dp.Metadata[monitor.MetaDate]; present {
		t.Fatal("unexpected date in metadata")
	}
	if _, present := dp.Metadata[monitor.MetaGameDay]; present {
		t.Fatal("unexpected game day in metadata")
	}
	if got := dp.Metadata[monitor.MetaFilename]; got != "no_date.v3" {
		t.Fatalf("filename = %v, want no_date.v3", got)
	}
}

type blockedExec struct{}

func (blockedExec) Run(ctx context.Context, _ string, _ []string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExtractMeltTimeout(t *testing.T) {
	svc, err := extractor.New(os.Args[0], 1, nil, extractor.WithExecutor(blockedExec{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := writeSave(t, t.TempDir(), "slow.v3", []byte("SAV"))

	if _, err := svc.Extract(context.Background(), path, "slow"); !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("error = %v, want timeout", err)
	}
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := extractor.New("   ", 0, nil); err == nil {
		t.Fatal("expected error for empty melter binary")
	}
}
