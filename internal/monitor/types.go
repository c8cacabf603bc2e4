package monitor

import (
	"context"
	"time"

	"vigil/internal/sigstore"
)

// Reasons attached to captured snapshots. They travel with the task and end
// up in logs and the outcome history.
const (
	ReasonFileEvent   = "file_event"
	ReasonStartupScan = "startup_scan"
)

// Metadata keys the pipeline reads or writes on extracted data points.
const (
	MetaDate            = "date"
	MetaGameDay         = "game_day"
	MetaGameVersion     = "game_version"
	MetaFilename        = "filename"
	MetaTimelineSource  = "timeline_source"
	MetaFilenameDate    = "filename_date"
	MetaFilenameGameDay = "filename_game_day"
	MetaFileMtimeEpoch  = "file_mtime_epoch"
	MetaParseBackend    = "parse_backend"
	MetaSaveFormat      = "save_format"
)

// Timeline sources, from most to least authoritative.
const (
	timelineSourceSaveDate     = "save_date"
	timelineSourceFilenameDate = "filename_date"
	timelineSourceFileMtime    = "file_mtime"
	timelineSourceIndex        = "index"
)

// DataPoint is one extracted observation from a save snapshot. Metadata is
// schemaless on purpose: extractors record whatever they can pull out of the
// save, and the pipeline only interprets the timeline keys above.
type DataPoint struct {
	Metadata map[string]any `json:"metadata"`
}

// Extractor pulls a data point out of a stable, quarantined snapshot. The
// path always refers to the quarantined copy, never the live save slot.
type Extractor interface {
	Extract(ctx context.Context, path, playthrough string) (*DataPoint, error)
}

// Notifier delivers raw change notifications for the watched directory.
type Notifier interface {
	Start() error
	Stop()
}

// NotifierFactory builds the notifier once the monitor can hand it an event
// callback. Tests substitute a fake here to drive events deterministically.
type NotifierFactory func(handler func(path string)) Notifier

// Task is one captured snapshot awaiting serialized processing. QueuedPath
// is the quarantined copy the extractor reads; SourcePath is the original
// save slot the snapshot was taken from and names the archived file later.
type Task struct {
	ID          string
	QueuedPath  string
	SourcePath  string
	Signature   sigstore.Signature
	Playthrough string
	Reason      string
	QueuedAt    time.Time
}

// Queue elements for the two worker channels. The stop variants are the
// shutdown sentinels; workers exit when they drain one.
type eventItem struct {
	path string
	stop bool
}

type taskItem struct {
	task *Task
	stop bool
}
