package monitor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"vigil/internal/sigstore"
)

// gameEpochYear anchors the linear day axis. Campaigns start in 1836.
const gameEpochYear = 1836

var (
	gameDatePattern     = regexp.MustCompile(`^(\d{4})\.(\d{1,2})\.(\d{1,2})$`)
	filenameDatePattern = regexp.MustCompile(`_(\d{4})_(\d{1,2})_(\d{1,2})(?:_|$)`)
)

// LinearGameDay flattens a game date onto a single monotonic axis. Months
// count as 30 days so dates order correctly without a real calendar; the
// result is only ever compared, never converted back.
func LinearGameDay(year, month, day int) int {
	return (year-gameEpochYear)*365 + (month-1)*30 + day
}

// ParseGameDate parses the "YYYY.M.D" form dates take inside save content.
func ParseGameDate(value string) (year, month, day int, ok bool) {
	match := gameDatePattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return 0, 0, 0, false
	}
	year, _ = strconv.Atoi(match[1])
	month, _ = strconv.Atoi(match[2])
	day, _ = strconv.Atoi(match[3])
	return year, month, day, true
}

// dateFromFilename recovers a date from save names like
// "france_1923_10_2.v3", a common manual-save convention.
func dateFromFilename(path string) (year, month, day int, ok bool) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	match := filenameDatePattern.FindStringSubmatch(stem)
	if match == nil {
		return 0, 0, 0, false
	}
	year, _ = strconv.Atoi(match[1])
	month, _ = strconv.Atoi(match[2])
	day, _ = strconv.Atoi(match[3])
	return year, month, day, true
}

// enrichTimeline guarantees every data point carries a usable timeline
// position before deduplication runs. Sources are tried in order of
// authority: a game day or date from the save content, a date embedded in
// the filename, the snapshot mtime, and finally arrival order. The chosen
// source is recorded under MetaTimelineSource so downstream consumers can
// tell precise positions from approximations.
func enrichTimeline(dp *DataPoint, sourcePath string, sig sigstore.Signature) map[string]any {
	if dp.Metadata == nil {
		dp.Metadata = make(map[string]any)
	}
	metadata := dp.Metadata
	setDefault(metadata, MetaFilename, filepath.Base(sourcePath))

	if raw, present := metadata[MetaGameDay]; present {
		if dayValue, valid := coerceGameDay(raw); valid {
			metadata[MetaGameDay] = dayValue
			setDefault(metadata, MetaTimelineSource, timelineSourceSaveDate)
			return metadata
		}
		delete(metadata, MetaGameDay)
	}
	if rawDate, isString := metadata[MetaDate].(string); isString {
		if y, m, d, valid := ParseGameDate(rawDate); valid {
			metadata[MetaGameDay] = LinearGameDay(y, m, d)
			setDefault(metadata, MetaTimelineSource, timelineSourceSaveDate)
			return metadata
		}
	}

	if y, m, d, valid := dateFromFilename(sourcePath); valid {
		dateText := fmt.Sprintf("%d.%d.%d", y, m, d)
		dayValue := LinearGameDay(y, m, d)
		metadata[MetaFilenameDate] = dateText
		metadata[MetaFilenameGameDay] = dayValue
		setDefault(metadata, MetaDate, dateText)
		setDefault(metadata, MetaGameDay, dayValue)
		setDefault(metadata, MetaTimelineSource, timelineSourceFilenameDate)
		return metadata
	}

	if !sig.IsZero() {
		metadata[MetaFileMtimeEpoch] = float64(sig.MtimeNanos) / 1e9
		metadata[MetaTimelineSource] = timelineSourceFileMtime
	} else {
		metadata[MetaTimelineSource] = timelineSourceIndex
	}
	return metadata
}

// coerceGameDay normalizes the game day however an extractor or a stored
// data point represented it. JSON round-trips turn ints into float64, so
// floats truncate; strings that do not hold a whole number are rejected.
func coerceGameDay(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func setDefault(m map[string]any, key string, value any) {
	if _, present := m[key]; !present {
		m[key] = value
	}
}
