package sigstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"vigil/internal/logging"
)

const stateVersion = 3

// Store provides thread-safe access to the persisted dedup state.
type Store struct {
	path   string
	logger *slog.Logger

	mu         sync.RWMutex
	signatures map[string]Signature
	seenDays   map[string]map[int]struct{}
	seenKeys   map[string]struct{}
}

// Totals summarizes the state for status reporting.
type Totals struct {
	TrackedFiles  int
	SeenGameDays  int
	SignatureKeys int
}

// NewStore opens the state file at path, loading whatever it can. A missing
// file starts empty. An unreadable or unparsable file is reported and the
// store starts empty without touching it; the next flush overwrites it.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("state file path cannot be empty")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "sigstore")

	s := &Store{
		path:       path,
		logger:     logger,
		signatures: make(map[string]Signature),
		seenDays:   make(map[string]map[int]struct{}),
		seenKeys:   make(map[string]struct{}),
	}

	if err := s.load(); err != nil {
		if errors.Is(err, errStateRewrite) {
			return nil, err
		}
		logger.Warn("failed to load monitor state",
			logging.String(logging.FieldEventType, "state_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "state will start empty"),
			logging.String(logging.FieldImpact, "previously recorded saves may be processed again"))
	}

	return s, nil
}

// Path returns the location of the backing state file.
func (s *Store) Path() string {
	return s.path
}

// Signature returns the last stable signature recorded for pathKey.
func (s *Store) Signature(pathKey string) (Signature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, found := s.signatures[pathKey]
	return sig, found
}

// SetSignature records the latest stable signature for pathKey and persists
// the change before returning.
func (s *Store) SetSignature(pathKey string, sig Signature) error {
	if pathKey == "" {
		return errors.New("path key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.signatures[pathKey] = sig

	if err := s.save(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// HasSeenGameDay reports whether day was already recorded for the playthrough.
func (s *Store) HasSeenGameDay(playthrough string, day int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days, found := s.seenDays[playthrough]
	if !found {
		return false
	}
	_, seen := days[day]
	return seen
}

// MarkGameDay records day for the playthrough in memory. Callers flush once
// the data point it guards has been written.
func (s *Store) MarkGameDay(playthrough string, day int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, found := s.seenDays[playthrough]
	if !found {
		days = make(map[int]struct{})
		s.seenDays[playthrough] = days
	}
	days[day] = struct{}{}
}

// HasSeenSignatureKey reports whether the signature key was already recorded.
func (s *Store) HasSeenSignatureKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, seen := s.seenKeys[key]
	return seen
}

// MarkSignatureKey records a signature key in memory for saves that carry no
// usable game date. Callers flush alongside MarkGameDay.
func (s *Store) MarkSignatureKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenKeys[key] = struct{}{}
}

// Flush persists the current in-memory state.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Reset discards all tracked signatures and dedup history, then persists the
// empty state.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()

	if err := s.save(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	s.logger.Info("monitor state reset",
		logging.String(logging.FieldEventType, "state_reset"))
	return nil
}

// Totals returns entry counts for status reporting.
func (s *Store) Totals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := Totals{
		TrackedFiles:  len(s.signatures),
		SignatureKeys: len(s.seenKeys),
	}
	for _, days := range s.seenDays {
		totals.SeenGameDays += len(days)
	}
	return totals
}

func (s *Store) resetLocked() {
	s.signatures = make(map[string]Signature)
	s.seenDays = make(map[string]map[int]struct{})
	s.seenKeys = make(map[string]struct{})
}

// errStateRewrite marks failures rewriting the file after a version reset,
// which NewStore surfaces instead of swallowing.
var errStateRewrite = errors.New("rewrite state file")

type stateFile struct {
	StateVersion      int                  `json:"state_version"`
	FileSignatures    map[string]Signature `json:"file_signatures"`
	SeenGameDays      map[string][]int     `json:"seen_game_days"`
	SeenSignatureKeys []string             `json:"seen_signature_keys"`
	LastUpdate        time.Time            `json:"last_update"`
}

// load reads the state file into memory. Sections and entries are decoded
// independently so one malformed record does not discard the rest.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // fresh start
		}
		return fmt.Errorf("read state file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}

	version := 0
	if payload, ok := raw["state_version"]; ok {
		_ = json.Unmarshal(payload, &version)
	}

	if version != 2 && version != stateVersion {
		// Version 1 tracked processed paths only and unknown versions cannot
		// be trusted. Neither is migrated: dedup history restarts empty and
		// the file is rewritten at the current version.
		if legacy := decodeStringList(raw["processed_files"]); len(legacy) > 0 {
			s.logger.Info("migrating legacy monitor state",
				logging.String(logging.FieldEventType, "state_migrated"),
				logging.Int("discarded_entries", len(legacy)))
		}
		s.resetLocked()
		if err := s.save(); err != nil {
			return fmt.Errorf("%w: %w", errStateRewrite, err)
		}
		return nil
	}

	s.signatures = decodeSignatures(raw["file_signatures"])
	s.seenDays = decodeSeenDays(raw["seen_game_days"])
	if version == stateVersion {
		s.seenKeys = decodeKeySet(raw["seen_signature_keys"])
	}

	s.logger.Debug("loaded monitor state",
		logging.Int("state_version", version),
		logging.Int("tracked_files", len(s.signatures)),
		logging.Int("signature_keys", len(s.seenKeys)),
		logging.String("path", s.path))

	return nil
}

func decodeSignatures(payload json.RawMessage) map[string]Signature {
	out := make(map[string]Signature)
	if len(payload) == 0 {
		return out
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(payload, &entries); err != nil {
		return out
	}

	for pathKey, entry := range entries {
		// Both fields are required; entries missing either are dropped.
		var sig struct {
			MtimeNanos *int64 `json:"mtime_ns"`
			Size       *int64 `json:"size"`
		}
		if err := json.Unmarshal(entry, &sig); err != nil {
			continue
		}
		if sig.MtimeNanos == nil || sig.Size == nil {
			continue
		}
		out[pathKey] = Signature{MtimeNanos: *sig.MtimeNanos, Size: *sig.Size}
	}
	return out
}

func decodeSeenDays(payload json.RawMessage) map[string]map[int]struct{} {
	out := make(map[string]map[int]struct{})
	if len(payload) == 0 {
		return out
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(payload, &entries); err != nil {
		return out
	}

	for playthrough, rawDays := range entries {
		var elements []json.RawMessage
		if err := json.Unmarshal(rawDays, &elements); err != nil {
			continue
		}
		days := make(map[int]struct{}, len(elements))
		for _, element := range elements {
			var number json.Number
			if err := json.Unmarshal(element, &number); err != nil {
				continue
			}
			if day, err := strconv.ParseInt(number.String(), 10, 64); err == nil {
				days[int(day)] = struct{}{}
				continue
			}
			if value, err := number.Float64(); err == nil {
				days[int(value)] = struct{}{}
			}
		}
		out[playthrough] = days
	}
	return out
}

func decodeKeySet(payload json.RawMessage) map[string]struct{} {
	out := make(map[string]struct{})
	if len(payload) == 0 {
		return out
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(payload, &elements); err != nil {
		return out
	}

	for _, element := range elements {
		var key string
		if err := json.Unmarshal(element, &key); err != nil {
			continue
		}
		out[key] = struct{}{}
	}
	return out
}

func decodeStringList(payload json.RawMessage) []string {
	if len(payload) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil
	}
	return out
}

// save writes the state to disk atomically. Callers hold the lock.
func (s *Store) save() error {
	state := stateFile{
		StateVersion:      stateVersion,
		FileSignatures:    s.signatures,
		SeenGameDays:      make(map[string][]int, len(s.seenDays)),
		SeenSignatureKeys: make([]string, 0, len(s.seenKeys)),
		LastUpdate:        time.Now(),
	}
	for playthrough, days := range s.seenDays {
		sorted := make([]int, 0, len(days))
		for day := range days {
			sorted = append(sorted, day)
		}
		sort.Ints(sorted)
		state.SeenGameDays[playthrough] = sorted
	}
	for key := range s.seenKeys {
		state.SeenSignatureKeys = append(state.SeenSignatureKeys, key)
	}
	sort.Strings(state.SeenSignatureKeys)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) // cleanup on failure
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
