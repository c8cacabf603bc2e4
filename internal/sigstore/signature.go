package sigstore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Signature identifies one on-disk version of a save file. Two writes that
// leave the same size and mtime are treated as the same version.
type Signature struct {
	MtimeNanos int64 `json:"mtime_ns"`
	Size       int64 `json:"size"`
}

// Key returns the canonical "size:mtime" form used for dedup sets.
func (s Signature) Key() string {
	return fmt.Sprintf("%d:%d", s.Size, s.MtimeNanos)
}

// Fragment returns the key in a form safe to embed in filenames.
func (s Signature) Fragment() string {
	return strings.ReplaceAll(s.Key(), ":", "_")
}

// IsZero reports whether the signature carries no observation.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// FromFileInfo builds a signature from stat results.
func FromFileInfo(info fs.FileInfo) Signature {
	return Signature{
		MtimeNanos: info.ModTime().UnixNano(),
		Size:       info.Size(),
	}
}

// Stat returns the current signature of the file at path. The second return
// is false when the file cannot be statted, which callers treat the same as
// the file not existing.
func Stat(path string) (Signature, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return Signature{}, false
	}
	return FromFileInfo(info), true
}

// PathKey returns a stable identity for a watched path: absolute with
// symlinks resolved when possible, absolute otherwise.
func PathKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
