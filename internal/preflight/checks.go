package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

func pass(name, detail string) Result {
	return Result{Name: name, Passed: true, Detail: detail}
}

func fail(name, detail string) Result {
	return Result{Name: name, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return fail(name, path+" (error: does not exist)")
	case err != nil:
		return fail(name, fmt.Sprintf("%s (error: stat: %v)", path, err))
	case !info.IsDir():
		return fail(name, path+" (error: is not a directory)")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail(name, fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err))
	}
	return pass(name, path+" (read/write ok)")
}

// CheckWritableFile verifies that the file either exists writable or could
// be created in its parent directory.
func CheckWritableFile(name, path string) Result {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		parent := filepath.Dir(path)
		if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
			return fail(name, fmt.Sprintf("%s (error: parent not writable: %v)", path, err))
		}
		return pass(name, path+" (will be created)")
	}
	if err != nil {
		return fail(name, fmt.Sprintf("%s (error: stat: %v)", path, err))
	}
	if info.IsDir() {
		return fail(name, path+" (error: is a directory)")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return fail(name, fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err))
	}
	return pass(name, path+" (writable)")
}

// CheckMelter reports whether the configured melter binary resolves on PATH.
// The check is optional because only binary saves need melting.
func CheckMelter(binary string) Result {
	result := Result{Name: "Melter", Optional: true}

	binary = strings.TrimSpace(binary)
	if binary == "" {
		result.Detail = "command not configured"
		return result
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", binary)
		return result
	}
	result.Passed = true
	result.Detail = resolved
	return result
}
