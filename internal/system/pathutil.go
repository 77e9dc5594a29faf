package system

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

// ValidateKeyfilePath validates and resolves a keyfile path, rejecting
// directories, devices and other non-regular files.
// Returns the canonical absolute path if valid.
func ValidateKeyfilePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ksmerrors.NotFoundf("keyfile %s", path)
		}
		return "", fmt.Errorf("failed to resolve keyfile path: %w", err)
	}

	resolved, err = filepath.Abs(filepath.Clean(resolved))
	if err != nil {
		return "", fmt.Errorf("failed to resolve keyfile path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("keyfile not accessible: %w", err)
	}

	if !info.Mode().IsRegular() {
		return "", ksmerrors.Validationf("keyfile must be a regular file, not a directory or device: %s", resolved)
	}

	return resolved, nil
}

// InsecurePermissions reports whether path is readable by group or others,
// together with its permission bits
func InsecurePermissions(path string) (os.FileMode, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	mode := info.Mode().Perm()
	return mode, mode&0044 != 0
}

// GetFileSize returns the size of a file in bytes
func GetFileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return uint64(info.Size()), nil
}

// GetAvailableSpace returns available space in bytes for the filesystem that
// holds path. Missing trailing components are skipped so a backup destination
// can be checked before it is created.
func GetAvailableSpace(path string) (uint64, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("invalid path %s: %w", path, err)
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, fmt.Errorf("failed to get filesystem stats: %w", err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
