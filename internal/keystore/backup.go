package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/system"
)

// Backup copies key material to destination, merging into whatever is
// already there and overwriting conflicting files:
//   - name and c set: the single key, as destination/<name>
//   - only c set: the contents of that category directory
//   - neither set: the whole key tree, one subdirectory per category
func (s *Store) Backup(destination string, c Category, name string, dryRun bool) error {
	if destination == "" {
		return ksmerrors.Validationf("backup destination is empty")
	}
	if c != "" {
		if err := validateCategory(c); err != nil {
			return err
		}
	}

	switch {
	case name != "":
		if err := validateName(name); err != nil {
			return err
		}
		if c == "" {
			return ksmerrors.WithHint(
				ksmerrors.NotFoundf("key '%s' without a category", name),
				"pass --key-type together with --key-name")
		}
		src := s.Path(name, c)
		info, err := os.Stat(src)
		if err != nil || !info.Mode().IsRegular() {
			return ksmerrors.NotFoundf("key '%s' in %s", name, c)
		}
		target := filepath.Join(destination, name)
		return s.copy(src, destination, dryRun,
			fmt.Sprintf("Would copy key %s to %s", src, target),
			func() error { return system.CopyFile(src, target) })

	case c != "":
		src := CategoryDir(s.root, c)
		if err := requireDir(src); err != nil {
			return err
		}
		return s.copy(src, destination, dryRun,
			fmt.Sprintf("Would copy all %s keys from %s to %s", c, src, destination),
			func() error { return system.CopyTree(src, destination) })

	default:
		if err := requireDir(s.root); err != nil {
			return err
		}
		return s.copy(s.root, destination, dryRun,
			fmt.Sprintf("Would copy all keys from %s to %s", s.root, destination),
			func() error { return system.CopyTree(s.root, destination) })
	}
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return ksmerrors.NotFoundf("directory '%s'", path)
	}
	return nil
}

func (s *Store) copy(src, destination string, dryRun bool, intent string, copyFn func() error) error {
	if err := checkNotInside(src, destination); err != nil {
		return err
	}

	if dryRun {
		s.log.DryRun("%s", intent)
		return nil
	}

	needed, err := system.TreeSize(src)
	if err != nil {
		return fmt.Errorf("failed to measure %s: %w", src, err)
	}
	available, err := system.GetAvailableSpace(destination)
	if err != nil {
		return err
	}
	if needed > available {
		return fmt.Errorf("%w: backup needs %s but %s has %s available",
			ksmerrors.ErrInsufficientResource, system.FormatSize(needed), destination, system.FormatSize(available))
	}

	if err := os.MkdirAll(destination, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", destination, err)
	}
	if err := s.log.Progress("Copying keys to "+destination, copyFn); err != nil {
		return err
	}

	s.log.Success("Keys backed up successfully to %s", destination)
	return nil
}

// checkNotInside refuses a destination inside the source tree, which would
// make the copy recurse into itself
func checkNotInside(src, destination string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	absDst, err := filepath.Abs(destination)
	if err != nil {
		return err
	}
	if absDst == absSrc || strings.HasPrefix(absDst, absSrc+string(os.PathSeparator)) {
		return ksmerrors.Validationf("backup destination %s is inside the key tree %s", destination, src)
	}
	return nil
}
