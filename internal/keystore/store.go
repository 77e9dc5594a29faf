package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/awnumar/memguard"

	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/system"
	"github.com/nace/ksm/internal/ui"
)

// MaxKeySize is the largest key Create writes, cryptsetup's default
// --keyfile-size limit of 8192 KiB
const MaxKeySize = 8192 * 1024

// Key is one key file in the store
type Key struct {
	Name     string   `json:"name" yaml:"name"`
	Category Category `json:"category" yaml:"category"`
	Size     int64    `json:"size" yaml:"size"`
	Path     string   `json:"path" yaml:"path"`
}

// Listing is the content of one non-empty category
type Listing struct {
	Category Category `json:"category" yaml:"category"`
	Keys     []Key    `json:"keys" yaml:"keys"`
}

// Store manages key files under a mounted key tree. Every method that
// mutates the tree takes a dryRun flag; with it set the method validates
// exactly as a real run would, then only describes what it would do.
type Store struct {
	root     string
	prompter ui.Prompter
	log      *ui.Logger
}

// NewStore creates a store rooted at root (typically <mount point>/keys)
func NewStore(root string, prompter ui.Prompter, log *ui.Logger) *Store {
	return &Store{
		root:     root,
		prompter: prompter,
		log:      log,
	}
}

// Root returns the key tree directory
func (s *Store) Root() string {
	return s.root
}

// Path returns where key name of category c lives
func (s *Store) Path(name string, c Category) string {
	return filepath.Join(CategoryDir(s.root, c), name)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsRune(name, os.PathSeparator) || name != filepath.Base(name) {
		return ksmerrors.WithHint(
			ksmerrors.Validationf("invalid key name %q", name),
			"key names are plain file names such as backup-2024.key")
	}
	return nil
}

func validateCategory(c Category) error {
	if !c.Valid() {
		return ksmerrors.WithHint(
			ksmerrors.Validationf("invalid key category %q", c),
			"use one of: system, vm, backup")
	}
	return nil
}

// Create writes a new key of size random bytes. An existing key is only
// replaced after the operator confirms the overwrite.
func (s *Store) Create(name string, c Category, size int, dryRun bool) (*Key, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateCategory(c); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, ksmerrors.Validationf("key size must be positive, got %d", size)
	}
	if size > MaxKeySize {
		return nil, ksmerrors.WithHint(
			ksmerrors.Validationf("key size %d exceeds the maximum of %d bytes", size, MaxKeySize),
			"cryptsetup cannot use a larger keyfile; pick a smaller --size")
	}

	path := s.Path(name, c)
	key := &Key{Name: name, Category: c, Size: int64(size), Path: path}

	if _, err := os.Stat(path); err == nil {
		if !s.prompter.Confirm(fmt.Sprintf("Key '%s' already exists. Overwrite it?", path)) {
			return nil, ksmerrors.WithHint(
				fmt.Errorf("%w: key '%s' already exists", ksmerrors.ErrStateConflict, path),
				"pick another --name, or confirm the overwrite")
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to check %s: %w", path, err)
	}

	if dryRun {
		s.log.DryRun("Would create key: %s (%d bytes)", path, size)
		return key, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	material := memguard.NewBufferRandom(size)
	defer material.Destroy()
	if err := writeKey(path, material.Bytes()); err != nil {
		return nil, err
	}

	written, err := system.GetFileSize(path)
	if err != nil {
		return nil, err
	}
	if written != uint64(size) {
		return nil, fmt.Errorf("%w: key '%s' has %d bytes, expected %d",
			ksmerrors.ErrIntegrity, path, written, size)
	}

	s.log.Success("Key '%s' created successfully.", path)
	return key, nil
}

func writeKey(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync key %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close key %s: %w", path, err)
	}
	// an overwritten key keeps its old mode otherwise
	return os.Chmod(path, 0600)
}

// List returns the keys of each requested category that has any, in the
// order given. Missing and empty categories are left out; an empty result
// means no keys were found at all.
func (s *Store) List(categories []Category) ([]Listing, error) {
	var listings []Listing
	for _, c := range categories {
		if err := validateCategory(c); err != nil {
			return nil, err
		}
		keys, err := s.keysIn(c)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			listings = append(listings, Listing{Category: c, Keys: keys})
		}
	}
	return listings, nil
}

func (s *Store) keysIn(c Category) ([]Key, error) {
	dir := CategoryDir(s.root, c)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var keys []Key
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		keys = append(keys, Key{
			Name:     entry.Name(),
			Category: c,
			Size:     info.Size(),
			Path:     filepath.Join(dir, entry.Name()),
		})
	}
	return keys, nil
}

// Find returns every key called name, in category enumeration order
func (s *Store) Find(name string) ([]Key, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	var found []Key
	for _, c := range Categories {
		path := s.Path(name, c)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to check %s: %w", path, err)
		}
		if info.Mode().IsRegular() {
			found = append(found, Key{Name: name, Category: c, Size: info.Size(), Path: path})
		}
	}
	return found, nil
}

// Delete removes key name after confirmation. With c empty every category is
// searched, and a name found in more than one category is refused rather
// than guessed. A declined confirmation is reported and leaves the key alone.
func (s *Store) Delete(name string, c Category, dryRun bool) error {
	found, err := s.Find(name)
	if err != nil {
		return err
	}
	if c != "" {
		if err := validateCategory(c); err != nil {
			return err
		}
		found = filterCategory(found, c)
	}

	switch {
	case len(found) == 0:
		return ksmerrors.NotFoundf("key '%s'", name)
	case len(found) > 1:
		cats := make([]string, len(found))
		for i, k := range found {
			cats[i] = k.Category.String()
		}
		return ksmerrors.WithHint(
			ksmerrors.Validationf("key '%s' exists in several categories: %s", name, strings.Join(cats, ", ")),
			"pass --type to say which one to delete")
	}

	key := found[0]
	if !s.prompter.Confirm(fmt.Sprintf("Are you sure you want to delete the key: %s?", key.Path)) {
		s.log.Error("Operation aborted by user.")
		return nil
	}

	if dryRun {
		s.log.DryRun("Would delete key: %s", key.Path)
		return nil
	}

	if err := os.Remove(key.Path); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key.Path, err)
	}
	s.log.Success("Key '%s' deleted successfully.", key.Path)
	return nil
}

func filterCategory(keys []Key, c Category) []Key {
	var out []Key
	for _, k := range keys {
		if k.Category == c {
			out = append(out, k)
		}
	}
	return out
}
