package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

// Category is the kind of key material. The set is closed: System, VM and Backup.
type Category string

const (
	System Category = "system"
	VM     Category = "vm"
	Backup Category = "backup"
)

// Categories lists every category in enumeration order
var Categories = []Category{System, VM, Backup}

// directories maps each category to its fixed subdirectory
var directories = map[Category]string{
	System: "system",
	VM:     "vms",
	Backup: "backup",
}

// ParseCategory converts user input into a Category
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := directories[c]; !ok {
		return "", ksmerrors.WithHint(
			ksmerrors.Validationf("invalid key category %q", s),
			"use one of: system, vm, backup")
	}
	return c, nil
}

// Dir returns the subdirectory name of the category
func (c Category) Dir() string {
	return directories[c]
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	_, ok := directories[c]
	return ok
}

func (c Category) String() string {
	return string(c)
}

// CategoryDir returns the directory of category c under root
func CategoryDir(root string, c Category) string {
	return filepath.Join(root, c.Dir())
}

// EnsureLayout creates every category directory under root
func EnsureLayout(root string) error {
	for _, c := range Categories {
		dir := CategoryDir(root, c)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
