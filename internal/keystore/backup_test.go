package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/ui/uitest"
)

// sizes returns the byte size of every regular file below root, by relative path
func sizes(t *testing.T, root string) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, _ := filepath.Rel(root, path)
			out[rel] = info.Size()
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func populatedStore(t *testing.T) *Store {
	t.Helper()
	s, _ := newTestStore(t, &uitest.Prompter{})
	for _, k := range []struct {
		name string
		c    Category
		size int
	}{
		{"host", System, 64},
		{"db-vm", VM, 32},
		{"web-vm", VM, 48},
		{"offsite", Backup, 16},
	} {
		_, err := s.Create(k.name, k.c, k.size, false)
		require.NoError(t, err)
	}
	return s
}

func TestBackupEverything(t *testing.T) {
	s := populatedStore(t)
	dest := filepath.Join(t.TempDir(), "backup")

	require.NoError(t, s.Backup(dest, "", "", false))
	assert.Equal(t, sizes(t, s.Root()), sizes(t, dest))
}

func TestBackupCategoryMerges(t *testing.T) {
	s := populatedStore(t)
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "db-vm"), []byte("stale"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "unrelated"), []byte("keep"), 0600))

	require.NoError(t, s.Backup(dest, VM, "", false))

	got := sizes(t, dest)
	assert.Equal(t, int64(32), got["db-vm"])
	assert.Equal(t, int64(48), got["web-vm"])
	assert.Equal(t, int64(4), got["unrelated"])
	assert.NotContains(t, got, "host")
}

func TestBackupSingleKey(t *testing.T) {
	s := populatedStore(t)
	dest := t.TempDir()

	require.NoError(t, s.Backup(dest, System, "host", false))
	assert.Equal(t, map[string]int64{"host": 64}, sizes(t, dest))

	src, err := os.ReadFile(s.Path("host", System))
	require.NoError(t, err)
	dst, err := os.ReadFile(filepath.Join(dest, "host"))
	require.NoError(t, err)
	assert.Equal(t, src, dst)
}

func TestBackupFailures(t *testing.T) {
	s := populatedStore(t)
	dest := t.TempDir()

	t.Run("name without category", func(t *testing.T) {
		assert.ErrorIs(t, s.Backup(dest, "", "host", false), ksmerrors.ErrNotFound)
	})

	t.Run("missing key", func(t *testing.T) {
		assert.ErrorIs(t, s.Backup(dest, VM, "host", false), ksmerrors.ErrNotFound)
	})

	t.Run("destination inside the store", func(t *testing.T) {
		assert.ErrorIs(t, s.Backup(filepath.Join(s.Root(), "copy"), "", "", false), ksmerrors.ErrValidation)
	})

	t.Run("empty destination", func(t *testing.T) {
		assert.ErrorIs(t, s.Backup("", "", "", false), ksmerrors.ErrValidation)
	})
}

func TestBackupDryRun(t *testing.T) {
	s, buf := newTestStore(t, &uitest.Prompter{})
	_, err := s.Create("host", System, 64, false)
	require.NoError(t, err)
	buf.Reset()

	dest := filepath.Join(t.TempDir(), "backup")
	require.NoError(t, s.Backup(dest, "", "", true))
	require.NoError(t, s.Backup(dest, System, "", true))
	require.NoError(t, s.Backup(dest, System, "host", true))

	assert.NoDirExists(t, dest)
	assert.Equal(t,
		"[DRY-RUN] Would copy all keys from "+s.Root()+" to "+dest+"\n"+
			"[DRY-RUN] Would copy all system keys from "+CategoryDir(s.Root(), System)+" to "+dest+"\n"+
			"[DRY-RUN] Would copy key "+s.Path("host", System)+" to "+filepath.Join(dest, "host")+"\n",
		buf.String())
}
