package workflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nace/ksm/internal/container"
	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/planner"
	"github.com/nace/ksm/internal/ui"
	"github.com/nace/ksm/internal/ui/uitest"
	"github.com/nace/ksm/internal/volume"
)

const partedTable = "        1049kB  2097kB  1049kB  Free Space\n" +
	" 1      2097kB  3146kB  1049kB  ext4\n" +
	"        3146kB  1049MB  1046MB  Free Space\n"

// fakeDisk stands in for parted, lsblk, cryptsetup, mkfs and mount, and
// records the mutating calls in order
type fakeDisk struct {
	luks  map[string]bool
	calls []string
}

func (d *fakeDisk) FreeSpace(device string) (string, error) { return partedTable, nil }

func (d *fakeDisk) CreatePartition(device string, startKB, endKB float64) error {
	d.calls = append(d.calls, fmt.Sprintf("mkpart %s %.0f %.0f", device, startKB, endKB))
	return nil
}

func (d *fakeDisk) ListPartitions(device string) (string, error) {
	return "NAME   SIZE TYPE MOUNTPOINT\nsdb    1G   disk\n`-sdb1 1M   part\n", nil
}

func (d *fakeDisk) IsLUKS(device string) (bool, error) { return d.luks[device], nil }

func (d *fakeDisk) IsActive(mapperName string) (bool, error) { return false, nil }

func (d *fakeDisk) IsMountPoint(path string) (bool, error) { return true, nil }

func (d *fakeDisk) record(format string, args ...interface{}) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDisk) Format(device string, auth container.AuthMethod) error {
	d.record("format %s", device)
	return nil
}

func (d *fakeDisk) Open(device, mapperName string, auth container.AuthMethod) error {
	d.record("open %s %s", device, mapperName)
	return nil
}

func (d *fakeDisk) Close(mapperName string) error {
	d.record("close %s", mapperName)
	return nil
}

func (d *fakeDisk) MakeFilesystem(device, fsType string) error {
	d.record("mkfs %s %s", fsType, device)
	return nil
}

func (d *fakeDisk) Mount(device, mountPoint string) error {
	d.record("mount %s", device)
	return nil
}

func (d *fakeDisk) Unmount(mountPoint string, force bool) error {
	d.record("umount")
	return nil
}

type harness struct {
	disk     *fakeDisk
	prompter *uitest.Prompter
	out      *bytes.Buffer
	log      *bytes.Buffer
	wf       *Workflow
	mount    string
}

func newHarness(t *testing.T, dryRun bool, prompter *uitest.Prompter) *harness {
	t.Helper()
	h := &harness{
		disk:     &fakeDisk{luks: map[string]bool{}},
		prompter: prompter,
		out:      &bytes.Buffer{},
		log:      &bytes.Buffer{},
		mount:    filepath.Join(t.TempDir(), "usb"),
	}
	log := ui.NewWriterLogger(h.log)
	ctrl := volume.NewController(h.disk, h.disk, h.disk, prompter, log, volume.Options{
		MapperName: "keystore",
		Filesystem: "ext4",
		KeysRoot:   filepath.Join(h.mount, "keys"),
		DryRun:     dryRun,
	})
	h.wf = New(planner.New(h.disk), h.disk, ctrl, prompter, log, h.out, Options{
		Device:     "/dev/sdb",
		MountPoint: h.mount,
		DryRun:     dryRun,
	})
	return h
}

func TestProvisionExistingLUKSPartition(t *testing.T) {
	h := newHarness(t, false, &uitest.Prompter{Lines: []string{"1", "sdb1"}})
	h.disk.luks["/dev/sdb1"] = true

	require.NoError(t, h.wf.Provision())
	assert.Equal(t, []string{
		"open /dev/sdb1 keystore",
		"mount /dev/mapper/keystore",
		"umount",
		"close keystore",
	}, h.disk.calls)
	assert.Zero(t, h.prompter.ConfirmCount())
	assert.DirExists(t, filepath.Join(h.mount, "keys", "vms"))
	assert.Contains(t, h.out.String(), "1) Use existing partition")
}

func TestProvisionFormatsExistingPartition(t *testing.T) {
	h := newHarness(t, false, &uitest.Prompter{Lines: []string{"1", "sdb1"}, Confirms: []bool{true}})

	require.NoError(t, h.wf.Provision())
	assert.Equal(t, []string{
		"format /dev/sdb1",
		"open /dev/sdb1 keystore",
		"mkfs ext4 /dev/mapper/keystore",
		"mount /dev/mapper/keystore",
		"umount",
		"close keystore",
	}, h.disk.calls)
}

func TestProvisionDeclinedFormat(t *testing.T) {
	h := newHarness(t, false, &uitest.Prompter{Lines: []string{"1", "sdb1"}, Confirms: []bool{false}})

	err := h.wf.Provision()
	assert.ErrorIs(t, err, ksmerrors.ErrAborted)
	assert.Empty(t, h.disk.calls)
}

func TestProvisionNewPartition(t *testing.T) {
	h := newHarness(t, false, &uitest.Prompter{Lines: []string{"2", "500MB", "sdb2"}})

	require.NoError(t, h.wf.Provision())
	assert.Equal(t, []string{
		"mkpart /dev/sdb 3146 515146",
		"format /dev/sdb2",
		"open /dev/sdb2 keystore",
		"mkfs ext4 /dev/mapper/keystore",
		"mount /dev/mapper/keystore",
		"umount",
		"close keystore",
	}, h.disk.calls)
	assert.Zero(t, h.prompter.ConfirmCount())
	assert.Contains(t, h.out.String(), "Last free space on /dev/sdb")
}

func TestProvisionNewPartitionTooLarge(t *testing.T) {
	h := newHarness(t, false, &uitest.Prompter{Lines: []string{"2", "2G"}})

	err := h.wf.Provision()
	assert.ErrorIs(t, err, ksmerrors.ErrInsufficientResource)
	assert.Empty(t, h.disk.calls)
}

func TestProvisionDryRun(t *testing.T) {
	h := newHarness(t, true, &uitest.Prompter{Lines: []string{"2", "120M", "anything"}})

	require.NoError(t, h.wf.Provision())
	assert.Empty(t, h.disk.calls)
	assert.NoDirExists(t, h.mount)

	var dry []string
	for _, line := range strings.Split(h.log.String(), "\n") {
		if strings.HasPrefix(line, "[DRY-RUN]") {
			dry = append(dry, line)
		}
	}
	assert.Equal(t, []string{
		"[DRY-RUN] Would create partition from 3146kB to 126026kB on /dev/sdb",
		"[DRY-RUN] Would format /dev/anything as LUKS2",
		"[DRY-RUN] Would open /dev/anything as keystore",
		"[DRY-RUN] Would create ext4 filesystem on /dev/mapper/keystore",
		"[DRY-RUN] Would create mount point " + h.mount,
		"[DRY-RUN] Would mount /dev/mapper/keystore at " + h.mount,
		"[DRY-RUN] Would create key directories under " + filepath.Join(h.mount, "keys"),
		"[DRY-RUN] Would unmount " + h.mount,
		"[DRY-RUN] Would close keystore",
	}, dry)
}

func TestProvisionInputErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"unknown choice", []string{"3"}},
		{"bad partition name", []string{"1", "wrong"}},
		{"partition of another disk", []string{"1", "sdc1"}},
		{"bad size", []string{"2", "lots"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false, &uitest.Prompter{Lines: tt.lines})
			err := h.wf.Provision()
			assert.ErrorIs(t, err, ksmerrors.ErrValidation)
			assert.Empty(t, h.disk.calls)
		})
	}
}

func TestProvisionInvalidDevice(t *testing.T) {
	h := newHarness(t, false, &uitest.Prompter{})
	h.wf.opts.Device = "/dev/nvme0n1"

	assert.ErrorIs(t, h.wf.Provision(), ksmerrors.ErrValidation)
	assert.Empty(t, h.prompter.Asked)
}

func TestUnlockAndLock(t *testing.T) {
	h := newHarness(t, false, &uitest.Prompter{Lines: []string{"sdb1"}})
	h.disk.luks["/dev/sdb1"] = true

	require.NoError(t, h.wf.Unlock())
	assert.Equal(t, []string{"open /dev/sdb1 keystore", "mount /dev/mapper/keystore"}, h.disk.calls)
	assert.Contains(t, h.log.String(), "[SUCCESS] USB key store keystore unlocked at "+h.mount)

	require.NoError(t, h.wf.Lock())
	assert.Equal(t, []string{
		"open /dev/sdb1 keystore",
		"mount /dev/mapper/keystore",
		"umount",
		"close keystore",
	}, h.disk.calls)
}

func TestLockMissingMountPoint(t *testing.T) {
	h := newHarness(t, false, &uitest.Prompter{})
	require.NoError(t, os.RemoveAll(h.mount))

	assert.ErrorIs(t, h.wf.Lock(), ksmerrors.ErrNotFound)
	assert.Empty(t, h.disk.calls)
}
