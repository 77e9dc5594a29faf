package container

import (
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

// fakeRunner records every command line and fails those listed in fail
type fakeRunner struct {
	calls    []string
	attached []string
	fail     map[string]bool
	output   map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: map[string]bool{}, output: map[string]string{}}
}

func (f *fakeRunner) record(args []string) (string, error) {
	line := strings.Join(args, " ")
	f.calls = append(f.calls, line)
	if f.fail[line] {
		return "", fmt.Errorf("%w: %s", ksmerrors.ErrExternalTool, args[0])
	}
	return f.output[line], nil
}

func (f *fakeRunner) Run(name string, args ...string) error {
	_, err := f.RunOutput(name, args...)
	return err
}

func (f *fakeRunner) RunOutput(name string, args ...string) (string, error) {
	return f.record(append([]string{name}, args...))
}

func (f *fakeRunner) RunCmd(cmd *exec.Cmd) (string, error) {
	return f.record(cmd.Args)
}

func (f *fakeRunner) RunAttached(cmd *exec.Cmd) error {
	f.attached = append(f.attached, strings.Join(cmd.Args, " "))
	_, err := f.record(cmd.Args)
	return err
}

func TestLUKSFormat(t *testing.T) {
	t.Run("keyfile", func(t *testing.T) {
		r := newFakeRunner()
		m := NewLUKSManager(r)

		require.NoError(t, m.Format("/dev/sdb3", &KeyfileAuth{KeyfilePath: "/root/store.key"}))
		assert.Equal(t, []string{
			"cryptsetup luksFormat --type luks2 --batch-mode /dev/sdb3 --key-file /root/store.key",
		}, r.calls)
		assert.Empty(t, r.attached)
	})

	t.Run("interactive", func(t *testing.T) {
		r := newFakeRunner()
		m := NewLUKSManager(r)

		require.NoError(t, m.Format("/dev/sdb3", &InteractiveAuth{}))
		assert.Equal(t, []string{
			"cryptsetup luksFormat --type luks2 --batch-mode --verify-passphrase /dev/sdb3",
		}, r.attached)
	})

	t.Run("failure", func(t *testing.T) {
		r := newFakeRunner()
		r.fail["cryptsetup luksFormat --type luks2 --batch-mode /dev/sdb3 --key-file /k"] = true
		m := NewLUKSManager(r)

		err := m.Format("/dev/sdb3", &KeyfileAuth{KeyfilePath: "/k"})
		assert.ErrorIs(t, err, ksmerrors.ErrExternalTool)
	})
}

func TestLUKSProbes(t *testing.T) {
	r := newFakeRunner()
	r.fail["cryptsetup isLuks /dev/sdb2"] = true
	r.fail["cryptsetup status keystore"] = true
	m := NewLUKSManager(r)

	ok, err := m.IsLUKS("/dev/sdb3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.IsLUKS("/dev/sdb2")
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := m.IsActive("keystore")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLUKSOpenClose(t *testing.T) {
	r := newFakeRunner()
	m := NewLUKSManager(r)

	require.NoError(t, m.Open("/dev/sdb3", "keystore", &KeyfileAuth{KeyfilePath: "/k"}))
	require.NoError(t, m.Close("keystore"))
	assert.Equal(t, []string{
		"cryptsetup open --type luks /dev/sdb3 keystore --key-file /k",
		"cryptsetup close keystore",
	}, r.calls)
}

func TestLUKSKeySlots(t *testing.T) {
	r := newFakeRunner()
	m := NewLUKSManager(r)

	_, err := m.DumpSlots("/dev/sdc1")
	require.NoError(t, err)
	require.NoError(t, m.AddKey("/dev/sdc1", "/mnt/keys/keys/vms/vm1", &KeyfileAuth{KeyfilePath: "/old"}))
	require.NoError(t, m.KillSlot("/dev/sdc1", 1, &KeyfileAuth{KeyfilePath: "/mnt/keys/keys/vms/vm1"}))

	assert.Equal(t, []string{
		"cryptsetup luksDump /dev/sdc1",
		"cryptsetup luksAddKey /dev/sdc1 /mnt/keys/keys/vms/vm1 --key-file /old",
		"cryptsetup luksKillSlot /dev/sdc1 1 --key-file /mnt/keys/keys/vms/vm1",
	}, r.calls)
}

func TestKeyfileAuthEmptyPath(t *testing.T) {
	m := NewLUKSManager(newFakeRunner())
	err := m.Open("/dev/sdb3", "keystore", &KeyfileAuth{})
	assert.Error(t, err)
}
