package container

import (
	"fmt"
	"os/exec"
	"strconv"

	"github.com/nace/ksm/internal/system"
)

// AuthMethod represents a method to authenticate to a LUKS container
type AuthMethod interface {
	Apply(cmd *exec.Cmd) error
	// Interactive reports whether cryptsetup must talk to the terminal
	Interactive() bool
}

// KeyfileAuth authenticates using a keyfile
type KeyfileAuth struct {
	KeyfilePath string
}

// Apply applies keyfile authentication to a command
func (a *KeyfileAuth) Apply(cmd *exec.Cmd) error {
	if a.KeyfilePath == "" {
		return fmt.Errorf("keyfile path is empty")
	}
	cmd.Args = append(cmd.Args, "--key-file", a.KeyfilePath)
	return nil
}

func (a *KeyfileAuth) Interactive() bool { return false }

// InteractiveAuth lets cryptsetup prompt for the passphrase itself
type InteractiveAuth struct{}

// Apply is a no-op; the executor attaches the terminal
func (a *InteractiveAuth) Apply(cmd *exec.Cmd) error { return nil }

func (a *InteractiveAuth) Interactive() bool { return true }

// LUKSManager handles LUKS operations through cryptsetup
type LUKSManager struct {
	executor system.Runner
}

// NewLUKSManager creates a new LUKS manager
func NewLUKSManager(executor system.Runner) *LUKSManager {
	return &LUKSManager{
		executor: executor,
	}
}

func (m *LUKSManager) run(auth AuthMethod, args ...string) (string, error) {
	cmd := exec.Command("cryptsetup", args...)
	if auth == nil {
		return m.executor.RunCmd(cmd)
	}
	if err := auth.Apply(cmd); err != nil {
		return "", err
	}
	if auth.Interactive() {
		return "", m.executor.RunAttached(cmd)
	}
	return m.executor.RunCmd(cmd)
}

// Format formats a device as LUKS2. The caller has already obtained the
// operator's consent, so cryptsetup's own "type YES" question is skipped.
func (m *LUKSManager) Format(device string, auth AuthMethod) error {
	args := []string{"luksFormat", "--type", "luks2", "--batch-mode"}
	if auth != nil && auth.Interactive() {
		args = append(args, "--verify-passphrase")
	}
	args = append(args, device)

	if _, err := m.run(auth, args...); err != nil {
		return fmt.Errorf("failed to format LUKS container on %s: %w", device, err)
	}
	return nil
}

// IsLUKS checks if a device carries a LUKS header
func (m *LUKSManager) IsLUKS(device string) (bool, error) {
	err := m.executor.Run("cryptsetup", "isLuks", device)
	return err == nil, nil
}

// IsActive checks if a mapper name is currently open
func (m *LUKSManager) IsActive(mapperName string) (bool, error) {
	err := m.executor.Run("cryptsetup", "status", mapperName)
	return err == nil, nil
}

// Open opens a LUKS container
func (m *LUKSManager) Open(device, mapperName string, auth AuthMethod) error {
	if _, err := m.run(auth, "open", "--type", "luks", device, mapperName); err != nil {
		return fmt.Errorf("failed to open LUKS container %s: %w", device, err)
	}
	return nil
}

// Close closes a LUKS container
func (m *LUKSManager) Close(mapperName string) error {
	err := m.executor.Run("cryptsetup", "close", mapperName)
	if err != nil {
		return fmt.Errorf("failed to close LUKS container %s: %w", mapperName, err)
	}
	return nil
}

// DumpSlots returns the luksDump header listing, including key slots
func (m *LUKSManager) DumpSlots(device string) (string, error) {
	output, err := m.executor.RunOutput("cryptsetup", "luksDump", device)
	if err != nil {
		return "", fmt.Errorf("failed to read LUKS header of %s: %w", device, err)
	}
	return output, nil
}

// AddKey adds keyfile as a new key slot, authenticating with an existing credential
func (m *LUKSManager) AddKey(device, keyfile string, auth AuthMethod) error {
	if _, err := m.run(auth, "luksAddKey", device, keyfile); err != nil {
		return fmt.Errorf("failed to add key %s to %s: %w", keyfile, device, err)
	}
	return nil
}

// KillSlot wipes one key slot, authenticating with a credential from another slot
func (m *LUKSManager) KillSlot(device string, slot int, auth AuthMethod) error {
	if _, err := m.run(auth, "luksKillSlot", device, strconv.Itoa(slot)); err != nil {
		return fmt.Errorf("failed to remove key slot %d from %s: %w", slot, device, err)
	}
	return nil
}
