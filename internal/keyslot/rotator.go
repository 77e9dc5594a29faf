// Package keyslot rotates keyfile credentials on LUKS containers outside the
// managed key store.
//
// A rotation always adds the new key before it removes the old slot, so the
// container keeps at least one working credential whichever step fails.
// Nothing is rolled back: if the new key was added but the old slot could
// not be removed, the container ends up with one extra valid slot and the
// returned error says so.
package keyslot

import (
	"fmt"
	"os"
	"slices"

	"github.com/nace/ksm/internal/container"
	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/system"
	"github.com/nace/ksm/internal/ui"
)

// MaxSlot is the highest LUKS2 key slot index
const MaxSlot = 31

// SlotManager is the part of cryptsetup a rotation needs
type SlotManager interface {
	DumpSlots(device string) (string, error)
	AddKey(device, keyfile string, auth container.AuthMethod) error
	KillSlot(device string, slot int, auth container.AuthMethod) error
}

// Rotator replaces one key slot of a LUKS container with a keyfile
type Rotator struct {
	slots SlotManager
	log   *ui.Logger
}

// NewRotator creates a rotator
func NewRotator(slots SlotManager, log *ui.Logger) *Rotator {
	return &Rotator{
		slots: slots,
		log:   log,
	}
}

// Rotate adds keyFile to device as a new unlock slot, then removes slot.
// unlock authenticates the add step; nil lets cryptsetup prompt for an
// existing passphrase. The kill step authenticates with keyFile itself.
func (r *Rotator) Rotate(keyFile, device string, slot int, unlock container.AuthMethod, dryRun bool) error {
	if device == "" {
		return ksmerrors.Validationf("target LUKS device is empty")
	}
	if slot < 0 || slot > MaxSlot {
		return ksmerrors.Validationf("key slot %d out of range 0-%d", slot, MaxSlot)
	}

	if _, err := os.Stat(keyFile); err != nil {
		if os.IsNotExist(err) {
			return ksmerrors.NotFoundf("key '%s'", keyFile)
		}
		return fmt.Errorf("failed to check key %s: %w", keyFile, err)
	}
	resolved, err := system.ValidateKeyfilePath(keyFile)
	if err != nil {
		return err
	}
	if mode, insecure := system.InsecurePermissions(resolved); insecure {
		r.log.Warning("Key %s has insecure permissions (%04o); consider chmod 600 %s", resolved, mode, resolved)
	}

	if dryRun {
		r.log.DryRun("Would check existing LUKS slots in %s", device)
		r.log.DryRun("Would add new key from %s to %s", keyFile, device)
		r.log.DryRun("Would remove key from slot %d in %s", slot, device)
		return nil
	}

	if unlock == nil {
		unlock = &container.InteractiveAuth{}
	}

	dump, err := r.slots.DumpSlots(device)
	if err != nil {
		return err
	}
	r.log.Info("Current LUKS header of %s:\n%s", device, dump)
	if !slices.Contains(system.ParseKeySlots(dump), slot) {
		// luksAddKey would fill the free slot and the kill step would then destroy the new key
		return ksmerrors.NotFoundf("key slot %d is not in use on %s", slot, device)
	}

	r.log.Info("Adding new key from %s to %s...", resolved, device)
	if err := r.slots.AddKey(device, resolved, unlock); err != nil {
		return err
	}

	r.log.Info("Removing key slot %d from %s...", slot, device)
	if err := r.slots.KillSlot(device, slot, &container.KeyfileAuth{KeyfilePath: resolved}); err != nil {
		return ksmerrors.WithHint(
			fmt.Errorf("new key was added to %s but slot %d was not removed: %w", device, slot, err),
			fmt.Sprintf("the old credential in slot %d still unlocks %s; remove it with cryptsetup luksKillSlot %s %d",
				slot, device, device, slot))
	}

	r.log.Success("Key slot %d of %s rotated to %s", slot, device, resolved)
	return nil
}
