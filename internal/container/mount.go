package container

import (
	"fmt"

	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/system"
)

// SupportedFilesystems lists the filesystems the store can be built with
var SupportedFilesystems = []string{"ext4", "xfs", "btrfs"}

// MountManager handles filesystem mount operations
type MountManager struct {
	executor system.Runner
}

// NewMountManager creates a new mount manager
func NewMountManager(executor system.Runner) *MountManager {
	return &MountManager{
		executor: executor,
	}
}

// Mount mounts a device to an existing mount point
func (m *MountManager) Mount(device, mountPoint string) error {
	if err := m.executor.Run("mount", device, mountPoint); err != nil {
		return fmt.Errorf("failed to mount %s to %s: %w", device, mountPoint, err)
	}

	return nil
}

// Unmount unmounts a mount point
func (m *MountManager) Unmount(mountPoint string, force bool) error {
	if !force {
		if err := m.executor.Run("umount", mountPoint); err != nil {
			return fmt.Errorf("failed to unmount %s: %w", mountPoint, err)
		}
		return nil
	}

	// Try normal unmount first
	if err := m.executor.Run("umount", mountPoint); err == nil {
		return nil
	}

	// Try force unmount
	if err := m.executor.Run("umount", "-f", mountPoint); err == nil {
		return nil
	}

	// Try lazy unmount as last resort
	if err := m.executor.Run("umount", "-l", mountPoint); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", mountPoint, err)
	}
	return nil
}

// MakeFilesystem creates a filesystem on a device
func (m *MountManager) MakeFilesystem(device, fsType string) error {
	var err error
	switch fsType {
	case "ext4":
		err = m.executor.Run("mkfs.ext4", "-q", "-L", "keystore", device)
	case "xfs":
		err = m.executor.Run("mkfs.xfs", "-L", "keystore", device)
	case "btrfs":
		err = m.executor.Run("mkfs.btrfs", "-L", "keystore", device)
	default:
		return ksmerrors.Validationf("unsupported filesystem: %s", fsType)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s filesystem on %s: %w", fsType, device, err)
	}
	return nil
}

// GetFilesystemSize gets the size and usage of a mounted filesystem
func (m *MountManager) GetFilesystemSize(mountPoint string) (size uint64, used uint64, err error) {
	output, err := m.executor.RunOutput("df", "--block-size=1", mountPoint)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get filesystem size: %w", err)
	}
	return system.ParseDf(output)
}
