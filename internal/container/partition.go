package container

import (
	"fmt"

	"github.com/nace/ksm/internal/system"
)

// PartitionManager handles partition table queries and changes
type PartitionManager struct {
	executor system.Runner
}

// NewPartitionManager creates a new partition manager
func NewPartitionManager(executor system.Runner) *PartitionManager {
	return &PartitionManager{
		executor: executor,
	}
}

// FreeSpace returns the partition table of device with free regions, every
// position expressed in kB
func (m *PartitionManager) FreeSpace(device string) (string, error) {
	output, err := m.executor.RunOutput("parted", "--script", device, "unit", "kB", "print", "free")
	if err != nil {
		return "", fmt.Errorf("failed to read partition table of %s: %w", device, err)
	}
	return output, nil
}

// CreatePartition creates a primary partition spanning [startKB, endKB)
func (m *PartitionManager) CreatePartition(device string, startKB, endKB float64) error {
	err := m.executor.Run("parted", device, "--script", "mkpart", "primary",
		fmt.Sprintf("%.2fkB", startKB), fmt.Sprintf("%.2fkB", endKB))
	if err != nil {
		return fmt.Errorf("failed to create partition on %s: %w", device, err)
	}
	return nil
}

// ListPartitions returns an lsblk overview of device and its partitions
func (m *PartitionManager) ListPartitions(device string) (string, error) {
	output, err := m.executor.RunOutput("lsblk", "-o", "NAME,SIZE,TYPE,MOUNTPOINT", device)
	if err != nil {
		return "", fmt.Errorf("failed to list partitions of %s: %w", device, err)
	}
	return output, nil
}
