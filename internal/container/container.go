package container

import (
	"fmt"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

// State is where a LUKS container is in its lifecycle
type State int

const (
	Unformatted State = iota
	Closed
	Opened
	Mounted
)

func (s State) String() string {
	switch s {
	case Unformatted:
		return "unformatted"
	case Closed:
		return "closed"
	case Opened:
		return "opened"
	case Mounted:
		return "mounted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Container represents a dm-crypt LUKS container on a block device
type Container struct {
	Partition  string `json:"partition"`             // Backing partition (e.g., /dev/sdb3)
	MapperName string `json:"mapper"`                // Device mapper name
	MountPoint string `json:"mount_point,omitempty"` // Where filesystem is mounted
	Filesystem string `json:"filesystem,omitempty"`  // ext4, xfs, btrfs
	Size       uint64 `json:"size,omitempty"`        // Filesystem size in bytes
	Used       uint64 `json:"used,omitempty"`        // Used space in bytes
	State      State  `json:"-"`
}

// MapperDevice returns the path of the mapped device while the container is open
func (c *Container) MapperDevice() string {
	return MapperDevice(c.MapperName)
}

var transitions = map[State]map[State]bool{
	Unformatted: {Closed: true},
	Closed:      {Opened: true},
	Opened:      {Mounted: true, Closed: true},
	Mounted:     {Opened: true},
}

// CanTransition reports whether the lifecycle allows moving to next.
// Closing while mounted and mounting while closed are refused.
func (c *Container) CanTransition(next State) error {
	if !transitions[c.State][next] {
		return fmt.Errorf("%w: container %s cannot go from %s to %s",
			ksmerrors.ErrStateConflict, c.MapperName, c.State, next)
	}
	return nil
}

// Transition moves the container to next if the lifecycle allows it
func (c *Container) Transition(next State) error {
	if err := c.CanTransition(next); err != nil {
		return err
	}
	c.State = next
	return nil
}

// Describe summarizes the container for error reports
func (c *Container) Describe() string {
	desc := fmt.Sprintf("partition %s, mapper %s, state %s", c.Partition, c.MapperName, c.State)
	if c.State == Mounted && c.MountPoint != "" {
		desc += ", mounted at " + c.MountPoint
	}
	return desc
}
