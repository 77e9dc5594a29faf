// Package planner validates disk and partition identifiers and plans new
// partitions in the free space of a device.
//
// Extents are observations: they are read from the partitioning tool on
// every call and never cached.
package planner

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/system"
)

// Partitioner is the partitioning tool
type Partitioner interface {
	// FreeSpace returns the tool's partition table including free regions
	FreeSpace(device string) (string, error)
	// CreatePartition creates a partition spanning [startKB, endKB)
	CreatePartition(device string, startKB, endKB float64) error
}

// Extent is a region of a device in kB
type Extent struct {
	Start float64
	End   float64
}

// Size returns the extent length in kB
func (e Extent) Size() float64 {
	return e.End - e.Start
}

func (e Extent) String() string {
	return fmt.Sprintf("%.2f kB - %.2f kB (%s)", e.Start, e.End, system.FormatKB(e.Size()))
}

var (
	devicePattern    = regexp.MustCompile(`^/dev/(disk/by-id/.+|sd[a-z]+)$`)
	partitionPattern = regexp.MustCompile(`^sd[a-z][0-9]+$`)
)

// ValidateDevice accepts a stable identifier (/dev/disk/by-id/...) or a
// traditional disk name (/dev/sdb)
func ValidateDevice(path string) error {
	if !devicePattern.MatchString(path) {
		return ksmerrors.WithHint(
			ksmerrors.Validationf("invalid device path: %s", path),
			"use /dev/disk/by-id/<id> or /dev/sdX for usb.device")
	}
	return nil
}

// ValidatePartitionName checks that name looks like sdb3 and that /dev/<name>
// belongs to device. skip bypasses both checks; it is only meant for
// rehearsals, where the partition may not exist yet.
func ValidatePartitionName(name, device string, skip bool) error {
	if skip {
		return nil
	}
	if !partitionPattern.MatchString(name) {
		return ksmerrors.WithHint(
			ksmerrors.Validationf("invalid partition name format: %q", name),
			"enter a kernel partition name, for example sdb3")
	}
	if full := "/dev/" + name; !strings.HasPrefix(full, kernelDevice(device)) {
		return ksmerrors.WithHint(
			ksmerrors.Validationf("partition %s does not belong to device %s", name, device),
			"pick a partition listed for the configured device")
	}
	return nil
}

// Stable identifiers live below byIDRoot and are resolved with resolveLink
var (
	byIDRoot    = "/dev/disk/by-id/"
	resolveLink = filepath.EvalSymlinks
)

// kernelDevice resolves a by-id link to the kernel device it points at, so
// its partitions can be matched by prefix. An unresolvable link is returned
// as is and owns no partition.
func kernelDevice(device string) string {
	if !strings.HasPrefix(device, byIDRoot) {
		return device
	}
	if target, err := resolveLink(device); err == nil {
		return target
	}
	return device
}

// Planner plans partitions against the live partition table
type Planner struct {
	parts Partitioner
}

// New creates a planner over a partitioning tool
func New(parts Partitioner) *Planner {
	return &Planner{parts: parts}
}

// ListFreeExtents returns the free regions of device in the order the tool
// reports them
func (p *Planner) ListFreeExtents(device string) ([]Extent, error) {
	output, err := p.parts.FreeSpace(device)
	if err != nil {
		return nil, err
	}

	var extents []Extent
	for _, region := range system.ParseFreeSpace(output) {
		start, err := system.ParseSize(region.Start)
		if err != nil {
			return nil, fmt.Errorf("free space start %q: %w", region.Start, err)
		}
		end, err := system.ParseSize(region.End)
		if err != nil {
			return nil, fmt.Errorf("free space end %q: %w", region.End, err)
		}
		if start >= end {
			continue
		}
		extents = append(extents, Extent{Start: start, End: end})
	}
	return extents, nil
}

// PlanNewPartition places a partition of requestedKB at the start of the last
// free extent of device
func (p *Planner) PlanNewPartition(device string, requestedKB float64) (Extent, error) {
	if requestedKB <= 0 {
		return Extent{}, ksmerrors.Validationf("partition size must be greater than zero")
	}

	extents, err := p.ListFreeExtents(device)
	if err != nil {
		return Extent{}, err
	}
	if len(extents) == 0 {
		return Extent{}, fmt.Errorf("%w: no free space available on %s", ksmerrors.ErrInsufficientResource, device)
	}

	free := extents[len(extents)-1]
	if requestedKB > free.Size() {
		return Extent{}, fmt.Errorf("%w: not enough free space: requested %s, available %s",
			ksmerrors.ErrInsufficientResource, system.FormatKB(requestedKB), system.FormatKB(free.Size()))
	}

	return Extent{Start: free.Start, End: free.Start + requestedKB}, nil
}

// CreatePartition creates the planned partition
func (p *Planner) CreatePartition(device string, e Extent) error {
	return p.parts.CreatePartition(device, e.Start, e.End)
}

// LastFreeExtent returns the extent PlanNewPartition would carve from
func (p *Planner) LastFreeExtent(device string) (Extent, error) {
	extents, err := p.ListFreeExtents(device)
	if err != nil {
		return Extent{}, err
	}
	if len(extents) == 0 {
		return Extent{}, fmt.Errorf("%w: no free space available on %s", ksmerrors.ErrInsufficientResource, device)
	}
	return extents[len(extents)-1], nil
}
