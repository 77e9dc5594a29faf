// Package workflow runs the interactive key store procedures: provisioning
// a store on a removable disk, and unlocking or locking it afterwards.
//
// The procedures stop at operator prompts (which partition, how large) and
// hand the answers to the planner and the volume controller.
package workflow

import (
	"fmt"
	"io"
	"strings"

	"github.com/nace/ksm/internal/container"
	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/planner"
	"github.com/nace/ksm/internal/system"
	"github.com/nace/ksm/internal/ui"
	"github.com/nace/ksm/internal/volume"
)

// PartitionLister prints the partition overview of a disk
type PartitionLister interface {
	ListPartitions(device string) (string, error)
}

// Options configures a Workflow
type Options struct {
	Device     string
	MountPoint string
	DryRun     bool
}

// Workflow drives the store procedures for one configured disk
type Workflow struct {
	planner  *planner.Planner
	lister   PartitionLister
	ctrl     *volume.Controller
	prompter ui.Prompter
	log      *ui.Logger
	out      io.Writer
	opts     Options
}

// New creates a workflow. Partition listings and menus are written to out.
func New(p *planner.Planner, lister PartitionLister, ctrl *volume.Controller, prompter ui.Prompter, log *ui.Logger, out io.Writer, opts Options) *Workflow {
	return &Workflow{
		planner:  p,
		lister:   lister,
		ctrl:     ctrl,
		prompter: prompter,
		log:      log,
		out:      out,
		opts:     opts,
	}
}

// Provision sets up the key store. The operator picks an existing partition
// or carves a new one from the last free extent. The partition is opened,
// formatted first when needed, then mounted and given the key layout.
// The store is unmounted and closed again at the end.
func (w *Workflow) Provision() error {
	if err := planner.ValidateDevice(w.opts.Device); err != nil {
		return err
	}
	if err := w.showPartitions(); err != nil {
		return err
	}

	fmt.Fprintln(w.out, "1) Use existing partition")
	fmt.Fprintln(w.out, "2) Create new partition")
	choice := strings.TrimSpace(w.prompter.ReadLine("Choose an option [1/2]"))

	var (
		ctr *container.Container
		err error
	)
	switch choice {
	case "1":
		ctr, err = w.useExisting()
	case "2":
		ctr, err = w.createNew()
	default:
		return ksmerrors.WithHint(ksmerrors.Validationf("invalid choice %q", choice), "answer 1 or 2")
	}
	if err != nil {
		return err
	}

	if err := w.ctrl.Mount(ctr, w.opts.MountPoint); err != nil {
		return err
	}
	w.log.Success("USB key store ready on %s", ctr.Partition)

	return w.ctrl.UnmountAndClose(ctr)
}

func (w *Workflow) useExisting() (*container.Container, error) {
	partition, err := w.askPartition()
	if err != nil {
		return nil, err
	}
	return w.ctrl.DetectAndOpen(partition)
}

func (w *Workflow) createNew() (*container.Container, error) {
	free, err := w.planner.LastFreeExtent(w.opts.Device)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w.out, "Last free space on %s: %s\n", w.opts.Device, free)

	answer := strings.TrimSpace(w.prompter.ReadLine("Size of the new partition (e.g. 500MB, 2G)"))
	sizeKB, err := system.ParseSize(answer)
	if err != nil {
		return nil, err
	}

	extent, err := w.planner.PlanNewPartition(w.opts.Device, sizeKB)
	if err != nil {
		return nil, err
	}

	if w.opts.DryRun {
		w.log.DryRun("Would create partition from %.0fkB to %.0fkB on %s", extent.Start, extent.End, w.opts.Device)
	} else {
		w.log.Info("Creating partition %s on %s...", extent, w.opts.Device)
		if err := w.planner.CreatePartition(w.opts.Device, extent); err != nil {
			return nil, err
		}
	}

	if err := w.showPartitions(); err != nil {
		return nil, err
	}
	partition, err := w.askPartition()
	if err != nil {
		return nil, err
	}
	return w.ctrl.FormatAndOpen(partition)
}

// Unlock opens a store partition chosen by the operator and mounts it
func (w *Workflow) Unlock() error {
	if err := planner.ValidateDevice(w.opts.Device); err != nil {
		return err
	}
	if err := w.showPartitions(); err != nil {
		return err
	}
	partition, err := w.askPartition()
	if err != nil {
		return err
	}

	ctr, err := w.ctrl.Unlock(partition, w.opts.MountPoint)
	if err != nil {
		return err
	}
	w.log.Success("USB key store %s unlocked at %s", ctr.MapperName, ctr.MountPoint)
	return nil
}

// Lock unmounts and closes the store
func (w *Workflow) Lock() error {
	if err := w.ctrl.Lock(w.opts.MountPoint); err != nil {
		return err
	}
	w.log.Success("USB key store at %s locked", w.opts.MountPoint)
	return nil
}

// askPartition asks for a kernel partition name such as sdb3 and returns its
// device path. Rehearsals accept any name.
func (w *Workflow) askPartition() (string, error) {
	name := strings.TrimSpace(w.prompter.ReadLine("Partition name (e.g. sdb3)"))
	name = strings.TrimPrefix(name, "/dev/")
	if err := planner.ValidatePartitionName(name, w.opts.Device, w.opts.DryRun); err != nil {
		return "", err
	}
	return "/dev/" + name, nil
}

func (w *Workflow) showPartitions() error {
	listing, err := w.lister.ListPartitions(w.opts.Device)
	if err != nil {
		return err
	}
	fmt.Fprintf(w.out, "Partitions on %s:\n%s\n", w.opts.Device, strings.TrimRight(listing, "\n"))
	return nil
}
