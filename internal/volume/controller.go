// Package volume drives one encrypted container of the key store through
// its lifecycle:
//
//	Unformatted -format-> Closed -open-> Opened -mount-> Mounted
//	Mounted -unmount-> Opened -close-> Closed
//
// Nothing is rolled back. When a step fails after an earlier step changed
// the device, the error carries the container's last known state and how to
// reconcile it by hand.
package volume

import (
	"errors"
	"fmt"
	"os"

	"github.com/nace/ksm/internal/container"
	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/keystore"
	"github.com/nace/ksm/internal/ui"
)

// Encryptor is the encryption-container tool
type Encryptor interface {
	IsLUKS(device string) (bool, error)
	IsActive(mapperName string) (bool, error)
	Format(device string, auth container.AuthMethod) error
	Open(device, mapperName string, auth container.AuthMethod) error
	Close(mapperName string) error
}

// Filesystem is the filesystem tool
type Filesystem interface {
	MakeFilesystem(device, fsType string) error
	Mount(device, mountPoint string) error
	Unmount(mountPoint string, force bool) error
}

// MountChecker tells whether a path is currently a mount point
type MountChecker interface {
	IsMountPoint(path string) (bool, error)
}

// Options configures a Controller
type Options struct {
	MapperName string
	Filesystem string
	// KeysRoot is the key tree created below the mount point
	KeysRoot string
	// Auth unlocks the container; nil lets cryptsetup prompt
	Auth container.AuthMethod
	// ForceUnmount falls back to forced and lazy unmounts when the store is busy
	ForceUnmount bool
	DryRun       bool
}

// Controller runs the container state machine against the real tools, or
// only describes each step when DryRun is set
type Controller struct {
	luks     Encryptor
	fs       Filesystem
	mounts   MountChecker
	prompter ui.Prompter
	log      *ui.Logger
	opts     Options
}

// NewController creates a controller. mounts may be nil, in which case Lock
// assumes the store is mounted.
func NewController(luks Encryptor, fs Filesystem, mounts MountChecker, prompter ui.Prompter, log *ui.Logger, opts Options) *Controller {
	if opts.Auth == nil {
		opts.Auth = &container.InteractiveAuth{}
	}
	return &Controller{
		luks:     luks,
		fs:       fs,
		mounts:   mounts,
		prompter: prompter,
		log:      log,
		opts:     opts,
	}
}

func (c *Controller) newContainer(partition string, state container.State) *container.Container {
	return &container.Container{
		Partition:  partition,
		MapperName: c.opts.MapperName,
		Filesystem: c.opts.Filesystem,
		State:      state,
	}
}

// DetectAndOpen opens partition if it already carries a LUKS header.
// Otherwise it asks the operator before formatting it, then opens it and
// builds a filesystem on the mapped device.
func (c *Controller) DetectAndOpen(partition string) (*container.Container, error) {
	if err := c.ensureNotOpen(); err != nil {
		return nil, err
	}

	c.log.Info("Checking if %s is LUKS...", partition)
	isLuks, err := c.luks.IsLUKS(partition)
	if err != nil {
		return nil, err
	}

	if isLuks {
		c.log.Info("%s is a valid LUKS partition. Opening it...", partition)
		ctr := c.newContainer(partition, container.Closed)
		if err := c.open(ctr); err != nil {
			return ctr, err
		}
		return ctr, nil
	}

	if !c.prompter.Confirm(fmt.Sprintf("%s is NOT LUKS. All data will be erased. Continue?", partition)) {
		return nil, fmt.Errorf("%w: %s was not formatted", ksmerrors.ErrAborted, partition)
	}
	return c.formatAndOpen(partition)
}

// FormatAndOpen formats a partition that is known to be fresh, such as one
// just created, then opens it and builds a filesystem on it
func (c *Controller) FormatAndOpen(partition string) (*container.Container, error) {
	if err := c.ensureNotOpen(); err != nil {
		return nil, err
	}
	return c.formatAndOpen(partition)
}

func (c *Controller) formatAndOpen(partition string) (ctr *container.Container, err error) {
	ctr = c.newContainer(partition, container.Unformatted)
	defer c.reportState(ctr, container.Unformatted, &err)

	err = c.step(ctr, container.Closed,
		fmt.Sprintf("Would format %s as LUKS2", partition),
		func() error {
			c.log.Info("Formatting %s as LUKS2...", partition)
			return c.luks.Format(partition, c.opts.Auth)
		})
	if err != nil {
		return ctr, err
	}

	if err = c.open(ctr); err != nil {
		return ctr, err
	}

	if c.opts.DryRun {
		c.log.DryRun("Would create %s filesystem on %s", c.opts.Filesystem, ctr.MapperDevice())
		return ctr, nil
	}
	err = c.log.Progress(fmt.Sprintf("Creating %s filesystem on %s", c.opts.Filesystem, ctr.MapperDevice()), func() error {
		return c.fs.MakeFilesystem(ctr.MapperDevice(), c.opts.Filesystem)
	})
	return ctr, err
}

func (c *Controller) open(ctr *container.Container) (err error) {
	defer c.reportState(ctr, ctr.State, &err)
	return c.step(ctr, container.Opened,
		fmt.Sprintf("Would open %s as %s", ctr.Partition, ctr.MapperName),
		func() error {
			c.log.Info("Opening LUKS container %s as %s...", ctr.Partition, ctr.MapperName)
			return c.luks.Open(ctr.Partition, ctr.MapperName, c.opts.Auth)
		})
}

// Mount creates mountPoint if needed, mounts the opened container there and
// makes sure every key category directory exists
func (c *Controller) Mount(ctr *container.Container, mountPoint string) (err error) {
	defer c.reportState(ctr, ctr.State, &err)

	if err := ctr.CanTransition(container.Mounted); err != nil {
		return err
	}

	if c.opts.DryRun {
		c.log.DryRun("Would create mount point %s", mountPoint)
		c.log.DryRun("Would mount %s at %s", ctr.MapperDevice(), mountPoint)
		c.log.DryRun("Would create key directories under %s", c.opts.KeysRoot)
		ctr.MountPoint = mountPoint
		return ctr.Transition(container.Mounted)
	}

	if err := os.MkdirAll(mountPoint, 0700); err != nil {
		return fmt.Errorf("failed to create mount point %s: %w", mountPoint, err)
	}
	c.log.Info("Mounting %s at %s...", ctr.MapperDevice(), mountPoint)
	if err := c.fs.Mount(ctr.MapperDevice(), mountPoint); err != nil {
		return err
	}
	ctr.MountPoint = mountPoint
	if err := ctr.Transition(container.Mounted); err != nil {
		return err
	}
	return keystore.EnsureLayout(c.opts.KeysRoot)
}

// Unmount unmounts a mounted container, leaving it open
func (c *Controller) Unmount(ctr *container.Container) (err error) {
	defer c.reportState(ctr, ctr.State, &err)
	return c.step(ctr, container.Opened,
		fmt.Sprintf("Would unmount %s", ctr.MountPoint),
		func() error {
			c.log.Info("Unmounting %s...", ctr.MountPoint)
			return c.fs.Unmount(ctr.MountPoint, c.opts.ForceUnmount)
		})
}

// Close closes an opened container. A mounted container must be unmounted first.
func (c *Controller) Close(ctr *container.Container) (err error) {
	defer c.reportState(ctr, ctr.State, &err)
	return c.step(ctr, container.Closed,
		fmt.Sprintf("Would close %s", ctr.MapperName),
		func() error {
			c.log.Info("Closing LUKS container %s...", ctr.MapperName)
			return c.luks.Close(ctr.MapperName)
		})
}

// UnmountAndClose unmounts the container if needed, then closes it
func (c *Controller) UnmountAndClose(ctr *container.Container) error {
	if ctr.State == container.Mounted {
		if err := c.Unmount(ctr); err != nil {
			return err
		}
	}
	return c.Close(ctr)
}

// Unlock opens an existing LUKS partition and mounts it at mountPoint
func (c *Controller) Unlock(partition, mountPoint string) (*container.Container, error) {
	if err := c.ensureNotOpen(); err != nil {
		return nil, err
	}

	isLuks, err := c.luks.IsLUKS(partition)
	if err != nil {
		return nil, err
	}
	if !isLuks {
		notLuks := ksmerrors.WithHint(
			ksmerrors.Validationf("%s is not a LUKS partition", partition),
			"run init-usb-store to provision it first")
		if !c.opts.DryRun {
			return nil, notLuks
		}
		c.log.Warning("%v", notLuks)
	}

	ctr := c.newContainer(partition, container.Closed)
	if err := c.open(ctr); err != nil {
		return ctr, err
	}
	if err := c.Mount(ctr, mountPoint); err != nil {
		return ctr, err
	}
	return ctr, nil
}

// Lock unmounts the store at mountPoint and closes its container. A missing
// mount point is an error, except in a rehearsal where it is only reported.
func (c *Controller) Lock(mountPoint string) error {
	if _, err := os.Stat(mountPoint); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to check mount point %s: %w", mountPoint, err)
		}
		if !c.opts.DryRun {
			return ksmerrors.NotFoundf("mount point %s", mountPoint)
		}
		c.log.Warning("Mount point %s does not exist", mountPoint)
	}

	state := container.Mounted
	if !c.opts.DryRun {
		mounted := true
		if c.mounts != nil {
			var err error
			if mounted, err = c.mounts.IsMountPoint(mountPoint); err != nil {
				return err
			}
		}
		if !mounted {
			active, err := c.luks.IsActive(c.opts.MapperName)
			if err != nil {
				return err
			}
			if !active {
				c.log.Info("Key store %s is already locked", c.opts.MapperName)
				return nil
			}
			state = container.Opened
		}
	}

	ctr := c.newContainer("", state)
	ctr.MountPoint = mountPoint
	return c.UnmountAndClose(ctr)
}

// ensureNotOpen refuses to open a second container under the same mapper name
func (c *Controller) ensureNotOpen() error {
	active, err := c.luks.IsActive(c.opts.MapperName)
	if err != nil {
		return err
	}
	if !active {
		return nil
	}
	conflict := ksmerrors.WithHint(
		fmt.Errorf("%w: container already open as %s", ksmerrors.ErrStateConflict, c.opts.MapperName),
		"run lock-usb-store first")
	if c.opts.DryRun {
		c.log.Warning("%v", conflict)
		return nil
	}
	return conflict
}

// step performs one lifecycle transition, or describes it in a rehearsal
func (c *Controller) step(ctr *container.Container, next container.State, intent string, fn func() error) error {
	if err := ctr.CanTransition(next); err != nil {
		return err
	}
	if c.opts.DryRun {
		c.log.DryRun("%s", intent)
	} else if err := fn(); err != nil {
		return err
	}
	return ctr.Transition(next)
}

// stateError marks an error that already carries the container state
type stateError struct {
	err error
}

func (e *stateError) Error() string { return e.err.Error() }
func (e *stateError) Unwrap() error { return e.err }

// reportState attaches the container's last known state to *err when the
// container holds live resources or changed during the failed call
func (c *Controller) reportState(ctr *container.Container, start container.State, err *error) {
	if *err == nil || ksmerrors.Is(*err, ksmerrors.ErrStateConflict) {
		return
	}
	if ctr.State < container.Opened && ctr.State == start {
		return
	}
	var reported *stateError
	if errors.As(*err, &reported) {
		return
	}
	*err = &stateError{err: ksmerrors.WithHint(
		fmt.Errorf("%w (last known state: %s)", *err, ctr.Describe()),
		reconcileHint(ctr))}
}

func reconcileHint(ctr *container.Container) string {
	switch ctr.State {
	case container.Mounted:
		return fmt.Sprintf("reconcile manually: umount %s && cryptsetup close %s", ctr.MountPoint, ctr.MapperName)
	case container.Opened:
		return fmt.Sprintf("reconcile manually: cryptsetup close %s", ctr.MapperName)
	default:
		return fmt.Sprintf("%s was formatted; run unlock-usb-store once the problem is fixed", ctr.Partition)
	}
}
