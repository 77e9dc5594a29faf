package cli

import (
	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/volume"
)

// LockCommand unmounts and closes the key store
type LockCommand struct {
	ctx    *GlobalContext
	force  bool
	dryRun bool
}

// NewLockCommand creates the lock-usb-store command
func NewLockCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &LockCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "lock-usb-store",
		Short: "Unmount and close the key store",
		Long:  `Unmount the key store from the configured mount point and close its LUKS container.`,
		Args:  cobra.NoArgs,
		RunE:  cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.force, "force", "f", false, "Force unmount if the store is busy")
	cobraCmd.Flags().BoolVar(&cmd.dryRun, "dry-run", false, "Show what would be done without changing anything")

	return cobraCmd
}

// Run executes the lock-usb-store command
func (c *LockCommand) Run(cmd *cobra.Command, args []string) error {
	cfg, err := c.ctx.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateStore(); err != nil {
		return err
	}
	if err := c.ctx.RequirePrivileges(c.dryRun); err != nil {
		return err
	}
	if err := c.ctx.CheckDependencies("cryptsetup", "umount"); err != nil {
		return err
	}

	return c.ctx.NewWorkflow(cfg, volume.Options{ForceUnmount: c.force, DryRun: c.dryRun}).Lock()
}
