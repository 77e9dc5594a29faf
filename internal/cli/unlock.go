package cli

import (
	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/volume"
)

// UnlockCommand opens and mounts the key store
type UnlockCommand struct {
	ctx     *GlobalContext
	keyfile string
	dryRun  bool
}

// NewUnlockCommand creates the unlock-usb-store command
func NewUnlockCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &UnlockCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "unlock-usb-store",
		Short: "Open and mount the key store",
		Long:  `Open the LUKS partition of the key store and mount it at the configured mount point.`,
		Args:  cobra.NoArgs,
		RunE:  cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.keyfile, "key-file", "k", "", "Keyfile for the container (if not set, cryptsetup prompts for a passphrase)")
	cobraCmd.Flags().BoolVar(&cmd.dryRun, "dry-run", false, "Show what would be done without changing anything")

	return cobraCmd
}

// Run executes the unlock-usb-store command
func (c *UnlockCommand) Run(cmd *cobra.Command, args []string) error {
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
	if err := c.ctx.CheckDependencies(storeTools...); err != nil {
		return err
	}

	auth, err := GetAuthMethod(c.keyfile)
	if err != nil {
		return err
	}

	return c.ctx.NewWorkflow(cfg, volume.Options{Auth: auth, DryRun: c.dryRun}).Unlock()
}
