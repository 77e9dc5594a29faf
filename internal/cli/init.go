package cli

import (
	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/ui"
	"github.com/nace/ksm/internal/volume"
)

// InitCommand provisions the key store on the configured disk
type InitCommand struct {
	ctx     *GlobalContext
	keyfile string
	dryRun  bool
}

// NewInitCommand creates the init-usb-store command
func NewInitCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &InitCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "init-usb-store",
		Short: "Provision the encrypted key store on the USB disk",
		Long: `Set up the LUKS2 key store on the configured USB disk.

You choose an existing partition, or create a new one at the end of the
disk. A partition without a LUKS header is formatted after confirmation.
The store is mounted, the key directories (system, vms, backup) are
created, and the store is locked again.`,
		Args: cobra.NoArgs,
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.keyfile, "key-file", "k", "", "Keyfile for the container (if not set, cryptsetup prompts for a passphrase)")
	cobraCmd.Flags().BoolVar(&cmd.dryRun, "dry-run", false, "Show what would be done without changing anything")

	return cobraCmd
}

// Run executes the init-usb-store command
func (c *InitCommand) Run(cmd *cobra.Command, args []string) error {
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
	if err := c.ctx.CheckDependencies(append(storeTools, "mkfs."+cfg.USB.Filesystem)...); err != nil {
		return err
	}

	auth, err := GetAuthMethod(c.keyfile)
	if err != nil {
		return err
	}

	if !ui.StdinIsTerminal() {
		c.ctx.Logger.Warning("Standard input is not a terminal; answers are read from it line by line")
	}

	return c.ctx.NewWorkflow(cfg, volume.Options{Auth: auth, DryRun: c.dryRun}).Provision()
}
