package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/container"
	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/keystore"
)

// RotateKeyCommand replaces a LUKS key slot with a keyfile from the store
type RotateKeyCommand struct {
	ctx           *GlobalContext
	unlockKeyfile string
	dryRun        bool
}

// NewRotateKeyCommand creates the rotate-key command
func NewRotateKeyCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &RotateKeyCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "rotate-key <name> <type> <luks-device> <slot>",
		Short: "Rotate a LUKS key slot to a keyfile from the store",
		Long: `Add the stored keyfile to a LUKS device as a new key slot, then remove
the given slot.

The new key is always added before the old slot is removed. If removing
the old slot fails, the device is left with both credentials and the
command tells you how to remove the old one.`,
		Args: cobra.ExactArgs(4),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVar(&cmd.unlockKeyfile, "unlock-key-file", "",
		"Existing keyfile of the device (if not set, cryptsetup prompts for a passphrase)")
	cobraCmd.Flags().BoolVar(&cmd.dryRun, "dry-run", false, "Show what would be done without changing anything")

	return cobraCmd
}

// Run executes the rotate-key command
func (c *RotateKeyCommand) Run(cmd *cobra.Command, args []string) error {
	name, device := args[0], args[2]

	category, err := keystore.ParseCategory(args[1])
	if err != nil {
		return err
	}
	slot, err := strconv.Atoi(args[3])
	if err != nil {
		return ksmerrors.Validationf("invalid key slot %q", args[3])
	}

	cfg, err := c.ctx.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateKeys(); err != nil {
		return err
	}
	if err := c.ctx.RequirePrivileges(c.dryRun); err != nil {
		return err
	}
	if err := c.ctx.CheckDependencies("cryptsetup"); err != nil {
		return err
	}
	if err := c.ctx.RequireUnlocked(cfg, c.dryRun); err != nil {
		return err
	}

	var unlock container.AuthMethod
	if c.unlockKeyfile != "" {
		if unlock, err = GetAuthMethod(c.unlockKeyfile); err != nil {
			return err
		}
	}

	keyFile := c.ctx.NewStore(cfg).Path(name, category)
	return c.ctx.NewRotator().Rotate(keyFile, device, slot, unlock, c.dryRun)
}
