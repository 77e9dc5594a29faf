package cli

import (
	"github.com/spf13/cobra"

	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/keystore"
)

// CreateKeyCommand writes a new random keyfile into the store
type CreateKeyCommand struct {
	ctx     *GlobalContext
	name    string
	keyType string
	size    int
	dryRun  bool
}

// NewCreateKeyCommand creates the create-key command
func NewCreateKeyCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &CreateKeyCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "create-key",
		Short: "Create a random keyfile in the key store",
		Long: `Create a keyfile of random bytes in the unlocked key store.

Name, type and size default to usb.keyfile, usb.key_type and
usb.keyfile_size from the configuration. An existing key is only
overwritten after confirmation.`,
		Args: cobra.NoArgs,
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.name, "name", "n", "", "Key name (default usb.keyfile)")
	cobraCmd.Flags().StringVarP(&cmd.keyType, "type", "t", "", "Key type: system, vm or backup (default usb.key_type)")
	cobraCmd.Flags().IntVarP(&cmd.size, "size", "s", 0, "Key size in bytes (default usb.keyfile_size)")
	cobraCmd.Flags().BoolVar(&cmd.dryRun, "dry-run", false, "Show what would be done without changing anything")

	return cobraCmd
}

// Run executes the create-key command
func (c *CreateKeyCommand) Run(cmd *cobra.Command, args []string) error {
	cfg, err := c.ctx.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateKeys(); err != nil {
		return err
	}

	name := firstNonEmpty(c.name, cfg.USB.Keyfile)
	if name == "" {
		return ksmerrors.WithHint(ksmerrors.Validationf("no key name given"), "pass --name or set usb.keyfile")
	}
	category, err := keystore.ParseCategory(firstNonEmpty(c.keyType, cfg.USB.KeyType))
	if err != nil {
		return err
	}
	size := c.size
	if size == 0 {
		size = cfg.USB.KeyfileSize
	}

	if err := c.ctx.RequireUnlocked(cfg, c.dryRun); err != nil {
		return err
	}

	_, err = c.ctx.NewStore(cfg).Create(name, category, size, c.dryRun)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
