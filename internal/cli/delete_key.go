package cli

import (
	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/keystore"
)

// DeleteKeyCommand removes a keyfile from the store
type DeleteKeyCommand struct {
	ctx     *GlobalContext
	keyType string
	dryRun  bool
}

// NewDeleteKeyCommand creates the delete-key command
func NewDeleteKeyCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &DeleteKeyCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "delete-key <name>",
		Short: "Delete a keyfile from the key store",
		Long: `Delete a keyfile after confirmation. Deletion cannot be undone.

All key types are searched. If the name exists under more than one type,
pass --type to pick one.`,
		Args: cobra.ExactArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.keyType, "type", "t", "", "Key type: system, vm or backup")
	cobraCmd.Flags().BoolVar(&cmd.dryRun, "dry-run", false, "Show what would be done without changing anything")

	return cobraCmd
}

// Run executes the delete-key command
func (c *DeleteKeyCommand) Run(cmd *cobra.Command, args []string) error {
	cfg, err := c.ctx.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateKeys(); err != nil {
		return err
	}

	var category keystore.Category
	if c.keyType != "" {
		if category, err = keystore.ParseCategory(c.keyType); err != nil {
			return err
		}
	}

	if err := c.ctx.RequireUnlocked(cfg, c.dryRun); err != nil {
		return err
	}

	return c.ctx.NewStore(cfg).Delete(args[0], category, c.dryRun)
}
