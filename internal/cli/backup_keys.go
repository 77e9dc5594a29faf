package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/keystore"
)

// BackupKeysCommand copies keyfiles out of the store
type BackupKeysCommand struct {
	ctx     *GlobalContext
	keyType string
	keyName string
	dryRun  bool
}

// NewBackupKeysCommand creates the backup-keys command
func NewBackupKeysCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &BackupKeysCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "backup-keys <destination>",
		Short: "Copy keyfiles from the key store to a directory",
		Long: `Copy keyfiles to a destination directory, merging with its contents.
Files already at the destination are overwritten.

  --key-type and --key-name   copy a single key
  --key-type                  copy every key of that type
  (no flags)                  copy the whole key tree`,
		Args: cobra.ExactArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.keyType, "key-type", "t", "", "Key type to back up: system, vm or backup")
	cobraCmd.Flags().StringVarP(&cmd.keyName, "key-name", "n", "", "Single key to back up (requires --key-type)")
	cobraCmd.Flags().BoolVar(&cmd.dryRun, "dry-run", false, "Show what would be done without changing anything")

	return cobraCmd
}

// Run executes the backup-keys command
func (c *BackupKeysCommand) Run(cmd *cobra.Command, args []string) error {
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

	destination, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	if err := c.ctx.RequireUnlocked(cfg, c.dryRun); err != nil {
		return err
	}

	return c.ctx.NewStore(cfg).Backup(destination, category, c.keyName, c.dryRun)
}
