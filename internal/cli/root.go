package cli

import (
	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/config"
	"github.com/nace/ksm/internal/container"
	"github.com/nace/ksm/internal/system"
	"github.com/nace/ksm/internal/ui"
)

// Version of the ksm binary
const Version = "0.1.0"

// NewRootCommand creates the ksm root command with every subcommand
// registered. The context's components are rebuilt from the parsed global
// flags before any subcommand runs.
func NewRootCommand(ctx *GlobalContext) *cobra.Command {
	var (
		verbose bool
		quiet   bool
		noColor bool
		debug   bool
	)

	rootCmd := &cobra.Command{
		Use:   "ksm",
		Short: "ksm - USB key store manager",
		Long: `ksm manages an encrypted key store on a removable USB disk.

It provisions a LUKS2 partition for the store, unlocks and locks it,
creates, lists, deletes and backs up the keyfiles kept inside, and
rotates LUKS key slots of other devices to those keyfiles. Every
command that changes something accepts --dry-run.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Recreate executor, logger and managers with parsed flags
			ctx.Executor = system.NewExecutor(debug)
			ctx.Logger = ui.NewLogger(verbose, quiet, noColor)
			ctx.LUKSManager = container.NewLUKSManager(ctx.Executor)
			ctx.MountMgr = container.NewMountManager(ctx.Executor)
			ctx.PartitionMgr = container.NewPartitionManager(ctx.Executor)
			ctx.Discovery = container.NewDiscovery(ctx.Executor)
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (suppress non-error output)")
	flags.BoolVar(&noColor, "no-color", false, "Disable color output")
	flags.BoolVar(&debug, "debug", false, "Debug mode (show commands)")
	flags.StringVarP(&ctx.ConfigFile, "config", "c", "", "Config file (default ksm-config.yaml in ., ~/.config/ksm, /etc/ksm)")
	config.BindFlags(flags)
	ctx.Flags = flags

	rootCmd.AddCommand(NewInitCommand(ctx))
	rootCmd.AddCommand(NewUnlockCommand(ctx))
	rootCmd.AddCommand(NewLockCommand(ctx))
	rootCmd.AddCommand(NewStatusCommand(ctx))
	rootCmd.AddCommand(NewCreateKeyCommand(ctx))
	rootCmd.AddCommand(NewDeleteKeyCommand(ctx))
	rootCmd.AddCommand(NewListKeysCommand(ctx))
	rootCmd.AddCommand(NewRotateKeyCommand(ctx))
	rootCmd.AddCommand(NewBackupKeysCommand(ctx))
	rootCmd.AddCommand(NewShowConfigCommand(ctx))

	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}
