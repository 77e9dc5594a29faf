package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/ui"
)

// ShowConfigCommand prints the effective configuration
type ShowConfigCommand struct {
	ctx *GlobalContext
}

// NewShowConfigCommand creates the show-config command
func NewShowConfigCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ShowConfigCommand{ctx: ctx}

	return &cobra.Command{
		Use:   "show-config",
		Short: "Print the effective configuration",
		Long:  `Print the configuration after applying the config file, KSM_* environment variables and flags.`,
		Args:  cobra.NoArgs,
		RunE:  cmd.Run,
	}
}

// Run executes the show-config command
func (c *ShowConfigCommand) Run(cmd *cobra.Command, args []string) error {
	cfg, err := c.ctx.LoadConfig()
	if err != nil {
		return err
	}

	if cfg.File != "" {
		fmt.Fprintf(c.ctx.Out, "# %s\n", cfg.File)
	} else {
		fmt.Fprintln(c.ctx.Out, "# no config file found, showing defaults")
	}
	return ui.PrintYAML(c.ctx.Out, cfg)
}
