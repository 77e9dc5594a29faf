package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/keystore"
	"github.com/nace/ksm/internal/system"
	"github.com/nace/ksm/internal/ui"
)

// ListKeysCommand lists the keyfiles in the store
type ListKeysCommand struct {
	ctx    *GlobalContext
	types  []string
	output string
}

// keyEntry is the structured form of one listed key
type keyEntry struct {
	Name string `json:"name" yaml:"name"`
	Size int64  `json:"size" yaml:"size"`
	Path string `json:"path" yaml:"path"`
}

// keyGroup is the structured form of one listed category
type keyGroup struct {
	Type string     `json:"type" yaml:"type"`
	Keys []keyEntry `json:"keys" yaml:"keys"`
}

// NewListKeysCommand creates the list-keys command
func NewListKeysCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ListKeysCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "list-keys",
		Short: "List keyfiles in the key store",
		Long:  `List the keyfiles of each key type. Types without keys are left out.`,
		Args:  cobra.NoArgs,
		RunE:  cmd.Run,
	}

	cobraCmd.Flags().StringSliceVarP(&cmd.types, "type", "t", nil, "Key types to list (default all)")
	cobraCmd.Flags().StringVarP(&cmd.output, "output", "o", "text", "Output format: text, json or yaml")

	return cobraCmd
}

// Run executes the list-keys command
func (c *ListKeysCommand) Run(cmd *cobra.Command, args []string) error {
	cfg, err := c.ctx.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateKeys(); err != nil {
		return err
	}

	categories := keystore.Categories
	if len(c.types) > 0 {
		categories = nil
		for _, t := range c.types {
			category, err := keystore.ParseCategory(t)
			if err != nil {
				return err
			}
			categories = append(categories, category)
		}
	}

	listings, err := c.ctx.NewStore(cfg).List(categories)
	if err != nil {
		return err
	}
	return c.render(listings)
}

func (c *ListKeysCommand) render(listings []keystore.Listing) error {
	switch c.output {
	case "json":
		return ui.PrintJSON(c.ctx.Out, toKeyGroups(listings))
	case "yaml":
		return ui.PrintYAML(c.ctx.Out, toKeyGroups(listings))
	case "text":
	default:
		return ksmerrors.WithHint(ksmerrors.Validationf("unknown output format %q", c.output), "use text, json or yaml")
	}

	if len(listings) == 0 {
		fmt.Fprintln(c.ctx.Out, "No keys found.")
		return nil
	}

	table := ui.NewTable("TYPE", "NAME", "SIZE")
	for _, l := range listings {
		for _, k := range l.Keys {
			table.AddRow(l.Category.String(), k.Name, system.FormatSize(uint64(k.Size)))
		}
	}
	table.Fprint(c.ctx.Out)
	return nil
}

func toKeyGroups(listings []keystore.Listing) []keyGroup {
	groups := make([]keyGroup, 0, len(listings))
	for _, l := range listings {
		g := keyGroup{Type: l.Category.String()}
		for _, k := range l.Keys {
			g.Keys = append(g.Keys, keyEntry{Name: k.Name, Size: k.Size, Path: k.Path})
		}
		groups = append(groups, g)
	}
	return groups
}
