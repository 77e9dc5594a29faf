package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nace/ksm/internal/container"
	"github.com/nace/ksm/internal/system"
	"github.com/nace/ksm/internal/ui"
)

// StatusCommand reports whether the key store is open and mounted
type StatusCommand struct {
	ctx  *GlobalContext
	json bool
}

// storeStatus is the JSON form of status-usb-store
type storeStatus struct {
	Mapper     string `json:"mapper"`
	Open       bool   `json:"open"`
	Mounted    bool   `json:"mounted"`
	Partition  string `json:"partition,omitempty"`
	MountPoint string `json:"mount_point,omitempty"`
	Filesystem string `json:"filesystem,omitempty"`
	Size       uint64 `json:"size,omitempty"`
	Used       uint64 `json:"used,omitempty"`
}

// NewStatusCommand creates the status-usb-store command
func NewStatusCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &StatusCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "status-usb-store",
		Short: "Show the state of the key store",
		Long:  `Show whether the key store is open, where it is mounted, and how full it is.`,
		Args:  cobra.NoArgs,
		RunE:  cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.json, "json", "j", false, "JSON output")

	return cobraCmd
}

// Run executes the status-usb-store command
func (c *StatusCommand) Run(cmd *cobra.Command, args []string) error {
	cfg, err := c.ctx.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateStore(); err != nil {
		return err
	}
	if err := c.ctx.RequirePrivileges(false); err != nil {
		return err
	}
	if err := c.ctx.CheckDependencies("dmsetup", "df"); err != nil {
		return err
	}

	found, err := c.ctx.Discovery.FindByMapper(cfg.USB.MapperName)
	if err != nil {
		return fmt.Errorf("failed to inspect key store: %w", err)
	}

	status := newStoreStatus(cfg.USB.MapperName, found)
	if c.json {
		return ui.PrintJSON(c.ctx.Out, status)
	}
	c.print(status)
	return nil
}

func newStoreStatus(mapper string, found *container.Container) storeStatus {
	status := storeStatus{Mapper: mapper}
	if found == nil {
		return status
	}
	status.Open = true
	status.Mounted = found.State == container.Mounted
	status.Partition = found.Partition
	status.MountPoint = found.MountPoint
	status.Filesystem = found.Filesystem
	status.Size = found.Size
	status.Used = found.Used
	return status
}

func (c *StatusCommand) print(s storeStatus) {
	out := c.ctx.Out
	if !s.Open {
		fmt.Fprintf(out, "Key store %s is locked\n", s.Mapper)
		return
	}

	fmt.Fprintf(out, "Key store: %s\n", s.Mapper)
	if s.Partition != "" {
		fmt.Fprintf(out, "  Partition: %s\n", s.Partition)
	}
	if !s.Mounted {
		fmt.Fprintln(out, "  State: open, not mounted")
		return
	}
	fmt.Fprintln(out, "  State: mounted")
	fmt.Fprintf(out, "  Mount Point: %s\n", s.MountPoint)
	if s.Filesystem != "" {
		fmt.Fprintf(out, "  Filesystem: %s\n", s.Filesystem)
	}
	if s.Size > 0 {
		fmt.Fprintf(out, "  Size: %s\n", system.FormatSize(s.Size))
		fmt.Fprintf(out, "  Used: %s (%.1f%%)\n", system.FormatSize(s.Used), float64(s.Used)/float64(s.Size)*100)
	}
}
