package cli

import (
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nace/ksm/internal/config"
	"github.com/nace/ksm/internal/container"
	ksmerrors "github.com/nace/ksm/internal/errors"
	"github.com/nace/ksm/internal/keyslot"
	"github.com/nace/ksm/internal/keystore"
	"github.com/nace/ksm/internal/planner"
	"github.com/nace/ksm/internal/system"
	"github.com/nace/ksm/internal/ui"
	"github.com/nace/ksm/internal/volume"
	"github.com/nace/ksm/internal/workflow"
)

// GlobalContext holds shared resources for all commands
type GlobalContext struct {
	Executor     *system.Executor
	Logger       *ui.Logger
	Prompter     ui.Prompter
	LUKSManager  *container.LUKSManager
	MountMgr     *container.MountManager
	PartitionMgr *container.PartitionManager
	Discovery    *container.Discovery

	// Out receives command results: listings, tables, JSON and YAML
	Out io.Writer

	// ConfigFile is the --config flag, empty to search the default locations
	ConfigFile string
	// Flags holds the persistent flags that override configuration values
	Flags *pflag.FlagSet
}

// NewGlobalContext creates a new global context
func NewGlobalContext(verbose, quiet, noColor, debug bool) *GlobalContext {
	executor := system.NewExecutor(debug)
	logger := ui.NewLogger(verbose, quiet, noColor)

	return &GlobalContext{
		Executor:     executor,
		Logger:       logger,
		Prompter:     ui.NewTerminalPrompter(),
		LUKSManager:  container.NewLUKSManager(executor),
		MountMgr:     container.NewMountManager(executor),
		PartitionMgr: container.NewPartitionManager(executor),
		Discovery:    container.NewDiscovery(executor),
		Out:          os.Stdout,
	}
}

// storeTools are the commands the store lifecycle drives
var storeTools = []string{
	"cryptsetup",
	"parted",
	"lsblk",
	"mount",
	"umount",
}

// CheckDependencies checks for required system commands
func (ctx *GlobalContext) CheckDependencies(deps ...string) error {
	return ctx.Executor.CheckDependencies(deps)
}

// LoadConfig reads the effective configuration
func (ctx *GlobalContext) LoadConfig() (config.Config, error) {
	cfg, err := config.Load(ctx.ConfigFile, ctx.Flags)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.File != "" {
		ctx.Logger.Debug("Using config file %s", cfg.File)
	}
	return cfg, nil
}

// RequirePrivileges requires root for real runs. Rehearsals never touch a
// device, so they may run unprivileged.
func (ctx *GlobalContext) RequirePrivileges(dryRun bool) error {
	if dryRun {
		return nil
	}
	return system.RequireRoot()
}

// GetAuthMethod returns keyfile authentication when keyfile is set and lets
// cryptsetup prompt for a passphrase otherwise
func GetAuthMethod(keyfile string) (container.AuthMethod, error) {
	if keyfile == "" {
		return &container.InteractiveAuth{}, nil
	}
	resolved, err := system.ValidateKeyfilePath(keyfile)
	if err != nil {
		return nil, err
	}
	return &container.KeyfileAuth{KeyfilePath: resolved}, nil
}

// NewController builds the volume controller for the configured store.
// opts carries the per-command settings; the store settings come from cfg.
func (ctx *GlobalContext) NewController(cfg config.Config, opts volume.Options) *volume.Controller {
	opts.MapperName = cfg.USB.MapperName
	opts.Filesystem = cfg.USB.Filesystem
	opts.KeysRoot = cfg.KeysRoot()
	return volume.NewController(ctx.LUKSManager, ctx.MountMgr, ctx.Discovery, ctx.Prompter, ctx.Logger, opts)
}

// NewWorkflow builds the interactive store workflow for the configured disk
func (ctx *GlobalContext) NewWorkflow(cfg config.Config, opts volume.Options) *workflow.Workflow {
	return workflow.New(
		planner.New(ctx.PartitionMgr),
		ctx.PartitionMgr,
		ctx.NewController(cfg, opts),
		ctx.Prompter,
		ctx.Logger,
		ctx.Out,
		workflow.Options{
			Device:     cfg.USB.Device,
			MountPoint: cfg.USB.MountPoint,
			DryRun:     opts.DryRun,
		})
}

// NewStore opens the key tree of the configured store
func (ctx *GlobalContext) NewStore(cfg config.Config) *keystore.Store {
	return keystore.NewStore(cfg.KeysRoot(), ctx.Prompter, ctx.Logger)
}

// NewRotator builds a key slot rotator over cryptsetup
func (ctx *GlobalContext) NewRotator() *keyslot.Rotator {
	return keyslot.NewRotator(ctx.LUKSManager, ctx.Logger)
}

// RequireUnlocked fails unless the store is mounted, so keys are never
// written to the directory underneath an unmounted store. A rehearsal only
// warns.
func (ctx *GlobalContext) RequireUnlocked(cfg config.Config, dryRun bool) error {
	mounted, err := ctx.Discovery.IsMountPoint(cfg.USB.MountPoint)
	if err == nil && mounted {
		return nil
	}
	notMounted := ksmerrors.WithHint(
		ksmerrors.NotFoundf("no key store mounted at %s", cfg.USB.MountPoint),
		"run unlock-usb-store first")
	if dryRun {
		ctx.Logger.Warning("%v", notMounted)
		return nil
	}
	return notMounted
}

// ReportError prints a fatal error and its hint
func (ctx *GlobalContext) ReportError(err error) {
	if ksmerrors.Is(err, ksmerrors.ErrAborted) {
		ctx.Logger.Error("Operation aborted by user.")
	}
	ctx.Logger.Error("%v", err)
	if hint := ksmerrors.Hint(err); hint != "" {
		ctx.Logger.Hint("%s", hint)
	}
}
