// Package config loads the ksm configuration.
//
// Values come from a YAML file (ksm-config.yaml, or the older
// arbis-tools-config.yaml), overridden by KSM_* environment variables and
// then by command-line flags. The result is an immutable Config value that
// commands pass explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nace/ksm/internal/container"
	ksmerrors "github.com/nace/ksm/internal/errors"
)

// Config is the effective configuration of one invocation
type Config struct {
	USB USBConfig `mapstructure:"usb" yaml:"usb"`

	// File is the config file that was read, empty if none was found
	File string `mapstructure:"-" yaml:"-"`
}

// USBConfig describes the removable key store
type USBConfig struct {
	// Device is the whole disk holding the store, /dev/sdX or /dev/disk/by-id/...
	Device string `mapstructure:"device" yaml:"device"`

	// MapperName is the dm-crypt name the store is opened under
	MapperName string `mapstructure:"luks_name" yaml:"luks_name"`

	// MountPoint is where the opened store is mounted
	MountPoint string `mapstructure:"mount_point" yaml:"mount_point"`

	// KeysDir is the key tree below the mount point
	// Default: keys
	KeysDir string `mapstructure:"keys_dir" yaml:"keys_dir"`

	// Filesystem built on a freshly formatted store
	// Default: ext4
	Filesystem string `mapstructure:"filesystem" yaml:"filesystem"`

	// Keyfile is the default key name for create-key
	Keyfile string `mapstructure:"keyfile" yaml:"keyfile,omitempty"`

	// KeyType is the default category for create-key (system, vm, backup)
	KeyType string `mapstructure:"key_type" yaml:"key_type,omitempty"`

	// KeyfileSize is the default key size in bytes
	// Default: 4096
	KeyfileSize int `mapstructure:"keyfile_size" yaml:"keyfile_size"`
}

// KeysRoot returns the absolute directory holding the key categories
func (c Config) KeysRoot() string {
	if filepath.IsAbs(c.USB.KeysDir) {
		return c.USB.KeysDir
	}
	return filepath.Join(c.USB.MountPoint, c.USB.KeysDir)
}

// Flag names bound to configuration keys
var flagKeys = map[string]string{
	"device":      "usb.device",
	"mapper-name": "usb.luks_name",
	"mount-point": "usb.mount_point",
}

// BindFlags registers the store location flags on fs
func BindFlags(fs *pflag.FlagSet) {
	fs.String("device", "", "Block device holding the key store (overrides config)")
	fs.String("mapper-name", "", "dm-crypt mapper name of the key store (overrides config)")
	fs.String("mount-point", "", "Mount point of the key store (overrides config)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("usb.keys_dir", "keys")
	v.SetDefault("usb.filesystem", "ext4")
	v.SetDefault("usb.keyfile_size", 4096)
}

// Load reads configuration from file (or the default search path when file
// is empty), the environment and the flags bound with BindFlags.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("ksm-config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ksm"))
		}
		v.AddConfigPath("/etc/ksm")
	}

	v.SetEnvPrefix("KSM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfig(v, file); err != nil {
		return Config{}, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ksmerrors.ErrConfiguration, err)
	}
	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range []string{"usb.device", "usb.luks_name", "usb.mount_point", "usb.keyfile", "usb.key_type"} {
		if val := v.GetString(key); val != "" {
			setString(&cfg, key, val)
		}
	}
	cfg.File = v.ConfigFileUsed()

	return cfg, nil
}

func readConfig(v *viper.Viper, file string) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if file == "" && errors.As(err, &notFound) {
		// fall back to the legacy name before giving up
		v.SetConfigName("arbis-tools-config")
		err = v.ReadInConfig()
		if err == nil || errors.As(err, &notFound) {
			return nil
		}
	}
	return ksmerrors.WithHint(
		fmt.Errorf("%w: reading config: %v", ksmerrors.ErrConfiguration, err),
		"check the YAML syntax of the config file")
}

func setString(cfg *Config, key, val string) {
	switch key {
	case "usb.device":
		cfg.USB.Device = val
	case "usb.luks_name":
		cfg.USB.MapperName = val
	case "usb.mount_point":
		cfg.USB.MountPoint = val
	case "usb.keyfile":
		cfg.USB.Keyfile = val
	case "usb.key_type":
		cfg.USB.KeyType = val
	}
}

// ValidateStore checks the fields needed to provision, unlock or lock the store
func (c Config) ValidateStore() error {
	var missing []string
	if c.USB.Device == "" {
		missing = append(missing, "usb.device")
	}
	if c.USB.MapperName == "" {
		missing = append(missing, "usb.luks_name")
	}
	if c.USB.MountPoint == "" {
		missing = append(missing, "usb.mount_point")
	}
	if len(missing) > 0 {
		return missingError(missing)
	}

	if err := container.ValidateMapperName(c.USB.MapperName); err != nil {
		return fmt.Errorf("%w: usb.luks_name: %v", ksmerrors.ErrConfiguration, err)
	}
	if !slices.Contains(container.SupportedFilesystems, c.USB.Filesystem) {
		return fmt.Errorf("%w: usb.filesystem %q is not one of %s",
			ksmerrors.ErrConfiguration, c.USB.Filesystem, strings.Join(container.SupportedFilesystems, ", "))
	}
	return nil
}

// ValidateKeys checks the fields needed by key operations
func (c Config) ValidateKeys() error {
	if c.USB.MountPoint == "" {
		return missingError([]string{"usb.mount_point"})
	}
	if c.USB.KeyfileSize <= 0 {
		return fmt.Errorf("%w: usb.keyfile_size must be positive, got %d",
			ksmerrors.ErrConfiguration, c.USB.KeyfileSize)
	}
	return nil
}

func missingError(fields []string) error {
	return ksmerrors.WithHint(
		fmt.Errorf("%w: missing %s", ksmerrors.ErrConfiguration, strings.Join(fields, ", ")),
		"set them in ksm-config.yaml, via KSM_* environment variables, or with flags")
}
