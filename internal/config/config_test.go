package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

const sampleConfig = `usb:
  device: /dev/sdb
  luks_name: keystore
  mount_point: /mnt/keys
  keyfile: host
  key_type: system
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ksm-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, "/dev/sdb", cfg.USB.Device)
	assert.Equal(t, "keystore", cfg.USB.MapperName)
	assert.Equal(t, "/mnt/keys", cfg.USB.MountPoint)
	assert.Equal(t, "host", cfg.USB.Keyfile)
	assert.Equal(t, "system", cfg.USB.KeyType)
	assert.NotEmpty(t, cfg.File)

	// defaults
	assert.Equal(t, "keys", cfg.USB.KeysDir)
	assert.Equal(t, "ext4", cfg.USB.Filesystem)
	assert.Equal(t, 4096, cfg.USB.KeyfileSize)
	assert.Equal(t, "/mnt/keys/keys", cfg.KeysRoot())

	require.NoError(t, cfg.ValidateStore())
	require.NoError(t, cfg.ValidateKeys())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KSM_USB_LUKS_NAME", "fromenv")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--mount-point", "/media/usb"}))

	cfg, err := Load(writeConfig(t, sampleConfig), flags)
	require.NoError(t, err)

	assert.Equal(t, "fromenv", cfg.USB.MapperName)
	assert.Equal(t, "/media/usb", cfg.USB.MountPoint)
	assert.Equal(t, "/dev/sdb", cfg.USB.Device)
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "usb: [unclosed\n"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ksmerrors.ErrConfiguration)
}

func TestValidateStore(t *testing.T) {
	base := Config{USB: USBConfig{
		Device:      "/dev/sdb",
		MapperName:  "keystore",
		MountPoint:  "/mnt/keys",
		KeysDir:     "keys",
		Filesystem:  "ext4",
		KeyfileSize: 4096,
	}}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"missing device", func(c *Config) { c.USB.Device = "" }},
		{"missing mapper", func(c *Config) { c.USB.MapperName = "" }},
		{"missing mount point", func(c *Config) { c.USB.MountPoint = "" }},
		{"bad mapper", func(c *Config) { c.USB.MapperName = "key store" }},
		{"unsupported filesystem", func(c *Config) { c.USB.Filesystem = "ntfs" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.ValidateStore(), ksmerrors.ErrConfiguration)
		})
	}
}

func TestValidateKeys(t *testing.T) {
	cfg := Config{USB: USBConfig{MountPoint: "/mnt/keys", KeyfileSize: 0}}
	assert.ErrorIs(t, cfg.ValidateKeys(), ksmerrors.ErrConfiguration)

	cfg.USB.KeyfileSize = 512
	assert.NoError(t, cfg.ValidateKeys())

	cfg.USB.MountPoint = ""
	assert.ErrorIs(t, cfg.ValidateKeys(), ksmerrors.ErrConfiguration)
}

func TestKeysRootAbsolute(t *testing.T) {
	cfg := Config{USB: USBConfig{MountPoint: "/mnt/keys", KeysDir: "/srv/keys"}}
	assert.Equal(t, "/srv/keys", cfg.KeysRoot())
}
