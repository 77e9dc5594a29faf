package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"1049kB", 1049},
		{"500KiB", 500},
		{"500k", 500},
		{"120M", 122880},
		{"120MiB", 122880},
		{"500MB", 512000},
		{"1GB", 1048576},
		{"2G", 2097152},
		{"2gib", 2097152},
		{"1.5M", 1536},
		{" 30mb ", 30720},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestParseSizeInvalid(t *testing.T) {
	for _, input := range []string{"", "abc", "10", "10T", "-5M", "M", "5 M B", "1,5G"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseSize(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ksmerrors.ErrValidation)
			assert.NotEmpty(t, ksmerrors.Hint(err))
		})
	}
}

func TestParseSizeUnitsAgree(t *testing.T) {
	forms := []string{"2G", "2GiB", "2GB", "2048M", "2048MiB", "2097152k"}
	want, err := ParseSize(forms[0])
	require.NoError(t, err)

	for _, f := range forms[1:] {
		got, err := ParseSize(f)
		require.NoError(t, err)
		assert.Equal(t, want, got, f)
	}
}

func TestParseFreeSpace(t *testing.T) {
	output := "Model: SanDisk Cruzer (scsi)\n" +
		"Disk /dev/sdb: 1049MB\n" +
		"Number  Start   End     Size    File system  Name  Flags\n" +
		"        1049kB  2097kB  1049kB  Free Space\n" +
		" 1      2097kB  3146kB  1049kB  ext4\n" +
		"        3146kB  1049MB  1046MB  Free Space\n"

	regions := ParseFreeSpace(output)
	assert.Equal(t, []FreeRegion{
		{Start: "1049kB", End: "2097kB"},
		{Start: "3146kB", End: "1049MB"},
	}, regions)
}

func TestParseFreeSpaceNone(t *testing.T) {
	output := " 1      2097kB  3146kB  1049kB  ext4\n"
	assert.Empty(t, ParseFreeSpace(output))
}

func TestParseKeySlots(t *testing.T) {
	t.Run("luks2", func(t *testing.T) {
		dump := `LUKS header information
Version:        2
Keyslots:
  0: luks2
	Key:        512 bits
	Priority:   normal
  2: luks2
	Key:        512 bits
Tokens:
Digests:
  0: pbkdf2
`
		assert.Equal(t, []int{0, 2}, ParseKeySlots(dump))
	})

	t.Run("luks1", func(t *testing.T) {
		dump := `LUKS header information for /dev/sdc1
Version:        1
Key Slot 0: ENABLED
	Iterations:	1000
Key Slot 1: DISABLED
Key Slot 3: ENABLED
`
		assert.Equal(t, []int{0, 3}, ParseKeySlots(dump))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, ParseKeySlots(""))
	})
}

func TestParseDf(t *testing.T) {
	output := "Filesystem            1B-blocks     Used  Available Use% Mounted on\n" +
		"/dev/mapper/keystore  1023303680  4096000 949051392   1% /mnt/keys\n"

	size, used, err := ParseDf(output)
	require.NoError(t, err)
	assert.Equal(t, uint64(1023303680), size)
	assert.Equal(t, uint64(4096000), used)

	_, _, err = ParseDf("Filesystem 1B-blocks Used\n")
	assert.Error(t, err)
}

func TestParseDmsetupTable(t *testing.T) {
	dev, err := ParseDmsetupTable("0 2093056 crypt aes-xts-plain64 :64:logon:cryptsetup:abc 0 8:19 32768")
	require.NoError(t, err)
	assert.Equal(t, "8:19", dev)

	_, err = ParseDmsetupTable("0 2093056 linear")
	assert.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "4.0 KB", FormatSize(4096))
	assert.Equal(t, "1.5 MB", FormatSize(1536*1024))
}
