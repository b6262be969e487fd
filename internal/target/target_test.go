package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTarget(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	d := Default()
	require.NoError(t, d.Validate())
	require.Equal(t, "fathom-vm-v1", d.Name)
	require.Equal(t, 48, d.Registers)
	require.Zero(t, d.DataSectionLimit, "unlimited by default")
}

func TestImmediateWidth(t *testing.T) {
	d := Default()
	require.Equal(t, uint64(1<<18-1), d.MaxImmediate())
	require.True(t, d.FitsImmediate(0))
	require.True(t, d.FitsImmediate(d.MaxImmediate()))
	require.False(t, d.FitsImmediate(d.MaxImmediate()+1))
}

func TestLoadFillsUnsetFromDefault(t *testing.T) {
	path := writeTarget(t, `
name = "testvm"
registers = 16
`)
	tgt, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "testvm", tgt.Name)
	require.Equal(t, 16, tgt.Registers)
	require.Equal(t, 8, tgt.WordSize)
	require.Equal(t, 18, tgt.ImmBits)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeTarget(t, `
name = "testvm"
stack_size = 4096
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stack_size")
}

func TestLoadRejectsInvalidTarget(t *testing.T) {
	path := writeTarget(t, `registers = 4`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "registers")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidateBounds(t *testing.T) {
	bad := Default()
	bad.WordSize = 4
	require.Error(t, bad.Validate())

	bad = Default()
	bad.ImmBits = 33
	require.Error(t, bad.Validate())

	bad = Default()
	bad.ImmBits = 0
	require.Error(t, bad.Validate())
}
