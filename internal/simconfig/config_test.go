package simconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cell, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cell)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cell, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cell)
}

func TestLoadParsesYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cell.yaml")
	contents := `
nof_prb: 25
si_window_ms: 20
prach_rar_window: 5
max_harq_msg3_tx: 3
sibs:
  - len: 18
    period_rf: 8
  - len: 40
    period_rf: 16
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cell, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cell.NofPRB)
	assert.Equal(t, 20, cell.SiWindowMs)
	assert.Equal(t, 5, cell.PrachRarWindow)
	assert.Equal(t, 3, cell.MaxHarqMsg3Tx)
	require.Len(t, cell.Sibs, 2)
	assert.Equal(t, 40, cell.Sibs[1].Len)
}

func TestLoadMalformedYamlErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nof_prb: [this is not an int"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
