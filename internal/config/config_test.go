package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsZeroValue(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &RunConfig{}, cfg)
}

func TestLoad_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	data := `
input: factory.zip
output: patched.zip
compatSepolicy: true
trustedKey: ssh-ed25519 AAAAtest
modules:
  - name: bcr
    zip: bcr.zip
    sig: bcr.zip.sig
  - name: oemunlockonboot
    zip: oem.zip
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "otapatch.yml"), []byte(data), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "factory.zip", cfg.Input)
	assert.Equal(t, "patched.zip", cfg.Output)
	assert.True(t, cfg.CompatSepolicy)
	require.Len(t, cfg.Modules, 2)
	assert.Equal(t, ModuleConfig{Name: "bcr", Zip: "bcr.zip", Sig: "bcr.zip.sig"}, cfg.Modules[0])
	assert.Empty(t, cfg.Modules[1].Sig)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "otapatch.yaml"), []byte(":\n\t-"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
