package driverconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moduart.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial_device: /dev/ttyS1\nbaud_rate: 9600\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", cfg.SerialDevice)
	assert.Equal(t, 9600, cfg.BaudRate)
	assert.Equal(t, 65, cfg.SatelliteTimeoutSec, "unspecified fields keep their default")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/moduart.yaml")
	assert.Error(t, err)
}

func TestBindFlagsOverridesDefault(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	refs := cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--baud-rate=115200"}))
	refs.Apply(cfg)
	assert.Equal(t, 115200, cfg.BaudRate)
}
