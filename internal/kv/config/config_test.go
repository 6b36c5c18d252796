package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:4000", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.HealthAddr)
	assert.Equal(t, runtime.NumCPU(), cfg.Server.Workers)
	assert.Equal(t, EngineBitcask, cfg.Store.Engine)
	assert.Equal(t, "./data", cfg.Store.DataDir)
	assert.True(t, cfg.Store.FSync)
}

func TestLoad_NoPathFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
	assert.Equal(t, EngineBitcask, cfg.Store.Engine)
}

func TestLoad_MissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: "0.0.0.0:5000"
  health_addr: "127.0.0.1:8080"
  workers: 2
store:
  engine: "bolt"
  data_dir: "/tmp/kvdata"
  fsync: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Server.Addr)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.HealthAddr)
	assert.Equal(t, 2, cfg.Server.Workers)
	assert.Equal(t, EngineBolt, cfg.Store.Engine)
	assert.Equal(t, "/tmp/kvdata", cfg.Store.DataDir)
	assert.False(t, cfg.Store.FSync)
}
