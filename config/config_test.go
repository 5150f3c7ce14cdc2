package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 60, cfg.Sim.TickRate)
	assert.Equal(t, 30*time.Second, cfg.Sim.SaveInterval)
	assert.Equal(t, 10*time.Minute, cfg.Sim.AFKTimeout)
	assert.Equal(t, 10*time.Second, cfg.Sim.RespawnDelay)
	assert.Equal(t, 20000.0, cfg.World.Width)
	assert.Equal(t, 600.0, cfg.World.SafetyRadius)
	assert.Equal(t, 64, cfg.Net.SendBuffer)
	assert.Equal(t, time.Second/60, cfg.TickInterval())
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacearena.json")
	body := `{
		"server": {"addr": ":9000", "trustProxy": true},
		"sim": {"tickRate": 30, "afkTimeout": "2m"},
		"db": {"driver": "postgres", "dsn": "host=db user=arena"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.True(t, cfg.Server.TrustProxy)
	assert.Equal(t, 30, cfg.Sim.TickRate)
	assert.Equal(t, 2*time.Minute, cfg.Sim.AFKTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sim.SaveInterval)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "host=db user=arena", cfg.DB.DSN)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": `), 0644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("SPACEARENA_SERVER_ADDR", ":7777")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sim": {"tickRate": 0}}`), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "tickRate")
}
