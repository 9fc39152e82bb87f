package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8799", cfg.Server.Addr())
	require.Equal(t, "./data", cfg.Store.DataDir)
	require.Equal(t, "P.1", cfg.Collector.DefaultStation)
	require.Contains(t, cfg.Collector.Stations, "P.1")
	require.Equal(t, time.Hour, cfg.Collector.EffectiveInterval())
	require.Equal(t, 7, cfg.Resolver.LookbackDays)
	require.Equal(t, "02:00", cfg.Retention.SweepAt)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waterlevel.yaml")
	doc := `
server:
  port: 9100
collector:
  interval: 30m
  stations:
    - P.67
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 30*time.Minute, cfg.Collector.EffectiveInterval())
	require.Equal(t, []string{"P.67"}, cfg.Collector.Stations)
	// Untouched keys keep their defaults.
	require.Equal(t, "./data", cfg.Store.DataDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("WLM_SERVER__PORT", "9200")
	t.Setenv("WLM_STORE__DATA_DIR", "/var/lib/waterlevel")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9200, cfg.Server.Port)
	require.Equal(t, "/var/lib/waterlevel", cfg.Store.DataDir)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEffectiveIntervalFallsBackOnGarbage(t *testing.T) {
	c := CollectorConfig{Interval: "not-a-duration"}
	require.Equal(t, time.Hour, c.EffectiveInterval())
}
