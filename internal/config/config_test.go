package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanLisse/mexc-sniper-bot/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "trading:\n  enabled: true\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Trading.Mode)
	assert.Equal(t, 5, cfg.Trading.MaxPositions)
	assert.Equal(t, 75.0, cfg.Trading.MinConfidence)
	assert.Equal(t, 5, cfg.Safety.CircuitThreshold)
	assert.Equal(t, 100, cfg.Safety.AlertBufferSize)
	assert.Equal(t, 500, cfg.Safety.HistorySize)
	assert.Equal(t, 5*time.Second, cfg.ScanInterval())
	assert.Equal(t, 10*time.Second, cfg.MonitorInterval())
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval())
	assert.True(t, cfg.IsPaper())
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("MEXC_API_KEY", "env-key")
	t.Setenv("MEXC_API_SECRET", "env-secret")
	path := writeConfig(t, "exchange:\n  api_key: file-key\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, "env-secret", cfg.Exchange.APISecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad mode", func(c *config.Config) { c.Trading.Mode = "live" }},
		{"zero positions", func(c *config.Config) { c.Trading.MaxPositions = -1 }},
		{"confidence above 100", func(c *config.Config) { c.Trading.MinConfidence = 101 }},
		{"negative size", func(c *config.Config) { c.Trading.PositionSize = -5 }},
		{"stop loss over 100", func(c *config.Config) { c.Trading.StopLossPct = 150 }},
		{"bad duration", func(c *config.Config) { c.Safety.CircuitResetDelay = "soon" }},
		{"bad interval", func(c *config.Config) { c.Intervals.Scan = "every 5s" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{}
			config.SetDefaults(cfg)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DefaultsPass(t *testing.T) {
	cfg := &config.Config{}
	config.SetDefaults(cfg)
	assert.NoError(t, cfg.Validate())
}

func TestPatternAllowed(t *testing.T) {
	cfg := &config.Config{}
	config.SetDefaults(cfg)

	assert.True(t, cfg.PatternAllowed("anything"), "empty allowlist admits all patterns")

	cfg.Trading.AllowedPatterns = []string{"breakout", "listing"}
	assert.True(t, cfg.PatternAllowed("breakout"))
	assert.False(t, cfg.PatternAllowed("mean_reversion"))
}
