package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezbo/shopbot/internal/config"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "storage.db", cfg.Database.Path)
	assert.Equal(t, "BDT", cfg.Shop.Currency)

	assert.InDelta(t, 0.4, cfg.Matcher.Threshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Matcher.StructuralWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Matcher.FeatureWeight, 1e-9)
	assert.Equal(t, 256, cfg.Matcher.CanonicalSize)

	assert.Equal(t, 30, cfg.Memory.Capacity)
	assert.Equal(t, 60, cfg.Orders.RetentionDays)
	assert.Equal(t, int64(32), cfg.Dispatch.MaxConcurrent)
	assert.Equal(t, time.Hour, cfg.Dispatch.DedupTTL)

	assert.True(t, cfg.Scheduler.Tasks["sales_log_retention"].Enabled)
	assert.True(t, cfg.Scheduler.Tasks["memory_purge"].Enabled)
	assert.True(t, cfg.Scheduler.Tasks["sql_maintenance"].Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: debug
  json: false
shop:
  name: Test Shop
  currency: USD
matcher:
  threshold: 0.5
memory:
  capacity: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, "Test Shop", cfg.Shop.Name)
	assert.Equal(t, "USD", cfg.Shop.Currency)
	assert.InDelta(t, 0.5, cfg.Matcher.Threshold, 1e-9)
	assert.Equal(t, 20, cfg.Memory.Capacity)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "bad log level",
			content: "log:\n  level: loud\n",
		},
		{
			name:    "threshold out of range",
			content: "matcher:\n  threshold: 1.5\n",
		},
		{
			name:    "weights do not sum to one",
			content: "matcher:\n  structural_weight: 0.9\n  feature_weight: 0.3\n",
		},
		{
			name:    "zero memory capacity",
			content: "memory:\n  capacity: 0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := config.Load(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}
