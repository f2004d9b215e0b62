package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data/transactions.csv", cfg.Data.Path)
	assert.Equal(t, 100, cfg.Data.MinRows)
	assert.Equal(t, []string{"csv", "xlsx"}, cfg.Output.Formats)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Segmentation.KMin)
	assert.Equal(t, 10, cfg.Segmentation.KMax)
	assert.Equal(t, 200*time.Millisecond, cfg.Export.Retry.InitialDelay)
	assert.True(t, cfg.Store.Enabled)

	p := cfg.ToRunParams()
	assert.Nil(t, p.ReferenceDate)
	assert.Equal(t, 0.30, p.ProfitMargin)
	assert.Equal(t, "M", p.ForecastFreq)
	assert.Equal(t, 3, p.Retry.MaxAttempts)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data:
  path: /srv/retail.xlsx
rfm:
  reference_date: "2024-03-01"
segmentation:
  k_min: 3
  k_max: 6
forecast:
  frequency: W
`), 0644))
	t.Setenv("CUSTINTEL_FORECAST_PERIODS", "9")
	t.Setenv("CUSTINTEL_LOG_JSON", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/retail.xlsx", cfg.Data.Path)
	assert.Equal(t, "W", cfg.Forecast.Frequency)
	assert.Equal(t, 9, cfg.Forecast.Periods)
	assert.True(t, cfg.Log.JSON)

	p := cfg.ToRunParams()
	require.NotNil(t, p.ReferenceDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *p.ReferenceDate)
	assert.Equal(t, 3, p.KMin)
	assert.Equal(t, 6, p.KMax)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"segmentation": {"k_min": 5, "k_max": 3},
		"forecast": {"alpha": 1.5, "frequency": "Q"}
	}`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
	assert.Contains(t, err.Error(), "KMax")
	assert.Contains(t, err.Error(), "Alpha")
	assert.Contains(t, err.Error(), "Frequency")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
