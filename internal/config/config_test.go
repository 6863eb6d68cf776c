package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "soundcheck.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://www.googleapis.com/youtube/v3", cfg.YouTube.BaseURL)
	assert.Equal(t, "https://api.spotify.com/v1", cfg.Spotify.BaseURL)
	assert.Equal(t, 8000, cfg.Quota.SearchBudget)
	assert.Equal(t, 2000, cfg.Quota.MetadataBudget)
	assert.Equal(t, 0, cfg.Quota.CatalogBudget)
	assert.Equal(t, 3, cfg.Quota.RetryAttempts)
	assert.Equal(t, 500, cfg.Quota.RetryInitialBackoffMs)
	assert.Equal(t, 30_000, cfg.Quota.RetryMaxBackoffMs)
	assert.InDelta(t, 2.0, cfg.Quota.RetryMultiplier, 0.001)
	assert.InDelta(t, 0.25, cfg.Quota.RetryJitter, 0.001)
	assert.Equal(t, 60, cfg.Propose.PromotionFloor)
	assert.Equal(t, 5, cfg.Propose.MaxCandidates)
	assert.Equal(t, 7, cfg.Propose.CooldownDays)
	assert.Equal(t, 2_000_000, cfg.Verify.SubscriberThreshold)
	assert.Equal(t, 15, cfg.Verify.MaxAgeYears)
	assert.False(t, cfg.Verify.RejectOnWeakCatalog)
	assert.Equal(t, 4, cfg.Verify.Workers)
	assert.Equal(t, 20, cfg.Verify.ViewCaps.LowPopMax)
	assert.Equal(t, 50, cfg.Verify.ViewCaps.MidPopMax)
	assert.Equal(t, 75, cfg.Verify.ViewCaps.HighPopMax)
	assert.Equal(t, int64(2_000_000), cfg.Verify.ViewCaps.LowCap)
	assert.Equal(t, int64(5_000_000), cfg.Verify.ViewCaps.DefaultCap)
	assert.Equal(t, int64(20_000_000), cfg.Verify.ViewCaps.HighCap)
	assert.Equal(t, 30, cfg.Enrich.CacheTTLDays)
	assert.InDelta(t, 3.0, cfg.Report.AuditRPS, 0.001)
	assert.Equal(t, "trusted_channels.yaml", cfg.Trust.RegistryPath)
	assert.Equal(t, "data", cfg.Shows.DataDir)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/soundcheck
log:
  level: debug
  format: console
propose:
  promotion_floor: 70
verify:
  workers: 8
  venue_placeholders:
    "Cat's Cradle": cradlevenue.png
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 70, cfg.Propose.PromotionFloor)
	assert.Equal(t, 8, cfg.Verify.Workers)
	assert.Equal(t, "cradlevenue.png", cfg.Verify.VenuePlaceholders["Cat's Cradle"])
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Propose.MaxCandidates)
	assert.Equal(t, 2_000_000, cfg.Verify.SubscriberThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SOUNDCHECK_STORE_DRIVER", "postgres")
	t.Setenv("SOUNDCHECK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SOUNDCHECK_PROPOSE_PROMOTION_FLOOR", "75")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Propose.PromotionFloor)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Store.DatabaseURL = "soundcheck.db"
		return cfg
	}

	t.Run("propose needs youtube key", func(t *testing.T) {
		cfg := base()
		err := cfg.Validate("propose")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "youtube.key")

		cfg.YouTube.Key = "yt-key"
		assert.NoError(t, cfg.Validate("propose"))
	})

	t.Run("enrich needs catalog credentials", func(t *testing.T) {
		cfg := base()
		cfg.Spotify.ClientID = "id"
		err := cfg.Validate("enrich")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "spotify.client_secret")

		cfg.Spotify.ClientSecret = "secret"
		assert.NoError(t, cfg.Validate("enrich"))
	})

	t.Run("nightly needs everything", func(t *testing.T) {
		cfg := base()
		err := cfg.Validate("nightly")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "youtube.key")
		assert.Contains(t, err.Error(), "spotify.client_id")
	})

	t.Run("report needs only the store", func(t *testing.T) {
		cfg := &Config{}
		err := cfg.Validate("report")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store.database_url")

		cfg.Store.DatabaseURL = "soundcheck.db"
		assert.NoError(t, cfg.Validate("report"))
	})
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
