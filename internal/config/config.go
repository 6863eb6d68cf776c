package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	YouTube YouTubeConfig `yaml:"youtube" mapstructure:"youtube"`
	Spotify SpotifyConfig `yaml:"spotify" mapstructure:"spotify"`
	Quota   QuotaConfig   `yaml:"quota" mapstructure:"quota"`
	Propose ProposeConfig `yaml:"propose" mapstructure:"propose"`
	Verify  VerifyConfig  `yaml:"verify" mapstructure:"verify"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Trust   TrustConfig   `yaml:"trust" mapstructure:"trust"`
	Shows   ShowsConfig   `yaml:"shows" mapstructure:"shows"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// YouTubeConfig holds video platform API settings.
type YouTubeConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	OembedURL string `yaml:"oembed_url" mapstructure:"oembed_url"`
}

// SpotifyConfig holds catalog API credentials.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url"`
}

// QuotaConfig sets per-pool daily budgets in API units (zero = unlimited)
// and the retry schedule governed calls use on transient failures.
type QuotaConfig struct {
	SearchBudget          int     `yaml:"search_budget" mapstructure:"search_budget"`
	MetadataBudget        int     `yaml:"metadata_budget" mapstructure:"metadata_budget"`
	CatalogBudget         int     `yaml:"catalog_budget" mapstructure:"catalog_budget"`
	RetryAttempts         int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryMultiplier       float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
	RetryJitter           float64 `yaml:"retry_jitter" mapstructure:"retry_jitter"`
}

// ProposeConfig configures the candidate proposer.
type ProposeConfig struct {
	PromotionFloor int `yaml:"promotion_floor" mapstructure:"promotion_floor"`
	MaxCandidates  int `yaml:"max_candidates" mapstructure:"max_candidates"`
	CooldownDays   int `yaml:"cooldown_days" mapstructure:"cooldown_days"`
}

// VerifyConfig configures the trust-engine verifier.
type VerifyConfig struct {
	SubscriberThreshold   int               `yaml:"subscriber_threshold" mapstructure:"subscriber_threshold"`
	MaxAgeYears           int               `yaml:"max_age_years" mapstructure:"max_age_years"`
	RejectOnWeakCatalog   bool              `yaml:"reject_on_weak_catalog_match" mapstructure:"reject_on_weak_catalog_match"`
	Workers               int               `yaml:"workers" mapstructure:"workers"`
	VenuePlaceholders     map[string]string `yaml:"venue_placeholders" mapstructure:"venue_placeholders"`
	ViewCaps              ViewCapConfig     `yaml:"view_caps" mapstructure:"view_caps"`
}

// ViewCapConfig defines the popularity-tiered view-count caps.
type ViewCapConfig struct {
	LowPopMax  int   `yaml:"low_pop_max" mapstructure:"low_pop_max"`
	MidPopMax  int   `yaml:"mid_pop_max" mapstructure:"mid_pop_max"`
	HighPopMax int   `yaml:"high_pop_max" mapstructure:"high_pop_max"`
	LowCap     int64 `yaml:"low_cap" mapstructure:"low_cap"`
	DefaultCap int64 `yaml:"default_cap" mapstructure:"default_cap"`
	HighCap    int64 `yaml:"high_cap" mapstructure:"high_cap"`
}

// EnrichConfig configures catalog identity enrichment.
type EnrichConfig struct {
	CacheTTLDays int `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// ReportConfig configures the report generator.
type ReportConfig struct {
	AuditRPS    float64 `yaml:"audit_rps" mapstructure:"audit_rps"`
	AuditSample int     `yaml:"audit_sample" mapstructure:"audit_sample"`
}

// TrustConfig locates the trusted-source registry.
type TrustConfig struct {
	RegistryPath string `yaml:"registry_path" mapstructure:"registry_path"`
}

// ShowsConfig locates raw show listings.
type ShowsConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SOUNDCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "soundcheck.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("youtube.base_url", "https://www.googleapis.com/youtube/v3")
	v.SetDefault("youtube.oembed_url", "https://www.youtube.com/oembed")
	v.SetDefault("spotify.base_url", "https://api.spotify.com/v1")
	v.SetDefault("spotify.token_url", "https://accounts.spotify.com/api/token")
	v.SetDefault("quota.search_budget", 8000)
	v.SetDefault("quota.metadata_budget", 2000)
	v.SetDefault("quota.catalog_budget", 0)
	v.SetDefault("quota.retry_attempts", 3)
	v.SetDefault("quota.retry_initial_backoff_ms", 500)
	v.SetDefault("quota.retry_max_backoff_ms", 30_000)
	v.SetDefault("quota.retry_multiplier", 2.0)
	v.SetDefault("quota.retry_jitter", 0.25)
	v.SetDefault("propose.promotion_floor", 60)
	v.SetDefault("propose.max_candidates", 5)
	v.SetDefault("propose.cooldown_days", 7)
	v.SetDefault("verify.subscriber_threshold", 2_000_000)
	v.SetDefault("verify.max_age_years", 15)
	v.SetDefault("verify.reject_on_weak_catalog_match", false)
	v.SetDefault("verify.workers", 4)
	v.SetDefault("verify.view_caps.low_pop_max", 20)
	v.SetDefault("verify.view_caps.mid_pop_max", 50)
	v.SetDefault("verify.view_caps.high_pop_max", 75)
	v.SetDefault("verify.view_caps.low_cap", 2_000_000)
	v.SetDefault("verify.view_caps.default_cap", 5_000_000)
	v.SetDefault("verify.view_caps.high_cap", 20_000_000)
	v.SetDefault("enrich.cache_ttl_days", 30)
	v.SetDefault("report.audit_rps", 3.0)
	v.SetDefault("report.audit_sample", 0)
	v.SetDefault("trust.registry_path", "trusted_channels.yaml")
	v.SetDefault("shows.data_dir", "data")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the credentials a phase needs are present. Called
// by commands before any work starts so a missing key fails at startup,
// not mid-batch.
func (c *Config) Validate(phase string) error {
	var missing []string

	switch phase {
	case "propose", "verify":
		if c.YouTube.Key == "" {
			missing = append(missing, "youtube.key")
		}
	case "enrich":
		if c.Spotify.ClientID == "" {
			missing = append(missing, "spotify.client_id")
		}
		if c.Spotify.ClientSecret == "" {
			missing = append(missing, "spotify.client_secret")
		}
	case "nightly":
		if c.YouTube.Key == "" {
			missing = append(missing, "youtube.key")
		}
		if c.Spotify.ClientID == "" {
			missing = append(missing, "spotify.client_id")
		}
		if c.Spotify.ClientSecret == "" {
			missing = append(missing, "spotify.client_secret")
		}
	}

	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings for %s: %s",
			phase, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
