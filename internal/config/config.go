package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store           StoreConfig     `yaml:"store" mapstructure:"store"`
	EmissionFactors EmissionFactors `yaml:"emission_factors" mapstructure:"emission_factors"`
	Scoring         ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Cache           CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Anthropic       AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Narrative       NarrativeConfig `yaml:"narrative" mapstructure:"narrative"`
	Retry           RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Server          ServerConfig    `yaml:"server" mapstructure:"server"`
	Log             LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend used for the result cache and
// run history. Driver "memory" keeps everything in process.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// EmissionFactors converts activity quantities into kg CO2e. These are domain
// parameters, not fitted values.
type EmissionFactors struct {
	Nitrogen    float64 `yaml:"nitrogen" mapstructure:"nitrogen"`       // per kg N
	Phosphate   float64 `yaml:"phosphate" mapstructure:"phosphate"`     // per kg P2O5
	Potash      float64 `yaml:"potash" mapstructure:"potash"`           // per kg K2O
	Diesel      float64 `yaml:"diesel" mapstructure:"diesel"`           // per litre
	Electricity float64 `yaml:"electricity" mapstructure:"electricity"` // per kWh
}

// ScoringConfig selects the scoring policy and the analysis unit.
type ScoringConfig struct {
	Policy        string   `yaml:"policy" mapstructure:"policy"`
	PolicyFile    string   `yaml:"policy_file" mapstructure:"policy_file"`
	GroupBy       []string `yaml:"group_by" mapstructure:"group_by"`
	ZeroAsMissing []string `yaml:"zero_as_missing" mapstructure:"zero_as_missing"`
}

// CacheConfig configures the memoizing result cache.
type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// AnthropicConfig holds Anthropic API settings for the narrative advisor.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// NarrativeConfig toggles the AI narrative collaborator.
type NarrativeConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RetryConfig configures retries for external calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("AGRIESG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "agri-esg.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("emission_factors.nitrogen", 5.5)
	v.SetDefault("emission_factors.phosphate", 0.0)
	v.SetDefault("emission_factors.potash", 0.0)
	v.SetDefault("emission_factors.diesel", 2.7)
	v.SetDefault("emission_factors.electricity", 0.5)
	v.SetDefault("scoring.policy", "dashboard")
	v.SetDefault("scoring.group_by", []string{"farm_id"})
	v.SetDefault("scoring.zero_as_missing", []string{"area_ha", "yield_tonnes", "workers_total"})
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 600)
	v.SetDefault("anthropic.temperature", 0.7)
	v.SetDefault("anthropic.requests_per_minute", 30)
	v.SetDefault("narrative.timeout_secs", 20)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.cors_origins", []string{"*"})

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

// Validate checks the settings a command needs before it runs.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver))
	}

	f := c.EmissionFactors
	if f.Nitrogen < 0 || f.Phosphate < 0 || f.Potash < 0 || f.Diesel < 0 || f.Electricity < 0 {
		errs = append(errs, "emission_factors values must be >= 0")
	}
	if len(c.Scoring.GroupBy) == 0 {
		errs = append(errs, "scoring.group_by must name at least one column")
	}
	if c.Cache.TTLMinutes < 0 {
		errs = append(errs, "cache.ttl_minutes must be >= 0")
	}
	if c.Narrative.Enabled && c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required when narrative.enabled is set")
	}

	switch mode {
	case "score":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxUploadMB <= 0 {
			errs = append(errs, "server.max_upload_mb must be > 0")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
