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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Completion CompletionConfig `yaml:"completion" mapstructure:"completion"`
	XAPI       XAPIConfig       `yaml:"xapi" mapstructure:"xapi"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CompletionConfig configures the LLM completion backend.
type CompletionConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`
	AnthropicKey   string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	GrokKey        string `yaml:"grok_key" mapstructure:"grok_key"`
	GrokModel      string `yaml:"grok_model" mapstructure:"grok_model"`
	GrokBaseURL    string `yaml:"grok_base_url" mapstructure:"grok_base_url"`
}

// XAPIConfig configures the X API client.
type XAPIConfig struct {
	BearerToken    string  `yaml:"bearer_token" mapstructure:"bearer_token"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// AnalysisConfig configures the analysis run behavior.
type AnalysisConfig struct {
	PeerCount         int     `yaml:"peer_count" mapstructure:"peer_count"`
	ProfileTTLHours   int     `yaml:"profile_ttl_hours" mapstructure:"profile_ttl_hours"`
	PeerTTLHours      int     `yaml:"peer_ttl_hours" mapstructure:"peer_ttl_hours"`
	MinFollowerRatio  float64 `yaml:"min_follower_ratio" mapstructure:"min_follower_ratio"`
	MaxFollowerRatio  float64 `yaml:"max_follower_ratio" mapstructure:"max_follower_ratio"`
	MinRecentPosts    int     `yaml:"min_recent_posts" mapstructure:"min_recent_posts"`
	ExclusionLookback int     `yaml:"exclusion_lookback" mapstructure:"exclusion_lookback"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Completion map[string]ModelPricing `yaml:"completion" mapstructure:"completion"`
	XAPI       XAPIPricing             `yaml:"xapi" mapstructure:"xapi"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// XAPIPricing holds per-request X API pricing.
type XAPIPricing struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentAccounts int `yaml:"max_concurrent_accounts" mapstructure:"max_concurrent_accounts"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("LEVELX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secret-bearing keys get empty defaults so AutomaticEnv can
	// populate them without a config file entry.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "growth.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("completion.anthropic_key", "")
	v.SetDefault("completion.grok_key", "")
	v.SetDefault("xapi.bearer_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_accounts", 3)
	v.SetDefault("completion.provider", "anthropic")
	v.SetDefault("completion.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("completion.grok_model", "grok-3-mini")
	v.SetDefault("completion.grok_base_url", "https://api.x.ai/v1")
	v.SetDefault("xapi.base_url", "https://api.x.com/2")
	v.SetDefault("xapi.requests_per_sec", 1.0)
	v.SetDefault("analysis.peer_count", 5)
	v.SetDefault("analysis.profile_ttl_hours", 6)
	v.SetDefault("analysis.peer_ttl_hours", 24)
	v.SetDefault("analysis.min_follower_ratio", 0.8)
	v.SetDefault("analysis.max_follower_ratio", 3.0)
	v.SetDefault("analysis.min_recent_posts", 5)
	v.SetDefault("analysis.exclusion_lookback", 500)
	v.SetDefault("pricing.completion", map[string]ModelPricing{
		"claude-haiku-4-5-20251001": {Input: 1.00, Output: 5.00},
		"grok-3-mini":               {Input: 0.30, Output: 0.50},
	})
	v.SetDefault("pricing.xapi.per_request", 0.005)

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
