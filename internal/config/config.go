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
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RenderConfig configures the page-rendering service client.
type RenderConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// SearchConfig configures the portal search controller.
type SearchConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// PortalBaseURL resolves relative detail links from result rows.
	PortalBaseURL string `yaml:"portal_base_url" mapstructure:"portal_base_url"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	// Randomized delay bounds between consecutive page/detail fetches.
	DelayMinMS int `yaml:"delay_min_ms" mapstructure:"delay_min_ms"`
	DelayMaxMS int `yaml:"delay_max_ms" mapstructure:"delay_max_ms"`
}

// ExtractConfig configures the contact extraction heuristics.
type ExtractConfig struct {
	// LookbackWindow is the number of runes scanned backwards from a
	// phone/email for a role anchor before falling back to "contact".
	LookbackWindow int `yaml:"lookback_window" mapstructure:"lookback_window"`
	MaxContentLen  int `yaml:"max_content_len" mapstructure:"max_content_len"`
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
	v.SetEnvPrefix("BIDCARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/bidcard.db")
	v.SetDefault("render.base_url", "http://localhost:9222")
	v.SetDefault("render.timeout_secs", 60)
	v.SetDefault("render.max_retries", 2)
	v.SetDefault("search.base_url", "https://search.ccgp.gov.cn/bxsearch")
	v.SetDefault("search.portal_base_url", "https://www.ccgp.gov.cn/")
	v.SetDefault("search.max_pages", 5)
	v.SetDefault("search.delay_min_ms", 1000)
	v.SetDefault("search.delay_max_ms", 3000)
	v.SetDefault("extract.lookback_window", 120)
	v.SetDefault("extract.max_content_len", 50000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
