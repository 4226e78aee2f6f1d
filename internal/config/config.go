package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Pacing  PacingConfig  `yaml:"pacing" mapstructure:"pacing"`
	Run     RunConfig     `yaml:"run" mapstructure:"run"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Jina    JinaConfig    `yaml:"jina" mapstructure:"jina"`
	Brave   BraveConfig   `yaml:"brave" mapstructure:"brave"`
}

// SearchConfig configures site resolution.
type SearchConfig struct {
	// Providers is the fallback order. Known names: duckduckgo, jina, brave, headless.
	Providers        []string `yaml:"providers" mapstructure:"providers"`
	MaxResults       int      `yaml:"max_results" mapstructure:"max_results"`
	QuerySuffix      string   `yaml:"query_suffix" mapstructure:"query_suffix"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Denylist         []string `yaml:"denylist" mapstructure:"denylist"`
	DenylistFile     string   `yaml:"denylist_file" mapstructure:"denylist_file"`
	DuckDuckGoURL    string   `yaml:"duckduckgo_url" mapstructure:"duckduckgo_url"`
	BreakerFailures  int      `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	Headless         bool     `yaml:"headless" mapstructure:"headless"`
}

// FetchConfig configures page downloads.
type FetchConfig struct {
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int      `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxPages         int      `yaml:"max_pages" mapstructure:"max_pages"`
	ContactPaths     []string `yaml:"contact_paths" mapstructure:"contact_paths"`
	ExcludePaths     []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	UserAgents       []string `yaml:"user_agents" mapstructure:"user_agents"`
	RespectRobots    bool     `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// ExtractConfig configures contact extraction.
type ExtractConfig struct {
	MinPhoneDigits int      `yaml:"min_phone_digits" mapstructure:"min_phone_digits"`
	MaxPhoneDigits int      `yaml:"max_phone_digits" mapstructure:"max_phone_digits"`
	VerifyMX       bool     `yaml:"verify_mx" mapstructure:"verify_mx"`
	DNSServers     []string `yaml:"dns_servers" mapstructure:"dns_servers"`
}

// PacingConfig configures request pacing and anti-block cooldowns.
type PacingConfig struct {
	MinDelayMs          int     `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs          int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	BatchSize           int     `yaml:"batch_size" mapstructure:"batch_size"`
	BatchCooldownMinSec int     `yaml:"batch_cooldown_min_secs" mapstructure:"batch_cooldown_min_secs"`
	BatchCooldownMaxSec int     `yaml:"batch_cooldown_max_secs" mapstructure:"batch_cooldown_max_secs"`
	BlockThreshold      int     `yaml:"block_threshold" mapstructure:"block_threshold"`
	BlockCooldownSecs   int     `yaml:"block_cooldown_secs" mapstructure:"block_cooldown_secs"`
	RequestsPerSecond   float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// RunConfig configures batch execution.
type RunConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	Output      string `yaml:"output" mapstructure:"output"`
	Format      string `yaml:"format" mapstructure:"format"`
	ListSep     string `yaml:"list_separator" mapstructure:"list_separator"`
}

// StoreConfig configures the checkpoint database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	// RetainMinutes keeps finished, persisted runs in memory this long.
	RetainMinutes int `yaml:"retain_minutes" mapstructure:"retain_minutes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// BraveConfig holds Brave Search API settings.
type BraveConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CONTACTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("search.providers", []string{"duckduckgo", "jina", "brave"})
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.query_suffix", "official website")
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.denylist", []string{})
	v.SetDefault("search.denylist_file", "")
	v.SetDefault("search.duckduckgo_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.breaker_failures", 5)
	v.SetDefault("search.breaker_reset_secs", 120)
	v.SetDefault("search.headless", true)
	v.SetDefault("fetch.timeout_secs", 12)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.initial_backoff_ms", 1000)
	v.SetDefault("fetch.max_body_bytes", 2<<20)
	v.SetDefault("fetch.max_pages", 6)
	v.SetDefault("fetch.contact_paths", []string{"/contact", "/contact-us", "/about", "/about-us", "/support"})
	v.SetDefault("fetch.exclude_paths", []string{"/blog/*", "/news/*", "/press/*", "/careers/*", "/*.pdf"})
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("extract.min_phone_digits", 8)
	v.SetDefault("extract.max_phone_digits", 15)
	v.SetDefault("extract.verify_mx", false)
	v.SetDefault("extract.dns_servers", []string{"8.8.8.8:53", "1.1.1.1:53"})
	v.SetDefault("pacing.min_delay_ms", 300)
	v.SetDefault("pacing.max_delay_ms", 800)
	v.SetDefault("pacing.batch_size", 45)
	v.SetDefault("pacing.batch_cooldown_min_secs", 30)
	v.SetDefault("pacing.batch_cooldown_max_secs", 60)
	v.SetDefault("pacing.block_threshold", 3)
	v.SetDefault("pacing.block_cooldown_secs", 120)
	v.SetDefault("pacing.requests_per_second", 2.0)
	v.SetDefault("run.concurrency", 1)
	v.SetDefault("run.output", "results.xlsx")
	v.SetDefault("run.format", "xlsx")
	v.SetDefault("run.list_separator", ", ")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "contacts.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.retain_minutes", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("brave.key", "")
	v.SetDefault("brave.base_url", "https://api.search.brave.com/res/v1")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Extract.MinPhoneDigits <= 0 || c.Extract.MaxPhoneDigits < c.Extract.MinPhoneDigits {
		return eris.Errorf("config: invalid phone digit bounds [%d, %d]",
			c.Extract.MinPhoneDigits, c.Extract.MaxPhoneDigits)
	}
	if c.Pacing.MaxDelayMs < c.Pacing.MinDelayMs {
		return eris.Errorf("config: pacing.max_delay_ms (%d) < pacing.min_delay_ms (%d)",
			c.Pacing.MaxDelayMs, c.Pacing.MinDelayMs)
	}
	if c.Run.Concurrency < 1 {
		return eris.Errorf("config: run.concurrency must be >= 1, got %d", c.Run.Concurrency)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
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
