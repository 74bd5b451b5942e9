// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Submit    SubmitConfig    `mapstructure:"submit" yaml:"submit"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. Result persistence is
// disabled when URL is empty.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the shared headless browser process.
type BrowserConfig struct {
	Headless          bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath          string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string   `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth     int64    `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int64    `mapstructure:"viewport_height" yaml:"viewport_height"`
	DisableAnimations bool     `mapstructure:"disable_animations" yaml:"disable_animations"`
	BlockResources    bool     `mapstructure:"block_resources" yaml:"block_resources"`
	IgnoreTLSErrors   bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string `mapstructure:"args" yaml:"args"`
}

// PoolConfig tunes the execution context pool.
type PoolConfig struct {
	MaxContexts    int           `mapstructure:"max_contexts" yaml:"max_contexts"`
	MaxUses        int           `mapstructure:"max_uses" yaml:"max_uses"`
	TTL            time.Duration `mapstructure:"ttl" yaml:"ttl"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	AcquirePoll    time.Duration `mapstructure:"acquire_poll" yaml:"acquire_poll"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	Warm           int           `mapstructure:"warm" yaml:"warm"`
}

// SubmitConfig configures the submission orchestrator and its gates.
type SubmitConfig struct {
	GlobalConcurrency    int           `mapstructure:"global_concurrency" yaml:"global_concurrency"`
	PerDomainConcurrency int           `mapstructure:"per_domain_concurrency" yaml:"per_domain_concurrency"`
	NavTimeout           time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	FindTimeout          time.Duration `mapstructure:"find_timeout" yaml:"find_timeout"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	VerdictTimeout       time.Duration `mapstructure:"verdict_timeout" yaml:"verdict_timeout"`
	Settle               time.Duration `mapstructure:"settle" yaml:"settle"`
	MaxCandidates        int           `mapstructure:"max_candidates" yaml:"max_candidates"`
	DomainLockTTL        time.Duration `mapstructure:"domain_lock_ttl" yaml:"domain_lock_ttl"`
	DomainLockMax        int           `mapstructure:"domain_lock_max" yaml:"domain_lock_max"`
	DomainSweepInterval  time.Duration `mapstructure:"domain_sweep_interval" yaml:"domain_sweep_interval"`
	ScreenshotOnFail     bool          `mapstructure:"screenshot_on_fail" yaml:"screenshot_on_fail"`
	ScreenshotDir        string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ScreenshotQuality    int           `mapstructure:"screenshot_quality" yaml:"screenshot_quality"`
	AltFiller            bool          `mapstructure:"alt_filler" yaml:"alt_filler"`
}

// DiscoveryConfig points at the external contact-page discovery service.
type DiscoveryConfig struct {
	URL             string        `mapstructure:"url" yaml:"url"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TopN            int           `mapstructure:"top_n" yaml:"top_n"`
	FetchLimit      int           `mapstructure:"fetch_limit" yaml:"fetch_limit"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	SitemapURLLimit int           `mapstructure:"sitemap_url_limit" yaml:"sitemap_url_limit"`
	MinScore        int           `mapstructure:"min_score" yaml:"min_score"`
	Retries         int           `mapstructure:"retries" yaml:"retries"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

// EngineConfig configures the batch job engine.
type EngineConfig struct {
	WorkerConcurrency int     `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	QueueSize         int     `mapstructure:"queue_size" yaml:"queue_size"`
	RatePerSecond     float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	MaxBatch int    `mapstructure:"max_batch" yaml:"max_batch"`
}

// DefaultUserAgent matches a current desktop Chrome on Linux.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.viewport_width", 1200)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.disable_animations", true)
	v.SetDefault("browser.block_resources", true)
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- Pool --
	v.SetDefault("pool.max_contexts", 8)
	v.SetDefault("pool.max_uses", 50)
	v.SetDefault("pool.ttl", "5m")
	v.SetDefault("pool.acquire_timeout", "15s")
	v.SetDefault("pool.acquire_poll", "50ms")
	v.SetDefault("pool.sweep_interval", "30s")
	v.SetDefault("pool.warm", 2)

	// -- Submit --
	v.SetDefault("submit.global_concurrency", 4)
	v.SetDefault("submit.per_domain_concurrency", 1)
	v.SetDefault("submit.nav_timeout", "20s")
	v.SetDefault("submit.find_timeout", "6s")
	v.SetDefault("submit.request_timeout", "10m")
	v.SetDefault("submit.verdict_timeout", "12s")
	v.SetDefault("submit.settle", "600ms")
	v.SetDefault("submit.max_candidates", 3)
	v.SetDefault("submit.domain_lock_ttl", "10m")
	v.SetDefault("submit.domain_lock_max", 1000)
	v.SetDefault("submit.domain_sweep_interval", "60s")
	v.SetDefault("submit.screenshot_on_fail", true)
	v.SetDefault("submit.screenshot_dir", "")
	v.SetDefault("submit.screenshot_quality", 80)
	v.SetDefault("submit.alt_filler", false)

	// -- Discovery --
	v.SetDefault("discovery.url", "")
	v.SetDefault("discovery.timeout", "60s")
	v.SetDefault("discovery.top_n", 5)
	v.SetDefault("discovery.fetch_limit", 30)
	v.SetDefault("discovery.concurrency", 6)
	v.SetDefault("discovery.sitemap_url_limit", 50)
	v.SetDefault("discovery.min_score", 50)
	v.SetDefault("discovery.retries", 2)
	v.SetDefault("discovery.rate_per_second", 2.0)

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 4)
	v.SetDefault("engine.queue_size", 100)
	v.SetDefault("engine.rate_per_second", 0.0)

	// -- Server --
	v.SetDefault("server.addr", ":7070")
	v.SetDefault("server.max_batch", 100)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "FORMPILOT_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in file system paths.
func (c *Config) expandPaths() error {
	var err error
	if c.Logger.LogFile, err = homedir.Expand(c.Logger.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	if c.Submit.ScreenshotDir, err = homedir.Expand(c.Submit.ScreenshotDir); err != nil {
		return fmt.Errorf("failed to expand submit.screenshot_dir: %w", err)
	}
	if c.Browser.ExecPath, err = homedir.Expand(c.Browser.ExecPath); err != nil {
		return fmt.Errorf("failed to expand browser.exec_path: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Pool.MaxContexts <= 0 {
		return fmt.Errorf("pool.max_contexts must be a positive integer")
	}
	if c.Pool.MaxUses <= 0 {
		return fmt.Errorf("pool.max_uses must be a positive integer")
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool.acquire_timeout must be a positive duration")
	}
	if c.Submit.GlobalConcurrency <= 0 {
		return fmt.Errorf("submit.global_concurrency must be a positive integer")
	}
	if c.Submit.PerDomainConcurrency <= 0 {
		return fmt.Errorf("submit.per_domain_concurrency must be a positive integer")
	}
	if c.Submit.MaxCandidates <= 0 {
		return fmt.Errorf("submit.max_candidates must be a positive integer")
	}
	if c.Submit.ScreenshotQuality < 1 || c.Submit.ScreenshotQuality > 100 {
		return fmt.Errorf("submit.screenshot_quality must be between 1 and 100")
	}
	if c.Discovery.MinScore < 0 || c.Discovery.MinScore > 100 {
		return fmt.Errorf("discovery.min_score must be between 0 and 100")
	}
	if c.Engine.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	return nil
}
