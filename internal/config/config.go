package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Config represents runtime configuration loaded from the JSON settings file.
type Config struct {
	API      APIConfig
	Accounts AccountsConfig
	Engine   EngineConfig
	Store    StoreConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// APIConfig holds the remote service endpoints and discovery settings.
type APIConfig struct {
	// BaseURL is the statically configured API origin, used directly when
	// advanced anti-detection is off and as a fallback when discovery fails.
	BaseURL string
	// ManifestURL points at the remote endpoint manifest consulted when
	// AdvancedAntiDetection is on.
	ManifestURL string
	// AdvancedAntiDetection enables endpoint discovery via the manifest.
	AdvancedAntiDetection bool
	// RefCode is the referral code submitted for accounts with no referrer.
	RefCode string
}

// AccountsConfig locates the flat input files.
type AccountsConfig struct {
	CredentialsFile string
	ProxiesFile     string
	UseProxy        bool
}

// EngineConfig tunes the worker pool and the session client's resilience
// policy.
type EngineConfig struct {
	MaxThreads        int
	MaxThreadsNoProxy int
	Retries           int
	RequestDelay      time.Duration
	RateLimitDelay    time.Duration
	StartDelayMin     time.Duration
	StartDelayMax     time.Duration
	AccountTimeout    time.Duration
	Cooldown          time.Duration
	// ExitOnAuthFailure aborts the whole run when any account's credential
	// cannot be refreshed. Off by default: only that account is dropped.
	ExitOnAuthFailure bool
}

// StoreConfig selects the persisted table backend. When DatabaseDSN is set the
// identity and token tables live in Postgres; otherwise they are JSON files.
type StoreConfig struct {
	IdentityFile string
	TokenFile    string
	DatabaseDSN  string
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Addr string
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

const (
	defaultManifestURL = "https://raw.githubusercontent.com/Hunga9k50doker/APIs-checking/refs/heads/main/endpoints.json"

	defaultCredentialsFile = "tokens.txt"
	defaultProxiesFile     = "proxy.txt"
	defaultIdentityFile    = "session_identities.json"
	defaultTokenFile       = "session_tokens.json"

	defaultMaxThreads        = 10
	defaultMaxThreadsNoProxy = 10
	defaultRetries           = 2
	defaultRequestDelay      = 3 * time.Second
	defaultRateLimitDelay    = 60 * time.Second
	defaultStartDelayMin     = 1 * time.Second
	defaultStartDelayMax     = 15 * time.Second
	defaultAccountTimeout    = 24 * time.Hour
	defaultCooldown          = 8 * time.Hour

	defaultLogFormat = "text"
)

// Load reads the JSON settings file at path, applying defaults for values that
// are not provided and rejecting invalid ones.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("api.manifest_url", defaultManifestURL)
	v.SetDefault("api.advanced_anti_detection", false)
	v.SetDefault("accounts.credentials_file", defaultCredentialsFile)
	v.SetDefault("accounts.proxies_file", defaultProxiesFile)
	v.SetDefault("accounts.use_proxy", false)
	v.SetDefault("engine.max_threads", defaultMaxThreads)
	v.SetDefault("engine.max_threads_no_proxy", defaultMaxThreadsNoProxy)
	v.SetDefault("engine.retries", defaultRetries)
	v.SetDefault("engine.request_delay_seconds", int(defaultRequestDelay/time.Second))
	v.SetDefault("engine.rate_limit_delay_seconds", int(defaultRateLimitDelay/time.Second))
	v.SetDefault("engine.start_delay_min_seconds", int(defaultStartDelayMin/time.Second))
	v.SetDefault("engine.start_delay_max_seconds", int(defaultStartDelayMax/time.Second))
	v.SetDefault("engine.account_timeout_hours", int(defaultAccountTimeout/time.Hour))
	v.SetDefault("engine.time_sleep_minutes", int(defaultCooldown/time.Minute))
	v.SetDefault("engine.exit_on_auth_failure", false)
	v.SetDefault("store.identity_file", defaultIdentityFile)
	v.SetDefault("store.token_file", defaultTokenFile)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", defaultLogFormat)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	level, err := parseLogLevel(v.GetString("log.level"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid log.level: %w", err)
	}

	format := v.GetString("log.format")
	switch format {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("invalid log.format: must be 'json' or 'text'")
	}

	cfg := Config{
		API: APIConfig{
			BaseURL:               v.GetString("api.base_url"),
			ManifestURL:           v.GetString("api.manifest_url"),
			AdvancedAntiDetection: v.GetBool("api.advanced_anti_detection"),
			RefCode:               v.GetString("api.ref_code"),
		},
		Accounts: AccountsConfig{
			CredentialsFile: v.GetString("accounts.credentials_file"),
			ProxiesFile:     v.GetString("accounts.proxies_file"),
			UseProxy:        v.GetBool("accounts.use_proxy"),
		},
		Engine: EngineConfig{
			MaxThreads:        v.GetInt("engine.max_threads"),
			MaxThreadsNoProxy: v.GetInt("engine.max_threads_no_proxy"),
			Retries:           v.GetInt("engine.retries"),
			RequestDelay:      secondsDuration(v.GetInt("engine.request_delay_seconds")),
			RateLimitDelay:    secondsDuration(v.GetInt("engine.rate_limit_delay_seconds")),
			StartDelayMin:     secondsDuration(v.GetInt("engine.start_delay_min_seconds")),
			StartDelayMax:     secondsDuration(v.GetInt("engine.start_delay_max_seconds")),
			AccountTimeout:    time.Duration(v.GetInt("engine.account_timeout_hours")) * time.Hour,
			Cooldown:          time.Duration(v.GetInt("engine.time_sleep_minutes")) * time.Minute,
			ExitOnAuthFailure: v.GetBool("engine.exit_on_auth_failure"),
		},
		Store: StoreConfig{
			IdentityFile: v.GetString("store.identity_file"),
			TokenFile:    v.GetString("store.token_file"),
			DatabaseDSN:  v.GetString("store.database_dsn"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Logging: LoggingConfig{
			Level:  level,
			Format: format,
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Engine.MaxThreads < 1 {
		return fmt.Errorf("invalid engine.max_threads: must be at least 1")
	}
	if c.Engine.MaxThreadsNoProxy < 1 {
		return fmt.Errorf("invalid engine.max_threads_no_proxy: must be at least 1")
	}
	if c.Engine.Retries < 0 {
		return fmt.Errorf("invalid engine.retries: must be non-negative")
	}
	if c.Engine.StartDelayMax < c.Engine.StartDelayMin {
		return fmt.Errorf("invalid engine.start_delay: max is below min")
	}
	if !c.API.AdvancedAntiDetection && c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required when advanced_anti_detection is off")
	}
	return nil
}

// Concurrency returns the effective batch size for the configured proxy mode.
func (c Config) Concurrency() int {
	if c.Accounts.UseProxy {
		return c.Engine.MaxThreads
	}
	return c.Engine.MaxThreadsNoProxy
}

func secondsDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
