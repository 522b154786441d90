package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Google    GoogleConfig    `mapstructure:"google"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Refresher RefresherConfig `mapstructure:"refresher"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Workers bounds how many chat generations run concurrently.
	Workers int `mapstructure:"workers"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GoogleConfig holds Google Cloud project configuration.
type GoogleConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// SecretsConfig holds Secret Manager configuration. The referenced secret
// holds the service account JSON used for Firestore access.
type SecretsConfig struct {
	SecretID string `mapstructure:"secret_id"`
	Version  string `mapstructure:"version"`
}

// FirestoreConfig holds the document paths the bot reads and writes.
type FirestoreConfig struct {
	CacheStatePath   string `mapstructure:"cache_state_path"`
	SystemPromptPath string `mapstructure:"system_prompt_path"`
	InventoryPath    string `mapstructure:"inventory_path"`
}

// GeminiConfig holds Gemini model and cache lifetime configuration.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`

	// CacheTTL is the lifetime of a freshly created context cache.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// ExtensionThreshold is how close to expiry a cache must be before a
	// request extends it instead of reusing it as-is.
	ExtensionThreshold time.Duration `mapstructure:"extension_threshold"`

	// ExtensionDuration is how far an extension pushes the expiry out.
	ExtensionDuration time.Duration `mapstructure:"extension_duration"`
}

// ChatConfig holds the rate-limit retry policy for chat generation.
type ChatConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// WebhookConfig holds the colleague-escalation webhook configuration.
// An empty URL disables delivery; escalations are then answered with an
// "unavailable" status so the model can tell the customer.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RefresherConfig holds the background cache maintenance configuration.
type RefresherConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	PassTimeout time.Duration `mapstructure:"pass_timeout"`
}

// UsageConfig holds local usage accounting configuration.
type UsageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.workers", 2)

	v.SetDefault("google.project_id", "")
	v.SetDefault("secrets.secret_id", "firestore-service-account")
	v.SetDefault("secrets.version", "latest")

	v.SetDefault("firestore.cache_state_path", "config/cache")
	v.SetDefault("firestore.system_prompt_path", "config/system_prompt")
	v.SetDefault("firestore.inventory_path", "config/inventory")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "models/gemini-1.5-flash-002")
	v.SetDefault("gemini.cache_ttl", "900s")
	v.SetDefault("gemini.extension_threshold", "300s")
	v.SetDefault("gemini.extension_duration", "600s")

	v.SetDefault("chat.max_attempts", 5)
	v.SetDefault("chat.initial_delay", "1s")
	v.SetDefault("chat.backoff_factor", 2.0)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", "30s")

	v.SetDefault("refresher.enabled", true)
	v.SetDefault("refresher.interval", "60s")
	v.SetDefault("refresher.pass_timeout", "2m")

	v.SetDefault("usage.enabled", true)
	v.SetDefault("usage.dsn", "./data/cachebot.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("CACHEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy aliases honored alongside the prefixed names. GUNICORN_WORKERS
	// is what existing deployments set; GEMINI_API_KEY is what the SDK docs
	// tell people to export.
	v.BindEnv("server.workers", "CACHEBOT_SERVER_WORKERS", "GUNICORN_WORKERS")
	v.BindEnv("gemini.api_key", "CACHEBOT_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("google.project_id", "CACHEBOT_GOOGLE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values a running server cannot do without.
func (c *Config) Validate() error {
	if c.Google.ProjectID == "" {
		return fmt.Errorf("google.project_id is required (set CACHEBOT_GOOGLE_PROJECT_ID)")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required (set CACHEBOT_GEMINI_API_KEY)")
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be positive, got %d", c.Server.Workers)
	}
	if c.Gemini.CacheTTL <= 0 {
		return fmt.Errorf("gemini.cache_ttl must be positive, got %s", c.Gemini.CacheTTL)
	}
	if c.Gemini.ExtensionThreshold >= c.Gemini.CacheTTL {
		return fmt.Errorf("gemini.extension_threshold (%s) must be below gemini.cache_ttl (%s)",
			c.Gemini.ExtensionThreshold, c.Gemini.CacheTTL)
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
