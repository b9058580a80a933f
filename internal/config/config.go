// Package config provides functionality for loading and accessing the scope daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"norelock.dev/soundscope/internal/utils"
)

// Environment variables understood by the desktop test harness and kept for compatibility.
const (
	EnvAPIRoot        = "NETWORK_SCOPE_APIROOT"
	EnvIgnoreAccounts = "SOUNDCLOUD_SCOPE_IGNORE_ACCOUNTS"
)

// Config represents the daemon configuration
type Config struct {
	// Environment is the current running environment (development, staging, production)
	Environment string `mapstructure:"environment"`

	Scope       ScopeConfig       `mapstructure:"scope"`
	SoundCloud  SoundCloudConfig  `mapstructure:"soundcloud"`
	YouTube     YouTubeConfig     `mapstructure:"youtube"`
	Server      ServerConfig      `mapstructure:"server"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Database    DatabaseConfig    `mapstructure:"database"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Features    FeaturesConfig    `mapstructure:"features"`
}

// ScopeConfig controls query, preview and activation behavior.
type ScopeConfig struct {
	// IgnoreAccounts disables the account-status provider; every request is anonymous.
	IgnoreAccounts bool `mapstructure:"ignore_accounts"`
	// Directory is the scope install directory, used to locate translations.
	Directory string `mapstructure:"directory"`
	// Locale is the fallback locale when a request carries none.
	Locale string `mapstructure:"locale" validate:"locale"`
	// RequestTimeout bounds how long a query blocks on a single client future.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`
	// SearchLimit is the number of tracks requested per search.
	SearchLimit int `mapstructure:"search_limit" validate:"min=1,max=200"`
	// CommentLimit is the number of comments shown in a preview.
	CommentLimit int `mapstructure:"comment_limit" validate:"min=0,max=50"`
	// CacheTTL is how long explore/search track lists are cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// SoundCloudConfig holds the REST API connection settings.
type SoundCloudConfig struct {
	APIRoot   string `mapstructure:"api_root" validate:"required,url"`
	ClientID  string `mapstructure:"client_id" validate:"required"`
	UserAgent string `mapstructure:"user_agent" validate:"required"`
	// AccessToken is a static OAuth token used when no account service is configured.
	AccessToken string `mapstructure:"access_token"`
}

// YouTubeConfig configures the YouTube variant category.
type YouTubeConfig struct {
	APIKey     string `mapstructure:"api_key"`
	MaxResults int64  `mapstructure:"max_results" validate:"min=1,max=50"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	// RequestsPerMinute bounds REST requests per caller. 0 disables the limit.
	RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"min=0"`
}

// WebSocketConfig holds JSON-RPC connection limits.
type WebSocketConfig struct {
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// AuthConfig controls host-shell token validation.
type AuthConfig struct {
	// Required rejects unauthenticated REST and WebSocket requests.
	Required    bool          `mapstructure:"required"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	Issuer      string        `mapstructure:"issuer"`
	Audience    string        `mapstructure:"audience"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// DatabaseConfig groups the optional storage backends.
type DatabaseConfig struct {
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// MongoDBConfig configures the activity log store.
type MongoDBConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	URI         string        `mapstructure:"uri"`
	Database    string        `mapstructure:"database"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxPoolSize uint64        `mapstructure:"max_pool_size"`
	MinPoolSize uint64        `mapstructure:"min_pool_size"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
}

// RedisConfig configures the account store and search cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addresses    []string      `mapstructure:"addresses"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RateLimitConfig bounds social actions per caller.
type RateLimitConfig struct {
	Actions int           `mapstructure:"actions"`
	Window  time.Duration `mapstructure:"window"`
}

// MaintenanceConfig schedules the periodic housekeeping tasks.
type MaintenanceConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Interval is how often due tasks are checked for.
	Interval time.Duration `mapstructure:"interval"`
	// TaskTimeout bounds a single task run.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// ActivityMaxAge is how long activity records are kept.
	ActivityMaxAge     time.Duration `mapstructure:"activity_max_age"`
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Format           string   `mapstructure:"format"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// FeaturesConfig toggles optional behavior.
type FeaturesConfig struct {
	// EnableYouTube adds the YouTube category to non-empty searches.
	EnableYouTube bool `mapstructure:"enable_youtube"`
	// EnableLoginNag pushes the "Log in to SoundCloud" result for anonymous surfacing queries.
	EnableLoginNag bool `mapstructure:"enable_login_nag"`
	// EnableSocial exposes like/follow/comment actions in previews.
	EnableSocial bool `mapstructure:"enable_social"`
	// EnableSearchCache caches track lists.
	EnableSearchCache bool `mapstructure:"enable_search_cache"`
	// EnableActivityLog records activations in MongoDB.
	EnableActivityLog bool `mapstructure:"enable_activity_log"`
	// EnableMetrics exposes /metrics.
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// LoadConfig loads the configuration from file and environment variables.
// It looks for scope.yaml in the following locations:
// 1. Path specified in the CONFIG_FILE environment variable
// 2. ./configs directory
// 3. ../configs directory
// 4. /etc/soundscope directory
// A .env file in the working directory is loaded first, without overriding the real environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("scope")
	v.SetConfigType("yaml")

	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("/etc/soundscope")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	env := os.Getenv("SCOPE_ENV")
	if env == "" {
		env = "development"
	}

	if configFile == "" {
		v.SetConfigName("scope." + env)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to merge environment config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("soundcloud.api_root", "SCOPE_SOUNDCLOUD_API_ROOT", EnvAPIRoot); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", EnvAPIRoot, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Environment = env

	// Presence alone switches accounts off, whatever the value.
	if _, ok := os.LookupEnv(EnvIgnoreAccounts); ok {
		config.Scope.IgnoreAccounts = true
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets the default values for the configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("scope.ignore_accounts", false)
	v.SetDefault("scope.directory", ".")
	v.SetDefault("scope.locale", "en")
	v.SetDefault("scope.request_timeout", "10s")
	v.SetDefault("scope.search_limit", 30)
	v.SetDefault("scope.comment_limit", 5)
	v.SetDefault("scope.cache_ttl", "5m")

	v.SetDefault("soundcloud.api_root", "https://api.soundcloud.com")
	v.SetDefault("soundcloud.client_id", "eadbbc8380aa72be1412e2abe5f8e4ca")
	v.SetDefault("soundcloud.user_agent", "soundscope 0.1")
	v.SetDefault("soundcloud.access_token", "")

	v.SetDefault("youtube.api_key", "")
	v.SetDefault("youtube.max_results", 10)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.requests_per_minute", 600)

	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_period", "54s")
	v.SetDefault("websocket.send_buffer", 256)

	v.SetDefault("auth.required", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "soundscope")
	v.SetDefault("auth.audience", "soundscope-shell")
	v.SetDefault("auth.token_expiry", "24h")

	v.SetDefault("database.mongodb.enabled", false)
	v.SetDefault("database.mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongodb.database", "soundscope")
	v.SetDefault("database.mongodb.timeout", "10s")
	v.SetDefault("database.mongodb.max_pool_size", 20)
	v.SetDefault("database.mongodb.min_pool_size", 1)
	v.SetDefault("database.mongodb.max_idle_time", "60s")

	v.SetDefault("database.redis.enabled", false)
	v.SetDefault("database.redis.addresses", []string{"localhost:6379"})
	v.SetDefault("database.redis.database", 0)
	v.SetDefault("database.redis.key_prefix", "soundscope")
	v.SetDefault("database.redis.max_retries", 3)
	v.SetDefault("database.redis.pool_size", 20)
	v.SetDefault("database.redis.min_idle_conns", 2)
	v.SetDefault("database.redis.dial_timeout", "5s")
	v.SetDefault("database.redis.read_timeout", "3s")
	v.SetDefault("database.redis.write_timeout", "3s")
	v.SetDefault("database.redis.idle_timeout", "300s")

	v.SetDefault("rate_limit.actions", 30)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.interval", "1m")
	v.SetDefault("maintenance.task_timeout", "5m")
	v.SetDefault("maintenance.activity_max_age", "720h")
	v.SetDefault("maintenance.max_concurrent_tasks", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("features.enable_youtube", false)
	v.SetDefault("features.enable_login_nag", true)
	v.SetDefault("features.enable_social", true)
	v.SetDefault("features.enable_search_cache", true)
	v.SetDefault("features.enable_activity_log", true)
	v.SetDefault("features.enable_metrics", true)
}

// validateConfig rejects configurations the daemon cannot start with.
func validateConfig(config *Config) error {
	if err := utils.Validate(config); err != nil {
		return err
	}

	if config.Auth.Required && config.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set when auth.required is enabled")
	}

	if config.Database.MongoDB.Enabled && config.Database.MongoDB.URI == "" {
		return errors.New("MongoDB URI must be set when MongoDB is enabled")
	}

	if config.Database.Redis.Enabled && len(config.Database.Redis.Addresses) == 0 {
		return errors.New("at least one Redis address must be provided when Redis is enabled")
	}

	return nil
}

// String returns a short human-readable summary, safe to log (no secrets).
func (c *Config) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Environment: %s\n", c.Environment)
	fmt.Fprintf(&sb, "Server: %s:%d\n", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&sb, "SoundCloud API: %s (user agent %q)\n", c.SoundCloud.APIRoot, c.SoundCloud.UserAgent)
	fmt.Fprintf(&sb, "Accounts: %s\n", map[bool]string{true: "ignored", false: "enabled"}[c.Scope.IgnoreAccounts])
	fmt.Fprintf(&sb, "MongoDB: %t, Redis: %t\n", c.Database.MongoDB.Enabled, c.Database.Redis.Enabled)
	sb.WriteString("Features:\n")
	fmt.Fprintf(&sb, "  YouTube: %t\n", c.Features.EnableYouTube)
	fmt.Fprintf(&sb, "  Social actions: %t\n", c.Features.EnableSocial)
	fmt.Fprintf(&sb, "  Search cache: %t\n", c.Features.EnableSearchCache)

	return sb.String()
}
