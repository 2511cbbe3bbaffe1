package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all panel configuration
type Config struct {
	App         AppConfig
	GRPC        GRPCConfig
	API         APIConfig
	Platform    PlatformConfig
	Bridge      BridgeConfig
	Redis       RedisConfig
	MySQL       MySQLConfig
	Storage     StorageConfig
	Preferences PreferencesConfig
	Frame       FrameConfig
	Log         LogConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
	// PageIdleTimeout is how long a booted page stays in the server registry without requests
	PageIdleTimeout time.Duration
}

type GRPCConfig struct {
	Port string
}

// APIConfig points at the REST backend that owns products and stock
type APIConfig struct {
	BaseURL string
	// Timeout bounds each outbound call. Zero, the default, means no timeout.
	Timeout time.Duration
}

type PlatformConfig struct {
	AdminDomain string
}

// BridgeConfig holds the app credentials used to mint session tokens
type BridgeConfig struct {
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TabTTL   time.Duration
}

// Addr returns host:port for the redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StorageConfig selects the tab storage backend: memory or redis
type StorageConfig struct {
	Backend string
}

// PreferencesConfig selects where dashboard preferences live: memory or mysql
type PreferencesConfig struct {
	Backend string
}

// FrameConfig lists the origins allowed to embed the panel
type FrameConfig struct {
	Ancestors []string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with STOCKPILOT_ prefix (e.g., STOCKPILOT_BRIDGE_API_SECRET)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches the usual locations.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stockpilot")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("STOCKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:            v.GetString("app.name"),
			Env:             v.GetString("app.env"),
			Port:            v.GetString("app.port"),
			PageIdleTimeout: v.GetDuration("app.page_idle_timeout"),
		},
		GRPC: GRPCConfig{
			Port: v.GetString("grpc.port"),
		},
		API: APIConfig{
			BaseURL: v.GetString("api.base_url"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Platform: PlatformConfig{
			AdminDomain: v.GetString("platform.admin_domain"),
		},
		Bridge: BridgeConfig{
			APIKey:    v.GetString("bridge.api_key"),
			APISecret: v.GetString("bridge.api_secret"),
			TokenTTL:  v.GetDuration("bridge.token_ttl"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TabTTL:   v.GetDuration("redis.tab_ttl"),
		},
		MySQL: MySQLConfig{
			DSN:             v.GetString("mysql.dsn"),
			MaxOpenConns:    v.GetInt("mysql.max_open_conns"),
			MaxIdleConns:    v.GetInt("mysql.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("mysql.conn_max_lifetime"),
		},
		Storage: StorageConfig{
			Backend: v.GetString("storage.backend"),
		},
		Preferences: PreferencesConfig{
			Backend: v.GetString("preferences.backend"),
		},
		Frame: FrameConfig{
			Ancestors: v.GetStringSlice("frame.ancestors"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stockpilot-panel"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.PageIdleTimeout == 0 {
		cfg.App.PageIdleTimeout = 30 * time.Minute
	}
	if cfg.GRPC.Port == "" {
		cfg.GRPC.Port = "50051"
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:3000/api"
	}
	if cfg.Platform.AdminDomain == "" {
		cfg.Platform.AdminDomain = "admin.shopify.com"
	}
	if cfg.Bridge.TokenTTL == 0 {
		cfg.Bridge.TokenTTL = time.Minute
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.TabTTL == 0 {
		cfg.Redis.TabTTL = 12 * time.Hour
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 10
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 5
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Preferences.Backend == "" {
		cfg.Preferences.Backend = "memory"
	}
	if len(cfg.Frame.Ancestors) == 0 {
		cfg.Frame.Ancestors = []string{"https://admin.shopify.com", "https://*.myshopify.com"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}

	switch c.Storage.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("storage.backend must be memory or redis, got %q", c.Storage.Backend)
	}

	switch c.Preferences.Backend {
	case "memory":
	case "mysql":
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql.dsn is required when preferences.backend is mysql")
		}
	default:
		return fmt.Errorf("preferences.backend must be memory or mysql, got %q", c.Preferences.Backend)
	}

	if c.MySQL.MaxIdleConns > c.MySQL.MaxOpenConns {
		return fmt.Errorf("mysql.max_idle_conns (%d) cannot exceed mysql.max_open_conns (%d)",
			c.MySQL.MaxIdleConns, c.MySQL.MaxOpenConns)
	}
	if c.Bridge.TokenTTL < 0 {
		return fmt.Errorf("bridge.token_ttl cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Bridge.APIKey == "" || c.Bridge.APISecret == "" {
			return fmt.Errorf("bridge.api_key and bridge.api_secret are required in production")
		}
		if u.Scheme != "https" {
			return fmt.Errorf("api.base_url must use https in production")
		}
	}

	return nil
}

// BridgeEnabled reports whether app credentials are configured.
func (c *Config) BridgeEnabled() bool {
	return c.Bridge.APIKey != "" && c.Bridge.APISecret != ""
}

// FrameAncestors renders the CSP frame-ancestors directive.
func (c *Config) FrameAncestors() string {
	return "frame-ancestors " + strings.Join(c.Frame.Ancestors, " ") + ";"
}
