// Package config loads client and server settings from orion.yaml and ORION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	Client   ClientConfig   `mapstructure:"client"`
	Identity IdentityConfig `mapstructure:"identity"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ClientConfig controls how the CLI talks to the simulation service.
type ClientConfig struct {
	ServiceURL        string        `mapstructure:"service_url"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	NotFoundTolerance int           `mapstructure:"not_found_tolerance"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// IdentityConfig selects how the client obtains a principal.
type IdentityConfig struct {
	Provider     string        `mapstructure:"provider"` // "key" or "browser"
	KeyFile      string        `mapstructure:"key_file"`
	ProviderURL  string        `mapstructure:"provider_url"`
	CallbackAddr string        `mapstructure:"callback_addr"`
	LoginTimeout time.Duration `mapstructure:"login_timeout"`
}

// ServerConfig controls the simulation service.
type ServerConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	PublicURL        string        `mapstructure:"public_url"`
	AgentEndpoint    string        `mapstructure:"agent_endpoint"`
	AgentToken       string        `mapstructure:"agent_token"` // empty leaves result delivery open
	DispatchRetries  int           `mapstructure:"dispatch_retries"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	Retention        time.Duration `mapstructure:"retention"`
	MetricsNamespace string        `mapstructure:"metrics_namespace"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the request store and optional archive.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"` // "memory" or "postgres"
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Identity providers.
const (
	ProviderKey     = "key"
	ProviderBrowser = "browser"
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("client.service_url", "http://localhost:8080/rpc")
	v.SetDefault("client.poll_interval", 2*time.Second)
	v.SetDefault("client.max_attempts", 150)
	v.SetDefault("client.not_found_tolerance", 3)
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.retry_delay", time.Second)
	v.SetDefault("client.request_timeout", 30*time.Second)

	v.SetDefault("identity.provider", ProviderKey)
	v.SetDefault("identity.key_file", "~/.orion/identity.key")
	v.SetDefault("identity.provider_url", "https://identity.ic0.app")
	v.SetDefault("identity.callback_addr", "127.0.0.1:51735")
	v.SetDefault("identity.login_timeout", 5*time.Minute)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.agent_endpoint", "")
	v.SetDefault("server.agent_token", "")
	v.SetDefault("server.dispatch_retries", 3)
	v.SetDefault("server.stale_after", 10*time.Minute)
	v.SetDefault("server.sweep_interval", time.Minute)
	v.SetDefault("server.retention", 24*time.Hour)
	v.SetDefault("server.metrics_namespace", "orion")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// New returns a viper instance with defaults, env binding and the config
// search path set up. path may name a file or a directory.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		v.SetConfigFile(path)
	} else {
		if path != "" {
			v.AddConfigPath(path)
		}
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.orion")
		v.SetConfigName("orion")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ORION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (if any) from v and decodes it.
// A missing config file is not an error; defaults and env apply.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig is a convenience wrapper around New and Load.
func LoadConfig(path string) (*Config, error) {
	return Load(New(path))
}

// ValidateClient checks settings used by the CLI.
func (c *Config) ValidateClient() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.Client.ServiceURL); err != nil {
		errs = append(errs, fmt.Errorf("client.service_url: %w", err))
	}
	if c.Client.PollInterval <= 0 {
		errs = append(errs, errors.New("client.poll_interval must be positive"))
	}
	if c.Client.MaxAttempts <= 0 {
		errs = append(errs, errors.New("client.max_attempts must be positive"))
	}
	if c.Client.NotFoundTolerance < 0 {
		errs = append(errs, errors.New("client.not_found_tolerance must not be negative"))
	}
	if c.Client.MaxRetries < 0 {
		errs = append(errs, errors.New("client.max_retries must not be negative"))
	}
	switch c.Identity.Provider {
	case ProviderKey:
		if c.Identity.KeyFile == "" {
			errs = append(errs, errors.New("identity.key_file is required for the key provider"))
		}
	case ProviderBrowser:
		if _, err := url.ParseRequestURI(c.Identity.ProviderURL); err != nil {
			errs = append(errs, fmt.Errorf("identity.provider_url: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("identity.provider %q: want %q or %q", c.Identity.Provider, ProviderKey, ProviderBrowser))
	}
	return errors.Join(errs...)
}

// ValidateServer checks settings used by the service.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if _, err := url.ParseRequestURI(c.Server.PublicURL); err != nil {
		errs = append(errs, fmt.Errorf("server.public_url: %w", err))
	}
	if c.Server.AgentEndpoint != "" {
		if _, err := url.ParseRequestURI(c.Server.AgentEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("server.agent_endpoint: %w", err))
		}
	}
	if c.Server.StaleAfter <= 0 || c.Server.SweepInterval <= 0 {
		errs = append(errs, errors.New("server.stale_after and server.sweep_interval must be positive"))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want %q or %q", c.Storage.Backend, BackendMemory, BackendPostgres))
	}
	return errors.Join(errs...)
}
