package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// EnvPrefix is the prefix of environment variables overriding settings,
// e.g. FLOWGRID_STORE_DRIVER for store.driver.
const EnvPrefix = "FLOWGRID"

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "flowgrid"

// Config holds every application setting.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Store struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
		DSN    string `mapstructure:"dsn"`
		Key    string `mapstructure:"key"`
	} `mapstructure:"store"`
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Capabilities struct {
		Chat struct {
			URL       string `mapstructure:"url"`
			Namespace string `mapstructure:"namespace"`
			Event     string `mapstructure:"event"`
		} `mapstructure:"chat"`
		HTTP struct {
			Timeout time.Duration `mapstructure:"timeout"`
		} `mapstructure:"http"`
	} `mapstructure:"capabilities"`
	Tracker struct {
		History int `mapstructure:"history"`
	} `mapstructure:"tracker"`
}

var defaults = map[string]any{
	"log.level":                   "info",
	"log.format":                  "text",
	"store.driver":                DriverFile,
	"store.path":                  ".flowgrid",
	"store.dsn":                   "",
	"store.key":                   "flowgrid_workflows",
	"http.addr":                   ":8080",
	"capabilities.chat.url":       "",
	"capabilities.chat.namespace": "/",
	"capabilities.chat.event":     "message",
	"capabilities.http.timeout":   30 * time.Second,
	"tracker.history":             100,
}

// NewViper returns a viper instance with defaults and environment lookup
// configured. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, or ./flowgrid.yaml when file is empty, into v and decodes
// the result. A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	return &cfg, cfg.Validate()
}

// Default returns the configuration with every setting at its default.
func Default() *Config {
	cfg, err := Load(NewViper(), "")
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// Validate rejects unknown drivers, levels and formats and settings a driver
// needs but lacks.
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level %q: must be 'debug', 'info', 'warn', or 'error'", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format %q: must be 'text' or 'json'", c.Log.Format))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file driver"))
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store.driver %q: must be 'memory', 'file', or 'postgres'", c.Store.Driver))
	}
	if c.Store.Key == "" {
		errs = append(errs, errors.New("store.key must not be empty"))
	}
	if c.Capabilities.HTTP.Timeout < 0 {
		errs = append(errs, errors.New("capabilities.http.timeout must not be negative"))
	}
	if c.Tracker.History < 0 {
		errs = append(errs, errors.New("tracker.history must not be negative"))
	}
	return errors.Join(errs...)
}
