package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. FANPROMPT_BACKEND_URL.
const EnvPrefix = "FANPROMPT"

type Config struct {
	BackendURL   string       `mapstructure:"backend_url" yaml:"backend_url"`
	DispatchPath string       `mapstructure:"dispatch_path" yaml:"dispatch_path"`
	Log          LogConfig    `mapstructure:"log" yaml:"log"`
	Store        StoreConfig  `mapstructure:"store" yaml:"store"`
	Server       ServerConfig `mapstructure:"server" yaml:"server"`
}

type LogConfig struct {
	Mode      string `mapstructure:"mode" yaml:"mode"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

type StoreConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key" yaml:"redis_key"`
}

type ServerConfig struct {
	Addr             string        `mapstructure:"addr" yaml:"addr"`
	Command          []string      `mapstructure:"command" yaml:"command"`
	Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NeedsHumanMarker string        `mapstructure:"needs_human_marker" yaml:"needs_human_marker"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend_url", "http://127.0.0.1:8080")
	v.SetDefault("dispatch_path", "/dispatch")
	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.output_dir", "")
	v.SetDefault("store.driver", "jsonl")
	v.SetDefault("store.path", "data/jobs.jsonl")
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("store.redis_key", "fanprompt:jobs")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.command", []string{})
	v.SetDefault("server.concurrency", 4)
	v.SetDefault("server.timeout", 5*time.Minute)
	v.SetDefault("server.needs_human_marker", "NEEDS_HUMAN")
}

// Load reads configuration from path, or from fanprompt.yaml in the working
// directory or $HOME/.config/fanprompt when path is empty. A missing default
// file is not an error. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fanprompt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fanprompt")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// A command set through the environment arrives as one string.
	if len(cfg.Server.Command) == 1 && strings.ContainsAny(cfg.Server.Command[0], " \t") {
		cfg.Server.Command = strings.Fields(cfg.Server.Command[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend_url %q is not an absolute URL", c.BackendURL)
	}
	if !strings.HasPrefix(c.DispatchPath, "/") {
		return fmt.Errorf("dispatch_path %q must start with /", c.DispatchPath)
	}
	switch c.Log.Mode {
	case "dev", "debug", "prod":
	default:
		return fmt.Errorf("log.mode %q: want dev, debug or prod", c.Log.Mode)
	}
	switch c.Store.Driver {
	case "jsonl", "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("store.driver %q: want jsonl, sqlite, redis or memory", c.Store.Driver)
	}
	if c.Server.Concurrency < 1 {
		return fmt.Errorf("server.concurrency must be at least 1, got %d", c.Server.Concurrency)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
