// Package config loads runtime settings with viper: defaults, then an
// optional minion.yaml, then MINION_* environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: store.driver is MINION_STORE_DRIVER.
const EnvPrefix = "MINION"

// FileName is the config file searched for when none is given.
const FileName = "minion"

// ErrInvalidConfig wraps validation errors.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Research ResearchConfig `mapstructure:"research"`
	Apps     AppsConfig     `mapstructure:"apps"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// StoreConfig selects the session store and its middleware.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory file redis"`
	// Path is the directory of the file driver.
	Path string `mapstructure:"path"`
	// MaskKeys are regexes; matching State keys are masked before saving.
	MaskKeys []string `mapstructure:"mask_keys"`
	// EncryptionKey is a hex encoded AES-256 key. Empty disables encryption.
	EncryptionKey string `mapstructure:"encryption_key" validate:"omitempty,hexadecimal,len=64"`
	// FallbackKeys decrypt sessions sealed with rotated keys.
	FallbackKeys []string `mapstructure:"fallback_keys" validate:"dive,hexadecimal,len=64"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type SessionConfig struct {
	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

type AgentConfig struct {
	MaxSteps int `mapstructure:"max_steps" validate:"gt=0"`
}

type RunnerConfig struct {
	// InputLimit caps user input in bytes.
	InputLimit int `mapstructure:"input_limit" validate:"gt=0"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig enables OTLP/HTTP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// ResearchConfig configures the web search provider of the research app.
type ResearchConfig struct {
	Endpoint      string  `mapstructure:"endpoint"`
	APIKey        string  `mapstructure:"api_key"`
	MaxResults    int     `mapstructure:"max_results" validate:"gt=0"`
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"gte=0"`
}

type AppsConfig struct {
	// Definitions are YAML app definition files.
	Definitions []string `mapstructure:"definitions"`
	// Tools is an optional tools.yaml of external commands.
	Tools string `mapstructure:"tools"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", filepath.Join(".minion", "sessions"))
	v.SetDefault("store.mask_keys", []string{})
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("store.fallback_keys", []string{})

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "minion:session:")
	v.SetDefault("redis.ttl", time.Duration(0))

	v.SetDefault("session.lock_ttl", 30*time.Second)
	v.SetDefault("agent.max_steps", 8)
	v.SetDefault("runner.input_limit", 4096)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", "minion")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("research.endpoint", "https://api.tavily.com")
	v.SetDefault("research.api_key", "")
	v.SetDefault("research.max_results", 5)
	v.SetDefault("research.rate_per_second", 2.0)

	v.SetDefault("apps.definitions", []string{})
	v.SetDefault("apps.tools", "")
}

// Load reads the configuration. An empty path searches for minion.yaml in
// the working directory and in $HOME/.minion; a missing file is not an
// error then. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".minion"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// Env values for lists are space separated.
	cfg.Store.MaskKeys = v.GetStringSlice("store.mask_keys")
	cfg.Store.FallbackKeys = v.GetStringSlice("store.fallback_keys")
	cfg.Apps.Definitions = v.GetStringSlice("apps.definitions")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration made of defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks enums, bounds and key sizes.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), rule))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}
	if c.Store.Driver == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required for the redis store", ErrInvalidConfig)
	}
	if c.Store.Driver == "file" && c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required for the file store", ErrInvalidConfig)
	}
	return nil
}

// EncryptionKeys decodes the active and fallback keys. The active key is
// nil when encryption is off.
func (s StoreConfig) EncryptionKeys() ([]byte, [][]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil, nil
	}
	active, err := hex.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: store.encryption_key: %v", ErrInvalidConfig, err)
	}
	fallback := make([][]byte, 0, len(s.FallbackKeys))
	for _, k := range s.FallbackKeys {
		b, err := hex.DecodeString(k)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: store.fallback_keys: %v", ErrInvalidConfig, err)
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}
