// Package config loads the application configuration from a YAML file
// with environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTCORE").
//	    Load()
//
// Precedence: defaults, then the YAML file, then the environment.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Memory configures the tiered memory systems built for each agent.
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Orchestrator configures the multi-agent system.
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// State configures system state persistence.
	State StateConfig `yaml:"state" env:"STATE"`

	// Redis configures the optional Redis state backend.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap output sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// MemoryConfig configures the per-agent memory tiers.
type MemoryConfig struct {
	// WorkingCapacity caps the working memory entry count.
	WorkingCapacity int `yaml:"working_capacity" env:"WORKING_CAPACITY"`
	// LongTermPath is the JSON file backing long-term memory. Empty
	// disables persistence.
	LongTermPath string `yaml:"long_term_path" env:"LONG_TERM_PATH"`
	// AutoSaveInterval debounces long-term persistence writes.
	AutoSaveInterval time.Duration `yaml:"auto_save_interval" env:"AUTO_SAVE_INTERVAL"`
	// MaxEpisodes caps the retained episode count.
	MaxEpisodes int `yaml:"max_episodes" env:"MAX_EPISODES"`
	// ArchivePath is the optional SQLite archive for long-term memory.
	ArchivePath string `yaml:"archive_path" env:"ARCHIVE_PATH"`
}

// OrchestratorConfig configures task handling.
type OrchestratorConfig struct {
	// CascadeFailure fails dependents of a failed task instead of
	// leaving them blocked.
	CascadeFailure bool `yaml:"cascade_failure" env:"CASCADE_FAILURE"`
}

// StateConfig configures orchestrator state persistence.
type StateConfig struct {
	// Backend is file or redis.
	Backend string `yaml:"backend" env:"BACKEND"`
	// Dir holds the state files for the file backend.
	Dir string `yaml:"dir" env:"DIR"`
	// Key names the stored orchestrator state.
	Key string `yaml:"key" env:"KEY"`
}

// RedisConfig configures the Redis state backend.
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Memory: MemoryConfig{
			WorkingCapacity:  100,
			LongTermPath:     "data/long_term_memory.json",
			AutoSaveInterval: time.Minute,
			MaxEpisodes:      50,
		},
		Orchestrator: OrchestratorConfig{
			CascadeFailure: false,
		},
		State: StateConfig{
			Backend: "file",
			Dir:     "data/state",
			Key:     "system",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "agentcore:",
		},
	}
}

// Loader loads configuration with the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader returns a loader with the AGENTCORE env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTCORE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation step run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then environment,
// then validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads the configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for obviously invalid values.
func (c *Config) Validate() error {
	var errs []string

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if c.Memory.WorkingCapacity <= 0 {
		errs = append(errs, "working_capacity must be positive")
	}
	if c.Memory.MaxEpisodes <= 0 {
		errs = append(errs, "max_episodes must be positive")
	}
	switch c.State.Backend {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown state backend %q", c.State.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
