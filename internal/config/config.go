package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration root.
type Config struct {
	Version     string            `mapstructure:"version" yaml:"version"`
	Backend     BackendConfig     `mapstructure:"backend" yaml:"backend"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// BackendConfig describes the OpenAI-compatible backend to talk to.
type BackendConfig struct {
	BaseURL         string            `mapstructure:"base_url" yaml:"base_url"`
	APIKey          string            `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model           string            `mapstructure:"model" yaml:"model"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	Proxy           string            `mapstructure:"proxy" yaml:"proxy,omitempty"`
	Timeout         string            `mapstructure:"timeout" yaml:"timeout,omitempty"`
	Temperature     float64           `mapstructure:"temperature" yaml:"temperature,omitempty"`
	TopP            float64           `mapstructure:"top_p" yaml:"top_p,omitempty"`
	MaxOutputTokens int               `mapstructure:"max_output_tokens" yaml:"max_output_tokens,omitempty"`
	Debug           bool              `mapstructure:"debug" yaml:"debug,omitempty"`
}

// GetTimeout parses the Timeout field, defaulting to 5 minutes.
func (c *BackendConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// SessionConfig holds per-session defaults.
type SessionConfig struct {
	SystemPrompt     string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	SystemPromptFile string `mapstructure:"system_prompt_file" yaml:"system_prompt_file,omitempty"`
}

// ResolveSystemPrompt returns the system prompt, preferring the inline
// value over a file reference.
func (c *SessionConfig) ResolveSystemPrompt() (string, error) {
	if c.SystemPrompt != "" {
		return c.SystemPrompt, nil
	}
	if c.SystemPromptFile == "" {
		return "", nil
	}
	path, err := ExpandPath(c.SystemPromptFile)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// CompressionConfig controls automatic history compression.
type CompressionConfig struct {
	Auto             bool    `mapstructure:"auto" yaml:"auto"`
	Threshold        float64 `mapstructure:"threshold" yaml:"threshold"`
	PreserveFraction float64 `mapstructure:"preserve_fraction" yaml:"preserve_fraction"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load loads configuration with precedence ENV > file > defaults.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("RELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// A missing file is fine; a malformed one is not.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, err
			}
			if !os.IsNotExist(err) {
				var pathErr *os.PathError
				if !errors.As(err, &pathErr) {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the currently loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// GetString returns a string configuration value by key.
func GetString(key string) string {
	return viper.GetString(key)
}

// Set sets a configuration value and persists it when a file path is known.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the current configuration to its file.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save writes the file; callers must hold the lock.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 0600: the file may contain an API key.
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes a configuration snapshot to an arbitrary path.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset clears loaded state. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
