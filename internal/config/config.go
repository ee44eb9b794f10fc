// Package config manages application configuration from files and environment.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKeys  struct {
		Anthropic string `mapstructure:"anthropic"`
		OpenAI    string `mapstructure:"openai"`
	} `mapstructure:"api_keys"`
	OpenAI struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"openai"`
	Anthropic struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"anthropic"`
	Ollama struct {
		Host string `mapstructure:"host"`
	} `mapstructure:"ollama"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
	Audit struct {
		Path    string `mapstructure:"path"`
		Enabled bool   `mapstructure:"enabled"`
	} `mapstructure:"audit"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Prompt struct {
		MaxRows int `mapstructure:"max_rows"`
		History int `mapstructure:"history"`
	} `mapstructure:"prompt"`
	Host struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
		MaxAttempts  int           `mapstructure:"max_attempts"`
	} `mapstructure:"host"`
	Executor struct {
		ResolveSheets bool `mapstructure:"resolve_sheets"`
		StrictGrid    bool `mapstructure:"strict_grid"`
	} `mapstructure:"executor"`
	Output struct {
		Format string `mapstructure:"format"`
		Color  bool   `mapstructure:"color"`
	} `mapstructure:"output"`
}

// Load reads the configuration from ~/.xla/config.yaml and XLA_* environment
// variables, e.g. XLA_API_KEYS_OPENAI or XLA_SERVER_ADDR.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir())

	setDefaults()

	viper.SetEnvPrefix("XLA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (non-fatal if missing)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults() {
	viper.SetDefault("provider", "openai")
	viper.SetDefault("model", "")
	viper.SetDefault("api_keys.anthropic", "")
	viper.SetDefault("api_keys.openai", "")
	viper.SetDefault("openai.base_url", "")
	viper.SetDefault("anthropic.base_url", "")
	viper.SetDefault("ollama.host", "")
	viper.SetDefault("server.addr", "127.0.0.1:3001")
	viper.SetDefault("store.path", filepath.Join(configDir(), "xla.db"))
	viper.SetDefault("audit.path", filepath.Join(configDir(), "audit.log"))
	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("auth.secret", "")
	viper.SetDefault("prompt.max_rows", 200)
	viper.SetDefault("prompt.history", 20)
	viper.SetDefault("host.poll_interval", 100*time.Millisecond)
	viper.SetDefault("host.max_attempts", 100)
	viper.SetDefault("executor.resolve_sheets", false)
	viper.SetDefault("executor.strict_grid", false)
	viper.SetDefault("output.color", true)
	viper.SetDefault("output.format", "text")
}

// APIKey returns the key for provider, preferring the config file and
// falling back to the provider's conventional environment variable.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "anthropic":
		if c.APIKeys.Anthropic != "" {
			return c.APIKeys.Anthropic
		}
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai", "":
		if c.APIKeys.OpenAI != "" {
			return c.APIKeys.OpenAI
		}
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// BaseURL returns the endpoint override for provider, if any.
func (c *Config) BaseURL(provider string) string {
	switch provider {
	case "anthropic":
		return c.Anthropic.BaseURL
	case "ollama":
		return c.Ollama.Host
	default:
		return c.OpenAI.BaseURL
	}
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".xla"
	}
	return filepath.Join(home, ".xla")
}
