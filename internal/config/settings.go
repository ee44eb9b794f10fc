package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix"`
}

// Wizard asks for the provider and its API key, then saves the config.
// If reader is nil, reads from os.Stdin.
func Wizard(reader io.Reader) error {
	if reader == nil {
		reader = os.Stdin
	}
	scanner := bufio.NewScanner(reader)
	ask := func(prompt string) string {
		fmt.Print(prompt)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	fmt.Println("xla setup")
	fmt.Println(strings.Repeat("-", 48))
	fmt.Println()
	fmt.Println("Which AI provider should answer in the assistant?")
	fmt.Println("  [1] OpenAI (default)")
	fmt.Println("  [2] Anthropic Claude")
	fmt.Println("  [3] Ollama (local)")
	fmt.Println("  [4] Skip for now")

	switch ask("  Choice: ") {
	case "", "1":
		viper.Set("provider", "openai")
		if key := ask("  Paste your OpenAI API key (sk-...): "); key != "" {
			viper.Set("api_keys.openai", key)
		}
	case "2":
		viper.Set("provider", "anthropic")
		if key := ask("  Paste your Anthropic API key (sk-ant-...): "); key != "" {
			viper.Set("api_keys.anthropic", key)
		}
	case "3":
		viper.Set("provider", "ollama")
		host := ask("  Ollama host (default: http://localhost:11434): ")
		if host == "" {
			host = "http://localhost:11434"
		}
		viper.Set("ollama.host", host)
	default:
		fmt.Println("  Skipped")
	}
	fmt.Println()

	if secret := ask("Token secret for 'xla serve' (empty for single-user mode): "); secret != "" {
		viper.Set("auth.secret", secret)
	}

	if err := SaveConfig(); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("Config file: %s\n", ConfigPath())
	fmt.Println("Try: xla chat ventes.xlsx")
	return nil
}

// Validate checks config values and returns a list of issues.
func Validate() []ConfigIssue {
	var issues []ConfigIssue

	provider := viper.GetString("provider")
	keyIssue := func(env, key, hint string) {
		v := viper.GetString(key)
		if v == "" {
			v = os.Getenv(env)
		}
		if v == "" {
			issues = append(issues, ConfigIssue{
				Key:      "provider",
				Severity: "error",
				Message:  fmt.Sprintf("provider is %q but %s is not set", provider, env),
				Fix:      fmt.Sprintf("export %s=%s\nOr: xla config set %s %s", env, hint, key, hint),
			})
			return
		}
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "info",
			Message:  fmt.Sprintf("%s API key configured", provider),
		})
	}

	switch provider {
	case "openai", "":
		keyIssue("OPENAI_API_KEY", "api_keys.openai", "sk-...")
	case "anthropic":
		keyIssue("ANTHROPIC_API_KEY", "api_keys.anthropic", "sk-ant-...")
	case "ollama":
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "info",
			Message:  "Ollama configured (no API key needed)",
		})
	default:
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "error",
			Message:  fmt.Sprintf("unknown provider %q", provider),
			Fix:      "xla config set provider openai",
		})
	}

	if viper.GetString("auth.secret") == "" {
		issues = append(issues, ConfigIssue{
			Key:      "auth.secret",
			Severity: "warning",
			Message:  "auth.secret is not set, 'xla serve' runs single-user without tokens",
			Fix:      "xla config set auth.secret <random string>",
		})
	} else if len(viper.GetString("auth.secret")) < 16 {
		issues = append(issues, ConfigIssue{
			Key:      "auth.secret",
			Severity: "warning",
			Message:  "auth.secret is shorter than 16 characters",
		})
	}

	if viper.GetInt("prompt.max_rows") == 0 {
		issues = append(issues, ConfigIssue{
			Key:      "prompt.max_rows",
			Severity: "info",
			Message:  "prompt.max_rows is 0, the default of 200 rows applies",
		})
	}
	if viper.GetInt("host.max_attempts") < 0 {
		issues = append(issues, ConfigIssue{
			Key:      "host.max_attempts",
			Severity: "error",
			Message:  "host.max_attempts must not be negative",
			Fix:      "xla config set host.max_attempts 100",
		})
	}

	return issues
}

// ToEnv returns all config values as a map of env var name -> value.
func ToEnv() map[string]string {
	env := make(map[string]string)
	for _, key := range viper.AllKeys() {
		v := viper.GetString(key)
		if v == "" {
			continue
		}
		env[EnvName(key)] = v
	}
	return env
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return "XLA_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// ResetConfig deletes the config file and restores the defaults.
func ResetConfig() error {
	path := ConfigPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete config: %w", err)
	}
	viper.Reset()
	setDefaults()
	return nil
}

// SaveConfig writes the current config to ~/.xla/config.yaml.
func SaveConfig() error {
	dir := configDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}

	// Set secure permissions
	os.Chmod(path, 0600)
	return nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// IsSecret reports whether key, or the environment variable named by
// EnvName, holds a credential.
func IsSecret(key string) bool {
	k := strings.ToLower(key)
	return strings.HasPrefix(k, "api_keys.") || k == "auth.secret" ||
		strings.HasPrefix(k, "xla_api_keys_") || k == "xla_auth_secret"
}

// Mask hides all but the first characters of a secret.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	return v[:min(6, len(v))] + "****"
}

// ShowConfig returns a formatted string of the current configuration.
func ShowConfig() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Config: %s\n\n", ConfigPath()))

	sb.WriteString("AI\n")
	sb.WriteString(fmt.Sprintf("  provider:  %s\n", viper.GetString("provider")))
	model := viper.GetString("model")
	if model == "" {
		model = "(provider default)"
	}
	sb.WriteString(fmt.Sprintf("  model:     %s\n", model))
	for _, p := range []string{"openai", "anthropic"} {
		if k := viper.GetString("api_keys." + p); k != "" {
			sb.WriteString(fmt.Sprintf("  %-10s %s\n", p+":", Mask(k)))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("Server\n")
	sb.WriteString(fmt.Sprintf("  addr:      %s\n", viper.GetString("server.addr")))
	sb.WriteString(fmt.Sprintf("  store:     %s\n", viper.GetString("store.path")))
	if s := viper.GetString("auth.secret"); s != "" {
		sb.WriteString(fmt.Sprintf("  secret:    %s\n", Mask(s)))
	} else {
		sb.WriteString("  secret:    (single-user)\n")
	}
	sb.WriteString("\n")

	sb.WriteString("Workbook\n")
	sb.WriteString(fmt.Sprintf("  max rows:  %d\n", viper.GetInt("prompt.max_rows")))
	sb.WriteString(fmt.Sprintf("  history:   %d\n", viper.GetInt("prompt.history")))
	sb.WriteString(fmt.Sprintf("  sheets:    resolve=%t strict_grid=%t\n",
		viper.GetBool("executor.resolve_sheets"), viper.GetBool("executor.strict_grid")))
	if viper.GetBool("audit.enabled") {
		sb.WriteString(fmt.Sprintf("  audit:     %s\n", viper.GetString("audit.path")))
	} else {
		sb.WriteString("  audit:     off\n")
	}

	return sb.String()
}
