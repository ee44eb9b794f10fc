// Package ai talks to the chat completion providers behind the assistant.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Roles used in Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options tunes a single call.
type Options struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Result is a complete, non-streamed reply.
type Result struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Provider is a chat completion backend.
type Provider interface {
	// Infer sends a prompt and returns the complete reply.
	Infer(ctx context.Context, system string, messages []Message, opts Options) (*Result, error)

	// Stream sends a prompt and returns a channel of text deltas. The error
	// channel yields at most one error and is closed with the text channel.
	Stream(ctx context.Context, system string, messages []Message, opts Options) (<-chan string, <-chan error, error)

	// Name returns the provider identifier.
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the provider endpoint root, e.g. for a proxy.
	BaseURL    string
	HTTPClient *http.Client
}

// DefaultProvider is used when Config.Provider is empty.
const DefaultProvider = "openai"

// Providers lists the supported provider names.
var Providers = []string{"openai", "anthropic", "ollama"}

// NewProvider creates the provider named by cfg. A missing API key falls
// back to the provider's usual environment variable.
func NewProvider(cfg Config) (Provider, error) {
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = DefaultProvider
	}
	switch name {
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no OpenAI API key configured: set XLA_API_KEYS_OPENAI or OPENAI_API_KEY, or run 'xla config set api_keys.openai <key>'")
		}
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no Anthropic API key configured: set XLA_API_KEYS_ANTHROPIC or ANTHROPIC_API_KEY (keys at https://console.anthropic.com/settings/keys)")
		}
		return NewAnthropicProvider(cfg), nil
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q (supported: %s)", cfg.Provider, strings.Join(Providers, ", "))
	}
}

// client is the HTTP plumbing shared by providers.
type client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func newClient(cfg Config, defaultURL string) client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	return client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
	}
}

func (c client) modelFor(opts Options, fallback string) string {
	if opts.Model != "" {
		return opts.Model
	}
	if c.model != "" {
		return c.model
	}
	return fallback
}

// Collect drains a stream, calling fn for each delta, and returns the full text.
func Collect(text <-chan string, errs <-chan error, fn func(string)) (string, error) {
	var b strings.Builder
	for chunk := range text {
		b.WriteString(chunk)
		if fn != nil {
			fn(chunk)
		}
	}
	if err := <-errs; err != nil {
		return b.String(), err
	}
	return b.String(), nil
}
