package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	openaiBaseURL   = "https://api.openai.com/v1"
	defaultGPTModel = "gpt-4o-mini"
)

// OpenAIProvider talks to the OpenAI chat completions API.
type OpenAIProvider struct {
	client
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	return &OpenAIProvider{client: newClient(cfg, openaiBaseURL)}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) request(system string, messages []Message, opts Options, stream bool) openaiRequest {
	msgs := make([]openaiMessage, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, openaiMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		msgs = append(msgs, openaiMessage(m))
	}
	return openaiRequest{
		Model:       p.modelFor(opts, defaultGPTModel),
		Messages:    msgs,
		Stream:      stream,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
}

func (p *OpenAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// Infer sends a prompt to OpenAI and returns the complete response.
func (p *OpenAIProvider) Infer(ctx context.Context, system string, messages []Message, opts Options) (*Result, error) {
	resp, err := p.post(ctx, p.baseURL+"/chat/completions", p.request(system, messages, opts, false), p.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	defer resp.Body.Close()

	var apiResp openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("could not parse response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("API returned no choices")
	}

	return &Result{
		Content:      apiResp.Choices[0].Message.Content,
		Model:        apiResp.Model,
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}, nil
}

// Stream sends a prompt to OpenAI and returns a channel of streamed text chunks.
func (p *OpenAIProvider) Stream(ctx context.Context, system string, messages []Message, opts Options) (<-chan string, <-chan error, error) {
	resp, err := p.post(ctx, p.baseURL+"/chat/completions", p.request(system, messages, opts, true), p.headers())
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, statusError(resp)
	}

	textCh, errCh := pump(ctx, resp.Body, func(line string) (string, bool) {
		data, ok := sseData(line)
		if !ok {
			return "", false
		}
		if data == "[DONE]" {
			return "", true
		}

		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil || len(event.Choices) == 0 {
			return "", false
		}
		return event.Choices[0].Delta.Content, false
	})
	return textCh, errCh, nil
}
