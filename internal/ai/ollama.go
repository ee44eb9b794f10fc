package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	ollamaBaseURL      = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// OllamaProvider talks to a local Ollama server.
type OllamaProvider struct {
	client
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	return &OllamaProvider{client: newClient(cfg, ollamaBaseURL)}
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (p *OllamaProvider) request(system string, messages []Message, opts Options, stream bool) ollamaRequest {
	msgs := make([]ollamaMessage, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		msgs = append(msgs, ollamaMessage(m))
	}
	return ollamaRequest{
		Model:    p.modelFor(opts, defaultOllamaModel),
		Messages: msgs,
		Stream:   stream,
	}
}

func (p *OllamaProvider) connectError(err error) error {
	return fmt.Errorf("could not connect to Ollama at %s, is it running? Start it with 'ollama serve': %w", p.baseURL, err)
}

// Infer sends a prompt to Ollama and returns the complete response.
func (p *OllamaProvider) Infer(ctx context.Context, system string, messages []Message, opts Options) (*Result, error) {
	req := p.request(system, messages, opts, false)
	resp, err := p.post(ctx, p.baseURL+"/api/chat", req, nil)
	if err != nil {
		return nil, p.connectError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	defer resp.Body.Close()

	var apiResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("could not parse response: %w", err)
	}
	return &Result{Content: apiResp.Message.Content, Model: req.Model}, nil
}

// Stream sends a prompt to Ollama and returns a channel of streamed text
// chunks. Ollama streams one JSON object per line.
func (p *OllamaProvider) Stream(ctx context.Context, system string, messages []Message, opts Options) (<-chan string, <-chan error, error) {
	resp, err := p.post(ctx, p.baseURL+"/api/chat", p.request(system, messages, opts, true), nil)
	if err != nil {
		return nil, nil, p.connectError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, statusError(resp)
	}

	textCh, errCh := pump(ctx, resp.Body, func(line string) (string, bool) {
		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", false
		}
		return chunk.Message.Content, chunk.Done
	})
	return textCh, errCh, nil
}
