package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cidadao-ai/citizen-intake/internal/config"
)

// OpenAICompatible talks to any Chat Completions endpoint (OpenAI, Groq).
type OpenAICompatible struct {
	name     string
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAICompatible builds the backend. Without an API key it is unavailable.
func NewOpenAICompatible(name string, settings config.ProviderConfig, client *http.Client) *OpenAICompatible {
	p := &OpenAICompatible{
		name:     name,
		apiKey:   strings.TrimSpace(settings.APIKey),
		model:    settings.Model,
		endpoint: joinURL(settings.BaseURL, "chat/completions"),
	}
	if p.apiKey != "" {
		if client == nil {
			client = http.DefaultClient
		}
		p.client = client
	}
	return p
}

func (p *OpenAICompatible) Name() string { return p.name }

func (p *OpenAICompatible) Available() bool { return p.client != nil }

type openaiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAICompatible) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	if !p.Available() {
		return "", ErrProviderUnavailable
	}
	model := opts.Model
	if model == "" {
		model = p.model
	}
	wire := openaiRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	var out openaiResponse
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := postJSON(ctx, p.client, p.name, p.endpoint, headers, wire, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &Error{Provider: p.name, Err: errors.New("response has no choices")}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
