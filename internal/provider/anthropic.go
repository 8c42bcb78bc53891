package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cidadao-ai/citizen-intake/internal/config"
)

const anthropicVersion = "2023-06-01"

// Anthropic talks to the Messages API. System turns are lifted into the
// top-level system field.
type Anthropic struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewAnthropic builds the backend. Without an API key it is unavailable.
func NewAnthropic(settings config.ProviderConfig, client *http.Client) *Anthropic {
	p := &Anthropic{
		apiKey:   strings.TrimSpace(settings.APIKey),
		model:    settings.Model,
		endpoint: joinURL(settings.BaseURL, "messages"),
	}
	if p.apiKey != "" {
		if client == nil {
			client = http.DefaultClient
		}
		p.client = client
	}
	return p
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Available() bool { return p.client != nil }

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Anthropic) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	if !p.Available() {
		return "", ErrProviderUnavailable
	}
	wire := anthropicRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	if wire.Model == "" {
		wire.Model = p.model
	}
	if wire.MaxTokens <= 0 {
		wire.MaxTokens = 300
	}
	var system []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		wire.Messages = append(wire.Messages, m)
	}
	wire.System = strings.Join(system, "\n\n")

	var out anthropicResponse
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	if err := postJSON(ctx, p.client, p.Name(), p.endpoint, headers, wire, &out); err != nil {
		return "", err
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &Error{Provider: p.Name(), Err: errors.New("response has no text content")}
	}
	return strings.TrimSpace(text.String()), nil
}
