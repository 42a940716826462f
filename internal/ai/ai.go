// Package ai provides the chat completion provider plugins reach through the
// permission-gated facade.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrEmptyPrompt is returned when a chat request carries no prompt.
var ErrEmptyPrompt = errors.New("empty prompt")

// DefaultMaxTokens bounds a completion when the request does not set one.
const DefaultMaxTokens = 1024

// Request is one chat completion request.
type Request struct {
	// System is an optional system prompt.
	System string

	// Prompt is the user message. Required.
	Prompt string

	// MaxTokens bounds the completion. Zero means DefaultMaxTokens.
	MaxTokens int
}

// Provider produces chat completions.
type Provider interface {
	Chat(ctx context.Context, req Request) (string, error)
}

// AnthropicProvider is a Provider backed by the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic creates a provider. An empty model selects a default.
func NewAnthropic(apiKey, model string) *AnthropicProvider {
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaudeSonnet4_0
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
	}
}

// Chat sends one user message and returns the concatenated text blocks of
// the reply.
func (p *AnthropicProvider) Chat(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
