package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/TobiSchelling/codedd/internal/record"
)

// AnthropicProvider sends single-turn prompts to the Messages API.
type AnthropicProvider struct {
	model  string
	apiKey string
	client anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider. Extra options are
// applied after the API key, e.g. option.WithBaseURL in tests. Retries are
// left to the caller.
func NewAnthropicProvider(model, apiKey string, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &AnthropicProvider{
		model:  model,
		apiKey: apiKey,
		client: anthropic.NewClient(opts...),
	}
}

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool { return a.apiKey != "" }

func (a *AnthropicProvider) Backend() record.Backend { return record.BackendAnthropic }

func (a *AnthropicProvider) Model() string { return a.model }

// Generate sends a prompt to Anthropic and returns the concatenated text
// blocks of the reply.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("anthropic: %w", ErrNoCredentials)
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(prompt),
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var b strings.Builder
	for _, content := range msg.Content {
		if content.Type == "text" {
			b.WriteString(content.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text in anthropic response (stop reason %s)", msg.StopReason)
	}
	return b.String(), nil
}
