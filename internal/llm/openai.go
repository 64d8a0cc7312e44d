package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/TobiSchelling/codedd/internal/record"
)

// OpenAIProvider is an OpenAI chat completion provider.
type OpenAIProvider struct {
	model  string
	apiKey string
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(model, apiKey string) *OpenAIProvider {
	return NewOpenAIProviderWithConfig(model, apiKey, openai.DefaultConfig(apiKey))
}

// NewOpenAIProviderWithConfig creates an OpenAI provider with a custom
// client configuration, e.g. a different base URL.
func NewOpenAIProviderWithConfig(model, apiKey string, cfg openai.ClientConfig) *OpenAIProvider {
	return &OpenAIProvider{
		model:  model,
		apiKey: apiKey,
		client: openai.NewClientWithConfig(cfg),
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.apiKey != ""
}

func (o *OpenAIProvider) Backend() record.Backend { return record.BackendOpenAI }

func (o *OpenAIProvider) Model() string { return o.model }

// Generate sends a prompt to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("openai: %w", ErrNoCredentials)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}

	return resp.Choices[0].Message.Content, nil
}
