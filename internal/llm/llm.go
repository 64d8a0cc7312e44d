// Package llm wraps the completion backends an audit can run against.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
	"github.com/sashabaranov/go-openai"

	"github.com/TobiSchelling/codedd/internal/record"
)

// ErrNoCredentials is returned when the selected backend has no API key.
var ErrNoCredentials = errors.New("no API key configured for provider")

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
	// Backend identifies the provider in audit rows.
	Backend() record.Backend
	// Model is the model name sent with each request.
	Model() string
}

// Settings selects and configures a provider.
type Settings struct {
	Backend        record.Backend
	AnthropicModel string
	AnthropicKey   string
	OpenAIModel    string
	OpenAIKey      string
	OllamaModel    string
	OllamaURL      string
}

// CreateProvider returns the provider named by s.Backend, or an error when
// it cannot be used.
func CreateProvider(ctx context.Context, s Settings) (Provider, error) {
	var p Provider
	switch s.Backend {
	case record.BackendAnthropic:
		if s.AnthropicKey == "" {
			return nil, fmt.Errorf("%s: %w (set ANTHROPIC_API_KEY)", s.Backend, ErrNoCredentials)
		}
		p = NewAnthropicProvider(s.AnthropicModel, s.AnthropicKey)
	case record.BackendOpenAI:
		if s.OpenAIKey == "" {
			return nil, fmt.Errorf("%s: %w (set OPENAI_API_KEY)", s.Backend, ErrNoCredentials)
		}
		p = NewOpenAIProvider(s.OpenAIModel, s.OpenAIKey)
	case record.BackendOllama:
		o := NewOllamaProvider(s.OllamaModel, s.OllamaURL)
		if err := o.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ollama not available: %w", err)
		}
		p = o
	default:
		return nil, fmt.Errorf("unknown provider %q", s.Backend)
	}
	clog.FromContext(ctx).Infof("Using %s with model: %s", p.Backend(), p.Model())
	return p, nil
}

// IsRetryable reports whether err is a transient failure worth retrying:
// rate limits, overload, 5xx responses and network errors.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return retryableStatus(anthropicErr.StatusCode)
	}
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return retryableStatus(openaiErr.HTTPStatusCode)
	}
	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) {
		return retryableStatus(requestErr.HTTPStatusCode)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == 529:
		return true
	case code >= 500 && code != http.StatusNotImplemented:
		return true
	}
	return false
}
