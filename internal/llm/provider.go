// Package llm provides the LLM provider capability: a narrow Generate
// interface, concrete providers selected through a closed factory, and the
// higher-level prompt operations the pipeline is built on.
package llm

import (
	"context"
	"fmt"
)

// Provider is the opaque LLM capability the pipeline consumes. Every call
// site depends only on this interface; concrete implementations are selected
// by the factory below.
type Provider interface {
	// Name returns the provider identifier.
	Name() string
	// Generate sends one prompt with an optional system instruction and
	// returns the response text.
	Generate(ctx context.Context, userMessage, systemInstruction string) (string, error)
	// ListModels returns the model names available to the configured key.
	ListModels(ctx context.Context) ([]string, error)
}

// Kind identifies a concrete provider implementation. The set is closed:
// adding a provider means adding a constant and a factory case.
type Kind string

const (
	// KindClaude uses the Anthropic API (directly or via AWS Bedrock).
	KindClaude Kind = "claude"
	// KindDeepSeek uses the DeepSeek API.
	KindDeepSeek Kind = "deepseek"
)

// ParseKind validates a provider name from config or flags.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindClaude, KindDeepSeek:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown provider %q (valid: %s, %s)", s, KindClaude, KindDeepSeek)
	}
}

// Options carries provider construction settings.
type Options struct {
	// APIKey is the provider API key. Providers fall back to their
	// conventional environment variable when empty.
	APIKey string
	// Model is the model name; empty selects the provider default.
	Model string
	// UseBedrock routes Claude requests through AWS Bedrock.
	UseBedrock bool
	// AWSRegion is the Bedrock region.
	AWSRegion string
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string
}

// New constructs the provider for the given kind.
func New(kind Kind, opts Options) (Provider, error) {
	switch kind {
	case KindClaude:
		return NewClaude(opts)
	case KindDeepSeek:
		return NewDeepSeek(opts)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}
