// Package llm holds the chat and embedding gateways used by the workflow
// engine. Generation, reformulation and assessment all go through Client.
package llm

import (
	"context"
	"fmt"
)

// Chat roles understood by every provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one prior turn or the current question.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single chat call. An empty Model selects the
// provider default.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// CompletionResponse carries the full text and usage of a call, streamed or not.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// StreamCallback receives each generated fragment in order. Returning an
// error aborts the stream.
type StreamCallback func(token string, index int) error

// Client is a chat model.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error)
	Name() string
	Models() []string
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider names a chat backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Options selects a provider and carries the keys for all of them; only the
// selected provider's key is required.
type Options struct {
	Provider     Provider
	OpenAIKey    string
	AnthropicKey string
}

// New returns the client for opts.Provider.
func New(opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(opts.AnthropicKey)
	case ProviderOpenAI:
		return NewOpenAIClient(opts.OpenAIKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}
}
