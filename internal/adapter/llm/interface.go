// Package llm provides an abstraction for LLM API clients.
package llm

import "context"

// LLMClient defines the interface for LLM API operations.
type LLMClient interface {
	// CreateChatCompletion sends a chat completion request and waits for the
	// full reply.
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)

	// ListModels retrieves the list of models the provider serves.
	ListModels(ctx context.Context) ([]Model, error)
}

var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*OpenAIClient)(nil)
	_ LLMClient = (*GeminiClient)(nil)
	_ LLMClient = (*MockClient)(nil)
)
