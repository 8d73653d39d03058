package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xiaot623/gogo/chatbot/internal/logger"
)

const (
	// EnvGogoMode is the environment variable name for mode selection.
	EnvGogoMode = "GOGO_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"

	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Options selects and configures a backend.
type Options struct {
	Provider     string
	BaseURL      string
	APIKey       string
	GeminiAPIKey string
	Timeout      time.Duration
	MaxRetries   int
}

// NewLLMClient creates an LLM client. GOGO_MODE=MOCK always yields the mock
// client; otherwise Provider picks the backend.
func NewLLMClient(ctx context.Context, opts Options) (LLMClient, error) {
	if os.Getenv(EnvGogoMode) == ModeMock {
		logger.Log.Info("GOGO_MODE=MOCK detected, using mock LLM client")
		return NewMockClient(), nil
	}

	switch opts.Provider {
	case "", ProviderHTTP:
		return NewClient(opts.BaseURL, opts.APIKey, opts.Timeout), nil
	case ProviderOpenAI:
		return NewOpenAIClient(opts.BaseURL, opts.APIKey, opts.Timeout, opts.MaxRetries), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, opts.GeminiAPIKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", opts.Provider)
	}
}
