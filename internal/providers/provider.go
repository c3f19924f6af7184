// Package providers adapts LLM backends to a single streaming interface.
// A model is addressed as "provider/model", e.g. "anthropic/claude-sonnet-4"
// or "openai/gpt-4o".
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/parley/internal/config"
	"github.com/haasonsaas/parley/pkg/models"
)

// Turn is one entry of the transcript sent to the model.
type Turn struct {
	Role    models.Author
	Content string
}

// Request is a single completion request.
type Request struct {
	System string
	Turns  []Turn

	// Thinking is a reasoning-effort hint: "", "low", "medium" or "high".
	Thinking string
}

// Chunk is one streamed increment of the reply. Thinking and Text never
// both appear in one chunk. A non-nil Err terminates the stream.
type Chunk struct {
	Text     string
	Thinking string
	Err      error
}

// ChatProvider streams completions for a fixed model.
type ChatProvider interface {
	Name() string

	// Stream starts a completion and returns a channel of chunks. The
	// channel closes when the reply is complete or failed.
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// New resolves a "provider/model" spec into a provider.
func New(modelSpec string, keys config.APIKeysConfig, logger *slog.Logger) (ChatProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider, model, ok := strings.Cut(modelSpec, "/")
	if !ok {
		return nil, fmt.Errorf("model spec %q must be provider/model", modelSpec)
	}

	switch provider {
	case "anthropic":
		if keys.Anthropic == "" {
			return nil, fmt.Errorf("anthropic API key is not configured")
		}
		return newAnthropicProvider(model, keys.Anthropic, logger), nil
	case "openai":
		if keys.OpenAI == "" {
			return nil, fmt.Errorf("openai API key is not configured")
		}
		return newOpenAIProvider(model, keys.OpenAI, "", logger), nil
	case "venice":
		// Venice is OpenAI-compatible; it reuses the openai key slot.
		if keys.OpenAI == "" {
			return nil, fmt.Errorf("venice uses the openai API key slot, which is not configured")
		}
		return newOpenAIProvider(model, keys.OpenAI, veniceBaseURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
