package providers

import (
	"context"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/parley/pkg/models"
)

const anthropicMaxTokens = 8192

// thinkingBudgets maps effort hints to thinking token budgets.
var thinkingBudgets = map[string]int64{
	"low":    2048,
	"medium": 8192,
	"high":   16384,
}

type anthropicProvider struct {
	model  string
	client anthropic.Client
	logger *slog.Logger
}

func newAnthropicProvider(model, apiKey string, logger *slog.Logger) *anthropicProvider {
	return &anthropicProvider{
		model:  model,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: logger.With("provider", "anthropic", "model", model),
	}
}

func (p *anthropicProvider) Name() string { return "anthropic/" + p.model }

func (p *anthropicProvider) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  convertTurns(req.Turns),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if budget, ok := thinkingBudgets[req.Thinking]; ok {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- Chunk{Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- Chunk{Thinking: delta.Thinking}
				}
			}
		}
		if err := stream.Err(); err != nil {
			p.logger.Warn("stream failed", "error", err)
			out <- Chunk{Err: err}
		}
	}()
	return out, nil
}

// convertTurns maps the transcript to Anthropic messages. System-authored
// messages (command outputs, notifications) travel as user turns, which is
// how the model receives environmental input.
func convertTurns(turns []Turn) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, turn := range turns {
		if turn.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == models.AuthorAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
