package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/parley/pkg/models"
)

// veniceBaseURL is the OpenAI-compatible endpoint of Venice AI.
const veniceBaseURL = "https://api.venice.ai/api/v1"

type openaiProvider struct {
	name   string
	model  string
	client *openai.Client
	logger *slog.Logger
}

func newOpenAIProvider(model, apiKey, baseURL string, logger *slog.Logger) *openaiProvider {
	name := "openai"
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
		name = "venice"
	}
	return &openaiProvider{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
		logger: logger.With("provider", name, "model", model),
	}
}

func (p *openaiProvider) Name() string { return p.name + "/" + p.model }

func (p *openaiProvider) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:  p.model,
		Stream: true,
	}
	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	for _, turn := range req.Turns {
		if turn.Content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if turn.Role == models.AuthorAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role: role, Content: turn.Content,
		})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				p.logger.Warn("stream failed", "error", err)
				out <- Chunk{Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if text := resp.Choices[0].Delta.Content; text != "" {
				out <- Chunk{Text: text}
			}
		}
	}()
	return out, nil
}
