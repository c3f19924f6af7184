package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/haasonsaas/parley/internal/commands"
	"github.com/haasonsaas/parley/internal/conversation"
	"github.com/haasonsaas/parley/internal/providers"
	"github.com/haasonsaas/parley/pkg/models"
)

const baseSystemPrompt = "You are parley, a command-line assistant. " +
	"Be concise. The user sees your replies in a terminal."

// Assistant drives an LLM backend as a conversation participant. Replies
// stream into the event channel as lazy messages, and command blocks found
// in the finished reply are executed through the control panel.
type Assistant struct {
	provider providers.ChatProvider
	panel    *ControlPanel
	logger   *slog.Logger

	transcript      []providers.Turn
	agentMode       bool
	commandsEnabled bool
	thinking        string
}

// NewAssistant wires a provider and a control panel into a participant.
func NewAssistant(provider providers.ChatProvider, panel *ControlPanel, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		provider:        provider,
		panel:           panel,
		logger:          logger.With("component", "assistant"),
		commandsEnabled: true,
	}
}

func (a *Assistant) Prepare(context.Context) error { return nil }

func (a *Assistant) AgentModeEnabled() bool     { return a.agentMode }
func (a *Assistant) SetAgentMode(on bool)       { a.agentMode = on }
func (a *Assistant) SetCommandsEnabled(on bool) { a.commandsEnabled = on }

func (a *Assistant) SetThinkingLevel(level string) {
	if level == "off" {
		level = ""
	}
	a.thinking = level
}

func (a *Assistant) SyncExternalCommands(cmds []*commands.Command) {
	a.panel.SyncExternal(cmds)
}

func (a *Assistant) Clear() {
	a.transcript = nil
}

func (a *Assistant) InitializeFromHistory(messages []models.Message) {
	a.rebuildTranscript(messages)
}

// ConsumeEventsAndRender updates the transcript: a history recovery at the
// head replaces it wholesale, live messages are appended.
func (a *Assistant) ConsumeEventsAndRender(_ context.Context, events []conversation.Event) error {
	for _, ev := range events {
		switch e := ev.(type) {
		case conversation.HistoryRecoveryEvent:
			a.rebuildTranscript(e.Messages)
		case conversation.MessageEvent:
			a.appendTurn(e.Message)
		}
	}
	return nil
}

func (a *Assistant) rebuildTranscript(messages []models.Message) {
	a.transcript = a.transcript[:0]
	for _, msg := range messages {
		a.appendTurn(msg)
	}
}

func (a *Assistant) appendTurn(msg models.Message) {
	content := msg.ContentForAssistant()
	if content == "" {
		return
	}
	a.transcript = append(a.transcript, providers.Turn{
		Role:    msg.Author(),
		Content: content,
	})
}

// GetInputAndRunCommands streams one reply. The message event is emitted as
// soon as streaming starts so rendering can follow the model live; command
// execution happens once the reply is complete.
func (a *Assistant) GetInputAndRunCommands(ctx context.Context) (<-chan conversation.Event, error) {
	req := &providers.Request{
		System:   a.systemPrompt(),
		Turns:    append([]providers.Turn(nil), a.transcript...),
		Thinking: a.thinking,
	}
	chunks, err := a.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan conversation.Event)
	go func() {
		defer close(events)

		textCh := make(chan string, 64)
		var msg models.Message
		var thinkCh chan string
		if a.thinking != "" {
			thinkCh = make(chan string, 64)
			msg = models.NewThinkingText(models.AuthorAssistant, thinkCh, textCh)
		} else {
			msg = models.NewStreamedText(models.AuthorAssistant, textCh)
		}
		events <- conversation.MessageEvent{Message: msg}

		// The reply is accumulated here rather than read back from the
		// message: the renderer may still be consuming the stream.
		var reply strings.Builder
		var streamErr error
		thinkingOpen := thinkCh != nil
		for chunk := range chunks {
			switch {
			case chunk.Err != nil:
				streamErr = chunk.Err
			case chunk.Thinking != "":
				if thinkingOpen {
					thinkCh <- chunk.Thinking
				}
			case chunk.Text != "":
				if thinkingOpen {
					close(thinkCh)
					thinkingOpen = false
				}
				reply.WriteString(chunk.Text)
				textCh <- chunk.Text
			}
		}
		if thinkingOpen {
			close(thinkCh)
		}
		close(textCh)

		if streamErr != nil {
			events <- conversation.ErrorEvent{Err: streamErr}
			return
		}
		a.transcript = append(a.transcript, providers.Turn{
			Role: models.AuthorAssistant, Content: reply.String(),
		})

		if a.commandsEnabled {
			for _, ev := range a.panel.RunCommands(ctx, reply.String()) {
				events <- ev
			}
		}
	}()
	return events, nil
}

func (a *Assistant) systemPrompt() string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	if a.agentMode {
		b.WriteString("\n\nYou are in agent mode: keep working autonomously " +
			"and run the done command when the task is complete.")
	}
	if a.commandsEnabled {
		if help := a.panel.HelpText(); help != "" {
			b.WriteString("\n\n")
			b.WriteString(help)
		}
	}
	return b.String()
}
