package conversation

import (
	"context"

	"github.com/haasonsaas/parley/internal/commands"
	"github.com/haasonsaas/parley/pkg/models"
)

// Participant is one side of the conversation. The orchestrator calls the
// methods in a fixed order each cycle: Prepare, ConsumeEventsAndRender for
// the receiving side, GetInputAndRunCommands for the acting side.
//
// GetInputAndRunCommands returns a stream that closes when the turn is
// complete. Failures travel in-band as ErrorEvent; producers must stop
// sending once the context is cancelled.
type Participant interface {
	// Prepare is an optional warm-up before the participant's turn.
	Prepare(ctx context.Context) error

	// ConsumeEventsAndRender shows the receiving side what just happened.
	// A HistoryRecoveryEvent at the head replaces the participant's view
	// of the conversation so far.
	ConsumeEventsAndRender(ctx context.Context, events []Event) error

	// GetInputAndRunCommands produces the participant's events for this
	// turn, including side effects of any commands it ran.
	GetInputAndRunCommands(ctx context.Context) (<-chan Event, error)

	// Clear resets the participant's conversation view.
	Clear()

	// InitializeFromHistory rebuilds the view from a loaded snapshot.
	InitializeFromHistory(messages []models.Message)
}

// Assistant extends Participant with the controls the orchestrator and
// engine commands need on the model-driven side.
type Assistant interface {
	Participant

	// AgentModeEnabled reports whether the assistant keeps taking turns
	// until it signals completion.
	AgentModeEnabled() bool
	SetAgentMode(enabled bool)

	// SetCommandsEnabled toggles parsing of commands out of the
	// assistant's replies.
	SetCommandsEnabled(enabled bool)

	// SetThinkingLevel forwards a reasoning-effort hint to the model.
	SetThinkingLevel(level string)

	// SyncExternalCommands replaces the assistant's tool-backed commands
	// with the given set.
	SyncExternalCommands(cmds []*commands.Command)
}
