package conversation

import (
	"github.com/haasonsaas/parley/internal/fileops"
	"github.com/haasonsaas/parley/internal/history"
)

// EngineCommand is an event the orchestrator itself executes: control, not
// content. The dispatch loop strips these from the stream it forwards to
// the next participant.
type EngineCommand interface {
	Event
	Execute(o *Orchestrator) error
}

// ClearHistory wipes the conversation and every participant's view of it.
type ClearHistory struct{}

func (ClearHistory) isEvent() {}

func (ClearHistory) Execute(o *Orchestrator) error {
	o.history.Clear()
	o.user.Clear()
	o.assistant.Clear()
	o.notify("Conversation cleared.")
	return nil
}

// SaveHistory writes the conversation to disk. An empty path picks a
// timestamped default in the save directory.
type SaveHistory struct {
	Path string
}

func (SaveHistory) isEvent() {}

func (c SaveHistory) Execute(o *Orchestrator) error {
	path := c.Path
	if path == "" {
		path = history.DefaultSavePath(o.saveDir)
	}
	if err := o.history.Save(path); err != nil {
		o.notify("Could not save the conversation: " + err.Error())
		return nil
	}
	o.notify("Saved conversation to " + path)
	return nil
}

// LoadHistory replaces the conversation with a saved snapshot and
// re-initialises both participants from it.
type LoadHistory struct {
	Path string
}

func (LoadHistory) isEvent() {}

func (c LoadHistory) Execute(o *Orchestrator) error {
	if err := o.history.Load(c.Path); err != nil {
		o.notify("Could not load the conversation: " + err.Error())
		return nil
	}
	messages := o.history.Messages()
	o.user.InitializeFromHistory(messages)
	o.assistant.InitializeFromHistory(messages)
	o.notify("Loaded conversation from " + c.Path)
	return nil
}

// Exit terminates the conversation loop.
type Exit struct{}

func (Exit) isEvent() {}

func (Exit) Execute(o *Orchestrator) error {
	return ErrEndOfInput
}

// AgentMode toggles autonomous continuation on the assistant side.
type AgentMode struct {
	Enabled bool
}

func (AgentMode) isEvent() {}

func (c AgentMode) Execute(o *Orchestrator) error {
	o.assistant.SetAgentMode(c.Enabled)
	if c.Enabled {
		o.notify("Agent mode on.")
	} else {
		o.notify("Agent mode off.")
	}
	return nil
}

// AssistantDone marks the current agent-mode cycle complete.
type AssistantDone struct{}

func (AssistantDone) isEvent() {}

func (AssistantDone) Execute(o *Orchestrator) error {
	o.receivedAssistantDone = true
	return nil
}

// LLMCommandsExecution toggles whether commands are parsed out of the
// assistant's replies.
type LLMCommandsExecution struct {
	Enabled bool
}

func (LLMCommandsExecution) isEvent() {}

func (c LLMCommandsExecution) Execute(o *Orchestrator) error {
	o.assistant.SetCommandsEnabled(c.Enabled)
	return nil
}

// Once makes the loop exit after the current cycle completes.
type Once struct {
	Enabled bool
}

func (Once) isEvent() {}

func (c Once) Execute(o *Orchestrator) error {
	o.exitAfterCycle = c.Enabled
	return nil
}

// ThinkingLevel forwards a reasoning-effort hint to the assistant.
type ThinkingLevel struct {
	Level string
}

func (ThinkingLevel) isEvent() {}

func (c ThinkingLevel) Execute(o *Orchestrator) error {
	o.assistant.SetThinkingLevel(c.Level)
	o.notify("Thinking level set to " + c.Level + ".")
	return nil
}

// DeepResearchBudget caps the autonomous iterations of a research session.
type DeepResearchBudget struct {
	N int
}

func (DeepResearchBudget) isEvent() {}

func (c DeepResearchBudget) Execute(o *Orchestrator) error {
	if o.budget == nil {
		o.notify("No research session to budget.")
		return nil
	}
	o.budget.SetBudget(c.N)
	return nil
}

// FileEdit delegates a file change to the file-operations handler.
type FileEdit struct {
	Edit fileops.Edit
}

func (FileEdit) isEvent() {}

func (c FileEdit) Execute(o *Orchestrator) error {
	if o.files == nil {
		o.notify("File operations are not available in this mode.")
		return nil
	}
	outcome, err := o.files.Apply(c.Edit)
	if err != nil {
		o.notify("File edit failed: " + err.Error())
		return nil
	}
	o.notify(outcome)
	return nil
}
