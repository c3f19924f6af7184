package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/parley/internal/fileops"
	"github.com/haasonsaas/parley/internal/history"
	"github.com/haasonsaas/parley/internal/mcp"
	"github.com/haasonsaas/parley/internal/research"
	"github.com/haasonsaas/parley/pkg/models"
)

const defaultMCPLoadTimeout = 30 * time.Second

// agentReminder nudges the assistant to keep going or wrap up between
// autonomous iterations. The shutdown token is a cross-mode kill switch and
// must stay verbatim.
const agentReminder = "You are in agent mode. Continue working on the task. " +
	"When everything is finished, run the done command. " +
	"In an emergency you can halt everything by replying " +
	research.ShutdownSentinel + "."

// Config wires an orchestrator. User, Assistant and History are required;
// everything else is optional.
type Config struct {
	User      Participant
	Assistant Assistant
	History   *history.Store

	// Tools supplies externally discovered commands. Nil disables MCP.
	Tools *mcp.Manager
	// Role selects which tool servers this conversation uses.
	Role mcp.Role

	// Files handles FileEdit commands. Nil reports file ops unavailable.
	Files *fileops.Handler

	// Budget caps agent-mode iterations. Nil means unlimited.
	Budget *research.Tracker

	// SaveDir is where default-named history snapshots land.
	SaveDir string

	// Notify prints a transient line to the local user.
	Notify func(text string)
	// Confirm asks the local user a yes/no question; nil answers "yes".
	Confirm func(prompt string) bool

	// MCPLoadTimeout bounds the first-cycle wait for tool discovery.
	MCPLoadTimeout time.Duration

	Logger *slog.Logger
}

// Orchestrator runs the conversation cycle loop described in the package
// doc. It is the only component that mutates history.
type Orchestrator struct {
	user      Participant
	assistant Assistant
	history   *history.Store
	tools     *mcp.Manager
	role      mcp.Role
	files     *fileops.Handler
	budget    *research.Tracker
	saveDir   string
	notifyFn  func(string)
	confirm   func(string) bool
	loadWait  time.Duration
	logger    *slog.Logger

	receivedAssistantDone bool
	exitAfterCycle        bool
	mcpLoadedOnce         bool
}

// New builds an orchestrator from the config.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	role := cfg.Role
	if role == "" {
		role = mcp.RoleChat
	}
	loadWait := cfg.MCPLoadTimeout
	if loadWait <= 0 {
		loadWait = defaultMCPLoadTimeout
	}
	return &Orchestrator{
		user:      cfg.User,
		assistant: cfg.Assistant,
		history:   cfg.History,
		tools:     cfg.Tools,
		role:      role,
		files:     cfg.Files,
		budget:    cfg.Budget,
		saveDir:   cfg.SaveDir,
		notifyFn:  cfg.Notify,
		confirm:   cfg.Confirm,
		loadWait:  loadWait,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Run drives cycles until end-of-input, a Once-flagged cycle completes, or
// the context is cancelled. Interruptions discard the draft turn and
// continue; other failures trigger a defensive save and continue.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.tools != nil {
		if report := o.tools.StatusReport(); report != "" {
			o.notify(report)
		}
	}

	for {
		err := o.runCycle(ctx)
		switch {
		case err == nil:
			if o.exitAfterCycle {
				return nil
			}
		case errors.Is(err, ErrInterrupted):
			if o.history.ResetUncommitted() {
				o.logger.Debug("discarded draft turn after interruption")
			}
			o.notify("Interrupted.")
		case errors.Is(err, ErrEndOfInput):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			o.logger.Error("conversation cycle failed", "error", err)
			o.crashSave()
			o.notify("Something went wrong: " + err.Error())
		}
	}
}

// runCycle is one user→assistant→user round, ending in a history commit.
func (o *Orchestrator) runCycle(ctx context.Context) error {
	o.receivedAssistantDone = false
	o.exitAfterCycle = false

	userStream, err := o.user.GetInputAndRunCommands(ctx)
	if err != nil {
		return err
	}

	// User events are fully materialised before the assistant sees any of
	// them: engine commands like clear and load must take effect first.
	var userEvents []Event
	for ev := range userStream {
		switch e := ev.(type) {
		case ErrorEvent:
			drainEvents(userStream)
			return e.Err
		case EngineCommand:
			if err := e.Execute(o); err != nil {
				drainEvents(userStream)
				return err
			}
		default:
			userEvents = append(userEvents, ev)
		}
	}

	if err := o.assistant.Prepare(ctx); err != nil {
		return err
	}
	if err := o.ensureToolsReady(); err != nil {
		return err
	}
	o.syncToolCommands()

	// Snapshot before recording so the recovery view and the live events
	// do not overlap.
	assistantSnapshot := o.history.HistoryFor(models.AuthorAssistant)
	for _, ev := range userEvents {
		if me, ok := ev.(MessageEvent); ok {
			o.history.Append(me.Message)
		}
	}
	assistantView := make([]Event, 0, len(userEvents)+1)
	assistantView = append(assistantView, HistoryRecoveryEvent{Messages: assistantSnapshot})
	assistantView = append(assistantView, userEvents...)
	if err := o.assistant.ConsumeEventsAndRender(ctx, assistantView); err != nil {
		return err
	}

	if err := o.user.ConsumeEventsAndRender(ctx, []Event{
		HistoryRecoveryEvent{Messages: o.history.HistoryFor(models.AuthorUser)},
	}); err != nil {
		return err
	}

	if err := o.assistantTurns(ctx); err != nil {
		return err
	}

	o.history.Commit()
	return nil
}

// assistantTurns runs the assistant once, then keeps it going in agent mode
// until it signals done or the budget runs out. Assistant events are
// forwarded to the user as they arrive, so rendering can begin while the
// assistant is still producing.
func (o *Orchestrator) assistantTurns(ctx context.Context) error {
	for {
		stream, err := o.assistant.GetInputAndRunCommands(ctx)
		if err != nil {
			return err
		}

		var produced []models.Message
		for ev := range stream {
			switch e := ev.(type) {
			case ErrorEvent:
				drainEvents(stream)
				return e.Err
			case EngineCommand:
				if err := e.Execute(o); err != nil {
					drainEvents(stream)
					return err
				}
			case MessageEvent:
				o.history.Append(e.Message)
				produced = append(produced, e.Message)
				if err := o.user.ConsumeEventsAndRender(ctx, []Event{ev}); err != nil {
					drainEvents(stream)
					return err
				}
			case NotificationEvent:
				if err := o.user.ConsumeEventsAndRender(ctx, []Event{ev}); err != nil {
					drainEvents(stream)
					return err
				}
			}
		}

		// The channel has closed, so every stream in this batch is
		// finished and safe to inspect.
		for _, msg := range produced {
			if strings.Contains(msg.ContentForAssistant(), research.ShutdownSentinel) {
				o.logger.Warn("assistant requested emergency shutdown")
				o.receivedAssistantDone = true
			}
		}

		if !o.assistant.AgentModeEnabled() || o.receivedAssistantDone {
			return nil
		}
		if o.budget != nil && !o.budget.Consume() {
			o.notify("Iteration budget exhausted; stopping autonomous continuation.")
			return nil
		}

		snapshot := o.history.HistoryFor(models.AuthorAssistant)
		reminder := models.NewInvisibleText(models.AuthorUser, agentReminder)
		o.history.Append(reminder)
		if err := o.assistant.ConsumeEventsAndRender(ctx, []Event{
			HistoryRecoveryEvent{Messages: snapshot},
			MessageEvent{Message: reminder},
		}); err != nil {
			return err
		}
	}
}

// ensureToolsReady blocks the first cycle on MCP discovery and walks the
// user through any server failures.
func (o *Orchestrator) ensureToolsReady() error {
	if o.tools == nil || o.mcpLoadedOnce {
		return nil
	}
	o.mcpLoadedOnce = true

	if !o.tools.WaitForInitialLoad(o.loadWait) {
		o.notify("Timed out waiting for MCP servers; continuing without the stragglers.")
	}
	if o.tools.HasErrors() {
		o.notify(o.tools.StatusReport())
		if o.confirm != nil && !o.confirm("Continue without the failed servers? [y/n] ") {
			return ErrEndOfInput
		}
		o.tools.AcknowledgeErrors()
	}
	return nil
}

func (o *Orchestrator) syncToolCommands() {
	if o.tools == nil {
		return
	}
	o.assistant.SyncExternalCommands(o.tools.Commands(o.role))
}

// crashSave preserves the conversation when a cycle fails unexpectedly.
func (o *Orchestrator) crashSave() {
	committed, uncommitted := o.history.Len()
	if committed+uncommitted == 0 {
		return
	}
	if err := (SaveHistory{}).Execute(o); err != nil {
		o.logger.Error("defensive save failed", "error", err)
	}
}

// drainEvents keeps consuming an abandoned stream so its producer can run
// to completion instead of blocking on an unread channel.
func drainEvents(stream <-chan Event) {
	go func() {
		for range stream {
		}
	}()
}

func (o *Orchestrator) notify(text string) {
	if o.notifyFn != nil {
		o.notifyFn(text)
	}
}
