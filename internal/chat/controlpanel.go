// Package chat implements the interactive conversation mode: the terminal
// user participant, the LLM assistant participant, and the control panel of
// commands both sides can invoke.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/haasonsaas/parley/internal/commands"
	"github.com/haasonsaas/parley/internal/config"
	"github.com/haasonsaas/parley/internal/conversation"
	"github.com/haasonsaas/parley/pkg/models"
)

const builtinSource = "builtin"

// ControlPanel owns the command registry and parser for one conversation.
// It parses command blocks out of assistant replies, dispatches the valid
// ones, and turns their effects into conversation events.
type ControlPanel struct {
	registry *commands.Registry
	parser   *commands.Parser
	cfg      *config.Config
	env      *commands.Env
	logger   *slog.Logger

	// pending collects events emitted by builtin commands during a
	// RunCommands pass. Single-threaded per turn.
	pending []conversation.Event

	externalSources map[string]bool
}

// NewControlPanel builds a panel with the built-in commands registered.
// Commands configured OFF are skipped; AGENT_ONLY commands are registered
// only when agentMode is set.
func NewControlPanel(cfg *config.Config, env *commands.Env, agentMode bool, logger *slog.Logger) *ControlPanel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if env == nil {
		env = &commands.Env{}
	}
	registry := commands.NewRegistry(logger)
	p := &ControlPanel{
		registry:        registry,
		parser:          commands.NewParser(registry),
		cfg:             cfg,
		env:             env,
		logger:          logger.With("component", "controlpanel"),
		externalSources: map[string]bool{},
	}
	p.registerBuiltins(agentMode)
	return p
}

// emit queues an event produced by a command for the current pass.
func (p *ControlPanel) emit(ev conversation.Event) {
	p.pending = append(p.pending, ev)
}

// SyncExternal replaces the externally discovered commands with the given
// set, dropping commands whose server has gone away.
func (p *ControlPanel) SyncExternal(cmds []*commands.Command) {
	for source := range p.externalSources {
		p.registry.UnregisterSource(source)
	}
	p.externalSources = map[string]bool{}
	for _, cmd := range cmds {
		if cmd.Source == "" || cmd.Source == builtinSource {
			continue
		}
		p.externalSources[cmd.Source] = true
		p.registry.Register(cmd)
	}
}

// RunCommands parses the text and executes every valid command in source
// order. Outputs become CommandOutput messages; parse errors are reported
// back to the assistant as a single notification.
func (p *ControlPanel) RunCommands(ctx context.Context, text string) []conversation.Event {
	results := p.parser.Parse(text)
	if len(results) == 0 {
		return nil
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].StartLine < results[j].StartLine
	})

	var events []conversation.Event
	for _, r := range results {
		if !r.Valid() || r.Command.Run == nil {
			continue
		}
		p.pending = nil

		env := *p.env
		name := r.CommandName
		env.Output = func(text string) {
			p.emit(conversation.MessageEvent{
				Message: models.NewCommandOutput(name, text),
			})
		}

		p.logger.Debug("running command", "command", name)
		if err := r.Command.Run(ctx, &env, r.Args); err != nil {
			p.emit(conversation.MessageEvent{
				Message: models.NewAssistantNotification(
					fmt.Sprintf("Command %s failed: %v", name, err)),
			})
		}
		events = append(events, p.pending...)
		p.pending = nil
	}

	if report := commands.ErrorReport(results); report != "" {
		events = append(events, conversation.MessageEvent{
			Message: models.NewAssistantNotification(report),
		})
	}
	return events
}

// HelpText renders the command reference that goes into the assistant's
// system prompt: one example block per command with commented sections.
func (p *ControlPanel) HelpText() string {
	names := p.registry.Names()
	if len(names) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("You can run commands by writing blocks of the following form ")
	b.WriteString("anywhere in your reply. To show an example without running it, ")
	b.WriteString("prefix each line with #.\n\n")
	for _, name := range names {
		cmd, ok := p.registry.Get(name)
		if !ok {
			continue
		}
		if cmd.Help != "" {
			fmt.Fprintf(&b, "# %s\n", cmd.Help)
		}
		fmt.Fprintf(&b, "<<< %s\n", cmd.Name)
		for _, s := range cmd.Sections {
			fmt.Fprintf(&b, "///%s\n", s.Name)
			switch {
			case s.Help != "" && s.Required:
				fmt.Fprintf(&b, "# %s (required)\n", s.Help)
			case s.Help != "":
				fmt.Fprintf(&b, "# %s (optional)\n", s.Help)
			case s.Required:
				b.WriteString("# (required)\n")
			default:
				b.WriteString("# (optional)\n")
			}
		}
		b.WriteString(">>>\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
