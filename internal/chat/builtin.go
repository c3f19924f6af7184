package chat

import (
	"context"
	"fmt"

	"github.com/haasonsaas/parley/internal/commands"
	"github.com/haasonsaas/parley/internal/conversation"
	"github.com/haasonsaas/parley/internal/fileops"
)

// registerBuiltins installs the assistant-facing commands, honouring the
// per-command configuration status.
func (p *ControlPanel) registerBuiltins(agentMode bool) {
	for _, cmd := range p.builtinCommands() {
		if !p.cfg.CommandEnabled(cmd.Name, agentMode) {
			p.logger.Debug("builtin command disabled by config", "command", cmd.Name)
			continue
		}
		cmd.Source = builtinSource
		p.registry.Register(cmd)
	}
}

func (p *ControlPanel) builtinCommands() []*commands.Command {
	done := &commands.Command{
		Name: "done",
		Help: "signal that the current agent-mode task is complete",
		Run: func(context.Context, *commands.Env, commands.Args) error {
			p.emit(conversation.AssistantDone{})
			return nil
		},
	}

	createFile := &commands.Command{
		Name: "create_file",
		Help: "create a file (asks the user before overwriting)",
		Run:  p.fileEditRun(fileops.ModeCreate),
	}
	createFile.AddSection("path", true, "file path relative to the working directory")
	createFile.AddSection("content", true, "the full file contents")

	appendFile := &commands.Command{
		Name: "append_file",
		Help: "append text to a file, creating it if missing",
		Run:  p.fileEditRun(fileops.ModeAppend),
	}
	appendFile.AddSection("path", true, "file path relative to the working directory")
	appendFile.AddSection("content", true, "the text to append")

	prependFile := &commands.Command{
		Name: "prepend_file",
		Help: "prepend text to a file, creating it if missing",
		Run:  p.fileEditRun(fileops.ModePrepend),
	}
	prependFile.AddSection("path", true, "file path relative to the working directory")
	prependFile.AddSection("content", true, "the text to prepend")

	editSection := &commands.Command{
		Name: "update_markdown_section",
		Help: "replace or extend one section of a markdown file",
		Validate: func(args commands.Args) []string {
			switch args.Get("submode") {
			case "", string(fileops.SubmodeUpdate), string(fileops.SubmodeAppend):
				return nil
			default:
				return []string{fmt.Sprintf("submode must be %q or %q",
					fileops.SubmodeUpdate, fileops.SubmodeAppend)}
			}
		},
		Run: func(_ context.Context, _ *commands.Env, args commands.Args) error {
			p.emit(conversation.FileEdit{Edit: fileops.Edit{
				Path:        args.Get("path"),
				Content:     args.Get("content"),
				Mode:        fileops.ModeSection,
				SectionPath: args.Get("section"),
				Submode:     fileops.SectionSubmode(args.Get("submode")),
			}})
			return nil
		},
	}
	editSection.AddSection("path", true, "markdown file path relative to the working directory")
	editSection.AddSection("section", true, "section path like 'Chapter 1 > Overview'; append __preface to target text before the first subsection")
	editSection.AddSection("content", true, "the new section body")
	editSection.AddSection("submode", false, "update (replace, default) or append")

	return []*commands.Command{done, createFile, appendFile, prependFile, editSection}
}

// fileEditRun builds a Run func that forwards a whole-file edit to the
// orchestrator as a FileEdit event.
func (p *ControlPanel) fileEditRun(mode fileops.Mode) commands.RunFunc {
	return func(_ context.Context, _ *commands.Env, args commands.Args) error {
		p.emit(conversation.FileEdit{Edit: fileops.Edit{
			Path:    args.Get("path"),
			Content: args.Get("content"),
			Mode:    mode,
		}})
		return nil
	}
}
