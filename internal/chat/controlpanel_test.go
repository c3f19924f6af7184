package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/haasonsaas/parley/internal/commands"
	"github.com/haasonsaas/parley/internal/config"
	"github.com/haasonsaas/parley/internal/conversation"
	"github.com/haasonsaas/parley/internal/fileops"
	"github.com/haasonsaas/parley/pkg/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPanel(t *testing.T, cfg *config.Config, agentMode bool) *ControlPanel {
	t.Helper()
	return NewControlPanel(cfg, &commands.Env{}, agentMode, quietLogger())
}

func TestControlPanel_BuiltinsRegistered(t *testing.T) {
	p := newTestPanel(t, nil, false)

	for _, name := range []string{"done", "create_file", "append_file", "prepend_file", "update_markdown_section"} {
		if _, ok := p.registry.Get(name); !ok {
			t.Errorf("builtin %s missing", name)
		}
	}
}

func TestControlPanel_ConfigGatesBuiltins(t *testing.T) {
	cfg := config.Default()
	cfg.Commands = map[string]config.CommandStatus{
		"create_file": config.CommandOff,
		"done":        config.CommandAgentOnly,
	}

	chatPanel := newTestPanel(t, cfg, false)
	if _, ok := chatPanel.registry.Get("create_file"); ok {
		t.Error("create_file should be off")
	}
	if _, ok := chatPanel.registry.Get("done"); ok {
		t.Error("done should be agent-only")
	}

	agentPanel := newTestPanel(t, cfg, true)
	if _, ok := agentPanel.registry.Get("done"); !ok {
		t.Error("done should be available in agent mode")
	}
}

func TestControlPanel_CreateFileBlockEmitsFileEdit(t *testing.T) {
	p := newTestPanel(t, nil, false)

	events := p.RunCommands(context.Background(), `Sure, here you go.

<<< create_file
///path
notes/todo.md
///content
- buy milk
- write tests
>>>
`)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	edit, ok := events[0].(conversation.FileEdit)
	if !ok {
		t.Fatalf("event = %T", events[0])
	}
	if edit.Edit.Path != "notes/todo.md" || edit.Edit.Mode != fileops.ModeCreate {
		t.Errorf("edit = %+v", edit.Edit)
	}
	if edit.Edit.Content != "- buy milk\n- write tests" {
		t.Errorf("content = %q", edit.Edit.Content)
	}
}

func TestControlPanel_DoneEmitsAssistantDone(t *testing.T) {
	p := newTestPanel(t, nil, false)

	events := p.RunCommands(context.Background(), "<<< done\n>>>")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if _, ok := events[0].(conversation.AssistantDone); !ok {
		t.Errorf("event = %T", events[0])
	}
}

func TestControlPanel_MissingSectionReportsError(t *testing.T) {
	p := newTestPanel(t, nil, false)

	events := p.RunCommands(context.Background(), "<<< create_file\n///path\n/tmp/x.txt\n>>>")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 notification", len(events))
	}
	me, ok := events[0].(conversation.MessageEvent)
	if !ok {
		t.Fatalf("event = %T", events[0])
	}
	note, ok := me.Message.(*models.AssistantNotification)
	if !ok {
		t.Fatalf("message = %T", me.Message)
	}
	if !strings.Contains(note.ContentForAssistant(), "content") {
		t.Errorf("report should name the missing section: %q", note.ContentForAssistant())
	}
}

func TestControlPanel_CommandOutputBecomesMessage(t *testing.T) {
	p := newTestPanel(t, nil, false)
	p.SyncExternal([]*commands.Command{{
		Name:   "search",
		Source: "search-srv",
		Run: func(_ context.Context, env *commands.Env, args commands.Args) error {
			env.Output("three results for " + args.Get("q"))
			return nil
		},
		Sections: []commands.Section{{Name: "q", Required: true}},
	}})

	events := p.RunCommands(context.Background(), "<<< search\n///q\ngolang\n>>>")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	me := events[0].(conversation.MessageEvent)
	out, ok := me.Message.(*models.CommandOutput)
	if !ok {
		t.Fatalf("message = %T", me.Message)
	}
	if out.Command != "search" || !strings.Contains(out.Output, "three results for golang") {
		t.Errorf("output = %+v", out)
	}
}

func TestControlPanel_SyncExternalReplacesOldServers(t *testing.T) {
	p := newTestPanel(t, nil, false)
	p.SyncExternal([]*commands.Command{
		{Name: "old_tool", Source: "gone-srv"},
	})
	p.SyncExternal([]*commands.Command{
		{Name: "new_tool", Source: "live-srv"},
	})

	if _, ok := p.registry.Get("old_tool"); ok {
		t.Error("commands from vanished servers must be dropped")
	}
	if _, ok := p.registry.Get("new_tool"); !ok {
		t.Error("new command missing")
	}
	if _, ok := p.registry.Get("done"); !ok {
		t.Error("builtins must survive a sync")
	}
}

func TestControlPanel_FailingCommandNotifiesAssistant(t *testing.T) {
	p := newTestPanel(t, nil, false)
	p.SyncExternal([]*commands.Command{{
		Name:   "flaky",
		Source: "srv",
		Run: func(context.Context, *commands.Env, commands.Args) error {
			return context.DeadlineExceeded
		},
	}})

	events := p.RunCommands(context.Background(), "<<< flaky\n>>>")
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	me := events[0].(conversation.MessageEvent)
	if !strings.Contains(me.Message.ContentForAssistant(), "flaky") {
		t.Errorf("failure note = %q", me.Message.ContentForAssistant())
	}
}

func TestControlPanel_HelpTextShowsBlocks(t *testing.T) {
	p := newTestPanel(t, nil, false)

	help := p.HelpText()
	if !strings.Contains(help, "<<< create_file") {
		t.Error("help should show the block opener")
	}
	if !strings.Contains(help, "///path") || !strings.Contains(help, ">>>") {
		t.Error("help should show section markers and the terminator")
	}
}
