package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/parley/internal/commands"
)

func TestCommands_ScalarSchemaBecomesSections(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"q": {"type": "string", "description": "search query"},
			"limit": {"type": "integer"}
		},
		"required": ["q"]
	}`)

	m := NewManager(testLogger())
	addClient(m, RoleChat, connectedClient("search-srv",
		ToolSchema{Name: "web_search", Description: "search the web", InputSchema: schema}))

	cmds := m.Commands(RoleChat)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	cmd := cmds[0]
	if cmd.Name != "web_search" || cmd.Source != "search-srv" {
		t.Errorf("command = %s source = %s", cmd.Name, cmd.Source)
	}
	if len(cmd.Sections) != 2 {
		t.Fatalf("sections = %+v", cmd.Sections)
	}
	// Sections are sorted by property name.
	if cmd.Sections[0].Name != "limit" || cmd.Sections[0].Required {
		t.Errorf("section 0 = %+v", cmd.Sections[0])
	}
	if cmd.Sections[1].Name != "q" || !cmd.Sections[1].Required {
		t.Errorf("section 1 = %+v", cmd.Sections[1])
	}
	if cmd.Sections[1].Help != "search query" {
		t.Errorf("help = %q", cmd.Sections[1].Help)
	}
}

func TestCommands_NestedSchemaCollapsesToDataJSON(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"filters": {"type": "object"},
			"q": {"type": "string"}
		},
		"required": ["q"]
	}`)

	m := NewManager(testLogger())
	addClient(m, RoleChat, connectedClient("srv",
		ToolSchema{Name: "complex", InputSchema: schema}))

	cmd := m.Commands(RoleChat)[0]
	if len(cmd.Sections) != 1 {
		t.Fatalf("sections = %+v", cmd.Sections)
	}
	if cmd.Sections[0].Name != dataJSONSection || !cmd.Sections[0].Required {
		t.Errorf("section = %+v", cmd.Sections[0])
	}
}

func TestCommands_DuplicateToolNamesGetServerPrefix(t *testing.T) {
	m := NewManager(testLogger())
	addClient(m, RoleChat, connectedClient("alpha", ToolSchema{Name: "search"}))
	addClient(m, RoleChat, connectedClient("beta", ToolSchema{Name: "search"}))

	cmds := m.Commands(RoleChat)
	if len(cmds) != 2 {
		t.Fatalf("got %d commands", len(cmds))
	}
	if cmds[0].Name != "alpha_search" || cmds[1].Name != "beta_search" {
		t.Errorf("names = %s, %s", cmds[0].Name, cmds[1].Name)
	}
}

func TestCommands_SkipsDisconnectedClients(t *testing.T) {
	m := NewManager(testLogger())
	broken := NewClient("broken", "unused", testLogger())
	broken.mu.Lock()
	broken.status = StatusError
	broken.tools = []ToolSchema{{Name: "ghost"}}
	broken.mu.Unlock()
	addClient(m, RoleChat, broken)

	if cmds := m.Commands(RoleChat); len(cmds) != 0 {
		t.Errorf("commands from a failed client: %v", cmds)
	}
}

func TestRunTool_CoercesAndValidatesArguments(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"q": {"type": "string"},
			"limit": {"type": "integer"}
		},
		"required": ["q"]
	}`)

	var gotArgs map[string]any
	server := &fakeServer{
		tools: []ToolSchema{{Name: "web_search", InputSchema: schema}},
		onCall: func(params callToolParams) (any, *RPCError) {
			gotArgs = params.Arguments
			return ToolCallResult{Content: []ToolResultContent{
				{Type: "text", Text: "ten results"},
			}}, nil
		},
	}
	c := startTestClient(t, server)

	m := NewManager(testLogger())
	addClient(m, RoleChat, c)
	cmd := m.Commands(RoleChat)[0]

	var output string
	env := &commands.Env{Output: func(text string) { output = text }}
	args := commands.Args{"q": {"golang"}, "limit": {"10"}}

	if err := cmd.Run(context.Background(), env, args); err != nil {
		t.Fatalf("run: %v", err)
	}
	if output != "ten results" {
		t.Errorf("output = %q", output)
	}
	if gotArgs["q"] != "golang" {
		t.Errorf("q = %v", gotArgs["q"])
	}
	// The integer section must arrive as a JSON number, not a string.
	if n, ok := gotArgs["limit"].(float64); !ok || n != 10 {
		t.Errorf("limit = %v (%T)", gotArgs["limit"], gotArgs["limit"])
	}
}

func TestRunTool_SchemaValidationRejectsBadArguments(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"q": {"type": "string"}},
		"required": ["q"]
	}`)

	called := false
	server := &fakeServer{
		tools: []ToolSchema{{Name: "strict", InputSchema: schema}},
		onCall: func(callToolParams) (any, *RPCError) {
			called = true
			return ToolCallResult{}, nil
		},
	}
	c := startTestClient(t, server)

	m := NewManager(testLogger())
	addClient(m, RoleChat, c)
	cmd := m.Commands(RoleChat)[0]

	// Empty args violate the required list; the server must never be called.
	err := cmd.Run(context.Background(), &commands.Env{}, commands.Args{})
	if err == nil || !strings.Contains(err.Error(), "invalid") {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Error("invalid arguments must not reach the server")
	}
}

func TestRunTool_DataJSONSplicedWithOverrides(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"filters": {"type": "object"},
			"q": {"type": "string"}
		}
	}`)

	var gotArgs map[string]any
	server := &fakeServer{
		tools: []ToolSchema{{Name: "complex", InputSchema: schema}},
		onCall: func(params callToolParams) (any, *RPCError) {
			gotArgs = params.Arguments
			return ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: "ok"}}}, nil
		},
	}
	c := startTestClient(t, server)

	m := NewManager(testLogger())
	addClient(m, RoleChat, c)
	cmd := m.Commands(RoleChat)[0]

	args := commands.Args{
		dataJSONSection: {`{"q": "original", "filters": {"lang": "go"}}`},
	}
	if err := cmd.Run(context.Background(), &commands.Env{}, args); err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotArgs["q"] != "original" {
		t.Errorf("q = %v", gotArgs["q"])
	}
	filters, ok := gotArgs["filters"].(map[string]any)
	if !ok || filters["lang"] != "go" {
		t.Errorf("filters = %v", gotArgs["filters"])
	}
}

func TestRunTool_ToolErrorResultSurfaces(t *testing.T) {
	server := &fakeServer{
		tools: []ToolSchema{{Name: "fragile"}},
		onCall: func(callToolParams) (any, *RPCError) {
			return ToolCallResult{
				IsError: true,
				Content: []ToolResultContent{{Type: "text", Text: "rate limited"}},
			}, nil
		},
	}
	c := startTestClient(t, server)

	m := NewManager(testLogger())
	addClient(m, RoleChat, c)
	cmd := m.Commands(RoleChat)[0]

	err := cmd.Run(context.Background(), &commands.Env{}, commands.Args{})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("err = %v", err)
	}
}
