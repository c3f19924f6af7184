package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
default_model: openai/gpt-4o
working_dir: /tmp/work
api_keys:
  openai: sk-test
mcp_servers:
  chat:
    search: "npx -y mcp-search"
commands:
  create_file: AGENT_ONLY
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultModel != "openai/gpt-4o" {
		t.Errorf("default_model = %q", cfg.DefaultModel)
	}
	if cfg.APIKeys.OpenAI != "sk-test" {
		t.Errorf("openai key = %q", cfg.APIKeys.OpenAI)
	}
	if cfg.MCPServers.Chat["search"] != "npx -y mcp-search" {
		t.Errorf("chat servers = %v", cfg.MCPServers.Chat)
	}
	if cfg.Commands["create_file"] != CommandAgentOnly {
		t.Errorf("command status = %q", cfg.Commands["create_file"])
	}
}

func TestLoad_JSON5AllowsCommentsAndEnvExpansion(t *testing.T) {
	t.Setenv("PARLEY_TEST_MODEL", "anthropic/claude-sonnet-4")
	path := writeConfig(t, "config.json5", `{
  // comments are fine in json5
  default_model: "${PARLEY_TEST_MODEL}",
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultModel != "anthropic/claude-sonnet-4" {
		t.Errorf("default_model = %q", cfg.DefaultModel)
	}
}

func TestLoad_LegacyINI(t *testing.T) {
	path := writeConfig(t, "config.ini", `
[general]
default_model = openai/gpt-4o
working_dir = /tmp/ini

[api_keys]
openai = sk-ini

[mcp_servers.chat]
search = npx -y mcp-search

[commands]
create_file = off
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultModel != "openai/gpt-4o" || cfg.WorkingDir != "/tmp/ini" {
		t.Errorf("general section: %+v", cfg)
	}
	if cfg.MCPServers.Chat["search"] != "npx -y mcp-search" {
		t.Errorf("chat servers = %v", cfg.MCPServers.Chat)
	}
	if cfg.Commands["create_file"] != CommandOff {
		t.Errorf("command status = %q", cfg.Commands["create_file"])
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultModel == "" {
		t.Error("defaults should include a model")
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "config.toml", "x = 1")
	if _, err := Load(path); err == nil {
		t.Fatal("unsupported format should fail")
	}
}

func TestLoad_BadCommandStatusRejected(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
default_model: openai/gpt-4o
commands:
  create_file: SOMETIMES
`)
	if _, err := Load(path); err == nil {
		t.Fatal("unknown command status should fail validation")
	}
}

func TestCommandEnabled(t *testing.T) {
	cfg := Default()
	cfg.Commands = map[string]CommandStatus{
		"create_file": CommandAgentOnly,
		"dangerous":   CommandOff,
	}

	tests := []struct {
		name      string
		agentMode bool
		want      bool
	}{
		{"unconfigured", false, true},
		{"create_file", false, false},
		{"create_file", true, true},
		{"dangerous", false, false},
		{"dangerous", true, false},
	}
	for _, tt := range tests {
		if got := cfg.CommandEnabled(tt.name, tt.agentMode); got != tt.want {
			t.Errorf("CommandEnabled(%s, agent=%v) = %v, want %v",
				tt.name, tt.agentMode, got, tt.want)
		}
	}
}
