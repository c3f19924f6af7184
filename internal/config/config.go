// Package config loads parley's configuration from YAML, JSON5 or legacy
// INI files, with environment-variable expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// CommandStatus gates a built-in command per configuration.
type CommandStatus string

const (
	// CommandOn makes the command available in every mode.
	CommandOn CommandStatus = "ON"
	// CommandOff removes the command entirely.
	CommandOff CommandStatus = "OFF"
	// CommandAgentOnly restricts the command to agent-mode sessions.
	CommandAgentOnly CommandStatus = "AGENT_ONLY"
)

// Config is the main configuration structure for parley.
type Config struct {
	// DefaultModel is a "provider/model" spec, e.g. "anthropic/claude-sonnet-4".
	DefaultModel string `yaml:"default_model" json:"default_model"`

	// WorkingDir is where file commands and history saves land.
	// Defaults to the current directory.
	WorkingDir string `yaml:"working_dir" json:"working_dir"`

	APIKeys APIKeysConfig `yaml:"api_keys" json:"api_keys"`

	// MCPServers maps server name → command line, per mode.
	MCPServers MCPServersConfig `yaml:"mcp_servers" json:"mcp_servers"`

	// Commands overrides the availability of built-in commands by name.
	Commands map[string]CommandStatus `yaml:"commands" json:"commands"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic" json:"anthropic"`
	OpenAI    string `yaml:"openai" json:"openai"`
}

type MCPServersConfig struct {
	Chat     map[string]string `yaml:"chat" json:"chat"`
	Research map[string]string `yaml:"research" json:"research"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultModel: "anthropic/claude-sonnet-4",
		WorkingDir:   ".",
		Commands:     map[string]CommandStatus{},
		Logging:      LoggingConfig{Level: "info", Format: "json"},
	}
}

// DefaultPath returns the conventional config location, or "" when the user
// config dir cannot be determined.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "parley", "config.yaml")
}

// CommandEnabled reports whether a built-in command should be registered,
// given the agent-mode state. Unconfigured commands default to on.
func (c *Config) CommandEnabled(name string, agentMode bool) bool {
	switch c.Commands[name] {
	case CommandOff:
		return false
	case CommandAgentOnly:
		return agentMode
	default:
		return true
	}
}

// Validate checks the parts of the config that would otherwise fail late.
func (c *Config) Validate() error {
	if c.DefaultModel == "" {
		return fmt.Errorf("default_model is required")
	}
	for name, status := range c.Commands {
		switch status {
		case CommandOn, CommandOff, CommandAgentOnly:
		default:
			return fmt.Errorf("command %s: unknown status %q", name, status)
		}
	}
	return nil
}

// ResolveAPIKeys fills empty keys from the environment.
func (c *Config) ResolveAPIKeys() {
	if c.APIKeys.Anthropic == "" {
		c.APIKeys.Anthropic = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.APIKeys.OpenAI == "" {
		c.APIKeys.OpenAI = os.Getenv("OPENAI_API_KEY")
	}
}
