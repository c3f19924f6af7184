package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Load reads the file at path, dispatching on its extension. Environment
// variables in the file are expanded before parsing. A missing path loads
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		cfg.ResolveAPIKeys()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json", ".json5":
		if err := json5.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".ini":
		if err := loadINI(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	cfg.ResolveAPIKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadINI maps the legacy INI layout onto Config:
//
//	[general]            default_model, working_dir
//	[api_keys]           anthropic, openai
//	[mcp_servers.chat]   name = command line
//	[mcp_servers.research]
//	[commands]           name = ON | OFF | AGENT_ONLY
func loadINI(data []byte, cfg *Config) error {
	file, err := ini.Load(data)
	if err != nil {
		return err
	}

	general := file.Section("general")
	if v := general.Key("default_model").String(); v != "" {
		cfg.DefaultModel = v
	}
	if v := general.Key("working_dir").String(); v != "" {
		cfg.WorkingDir = v
	}

	keys := file.Section("api_keys")
	if v := keys.Key("anthropic").String(); v != "" {
		cfg.APIKeys.Anthropic = v
	}
	if v := keys.Key("openai").String(); v != "" {
		cfg.APIKeys.OpenAI = v
	}

	if sec, err := file.GetSection("mcp_servers.chat"); err == nil {
		cfg.MCPServers.Chat = sectionToMap(sec)
	}
	if sec, err := file.GetSection("mcp_servers.research"); err == nil {
		cfg.MCPServers.Research = sectionToMap(sec)
	}

	if sec, err := file.GetSection("commands"); err == nil {
		if cfg.Commands == nil {
			cfg.Commands = map[string]CommandStatus{}
		}
		for _, key := range sec.Keys() {
			cfg.Commands[key.Name()] = CommandStatus(strings.ToUpper(key.Value()))
		}
	}

	logging := file.Section("logging")
	if v := logging.Key("level").String(); v != "" {
		cfg.Logging.Level = v
	}
	if v := logging.Key("format").String(); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

func sectionToMap(sec *ini.Section) map[string]string {
	out := map[string]string{}
	for _, key := range sec.Keys() {
		out[key.Name()] = key.Value()
	}
	return out
}
