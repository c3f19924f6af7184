package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/parley/internal/commands"
)

// dataJSONSection is the single-section fallback used when a tool's input
// schema contains nested values that section text cannot express.
const dataJSONSection = "data_json"

// Commands converts every tool on the role's connected servers into
// registrable commands. Tool names are prefixed with the server name when
// two servers advertise the same tool.
func (m *Manager) Commands(role Role) []*commands.Command {
	seen := map[string]int{}
	var all []*commands.Command

	for _, client := range m.ClientsForRole(role) {
		if client.Status() != StatusConnected {
			continue
		}
		for _, tool := range client.Tools() {
			seen[tool.Name]++
			all = append(all, bridgeTool(client, tool))
		}
	}

	for _, cmd := range all {
		if seen[cmd.Name] > 1 {
			cmd.Name = cmd.Source + "_" + cmd.Name
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// bridgeTool builds a command whose sections mirror the tool's input schema.
// Scalar-only schemas get one section per property; any object or array
// property collapses the whole schema into a single data_json section.
func bridgeTool(client *Client, tool ToolSchema) *commands.Command {
	cmd := &commands.Command{
		Name:   tool.Name,
		Help:   tool.Description,
		Source: client.Name(),
	}

	var schema inputSchema
	if len(tool.InputSchema) > 0 {
		_ = json.Unmarshal(tool.InputSchema, &schema)
	}

	if hasNestedProperty(schema) {
		cmd.AddSection(dataJSONSection, len(schema.Required) > 0,
			"all tool arguments as a single JSON object")
	} else {
		required := map[string]bool{}
		for _, name := range schema.Required {
			required[name] = true
		}
		for _, name := range sortedPropertyNames(schema) {
			prop := schema.Properties[name]
			help := prop.Description
			if help == "" {
				help = prop.Type + " argument"
			}
			cmd.AddSection(name, required[name], help)
		}
	}

	cmd.Run = func(ctx context.Context, env *commands.Env, args commands.Args) error {
		return runTool(ctx, client, tool, schema, env, args)
	}
	return cmd
}

func hasNestedProperty(schema inputSchema) bool {
	for _, prop := range schema.Properties {
		if prop.Type == "object" || prop.Type == "array" {
			return true
		}
	}
	return false
}

func sortedPropertyNames(schema inputSchema) []string {
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runTool assembles the argument object, validates it against the tool's
// schema, and forwards the call to the owning client.
func runTool(ctx context.Context, client *Client, tool ToolSchema,
	schema inputSchema, env *commands.Env, args commands.Args) error {

	toolArgs := map[string]any{}

	if raw := args.Get(dataJSONSection); raw != "" {
		if err := json.Unmarshal([]byte(raw), &toolArgs); err != nil {
			return fmt.Errorf("%s is not a JSON object: %w", dataJSONSection, err)
		}
	}

	for name, prop := range schema.Properties {
		if !args.Has(name) || name == dataJSONSection {
			continue
		}
		value := args.Get(name)
		if prop.Type == "string" || prop.Type == "" {
			toolArgs[name] = value
			continue
		}
		// Non-string scalars arrive as text; decode them to their JSON type.
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			return fmt.Errorf("section %s: expected %s, got %q", name, prop.Type, value)
		}
		toolArgs[name] = decoded
	}

	if err := validateToolArgs(tool, toolArgs); err != nil {
		return err
	}

	result, err := client.CallTool(ctx, tool.Name, toolArgs)
	if err != nil {
		return fmt.Errorf("tool %s: %w", tool.Name, err)
	}

	text := renderToolResult(result)
	if result.IsError {
		return fmt.Errorf("tool %s reported an error: %s", tool.Name, text)
	}

	switch {
	case env != nil && env.Output != nil:
		env.Output(text)
	case env != nil && env.Notify != nil:
		env.Notify(text)
	}
	return nil
}

// validateToolArgs checks the assembled arguments against the advertised
// schema. A schema that does not compile is skipped rather than blocking
// the call; the server will enforce its own contract.
func validateToolArgs(tool ToolSchema, toolArgs map[string]any) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}
	compiled, err := jsonschema.CompileString(tool.Name+".json", string(tool.InputSchema))
	if err != nil {
		return nil
	}

	// Round-trip through JSON so the validator sees canonical types.
	raw, err := json.Marshal(toolArgs)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("tool %s arguments invalid: %w", tool.Name, err)
	}
	return nil
}

func renderToolResult(result *ToolCallResult) string {
	var parts []string
	for _, content := range result.Content {
		switch content.Type {
		case "text":
			parts = append(parts, content.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%s content, %s]", content.Type, content.MimeType))
		}
	}
	if len(parts) == 0 {
		return "(empty tool result)"
	}
	return strings.Join(parts, "\n")
}
