package commands

import (
	"fmt"
	"regexp"
	"strings"
)

// ParseResult is one command block extracted from a text blob. A result with
// an empty CommandName or any Errors must not be executed.
type ParseResult struct {
	// CommandName is empty when the block named an unknown command.
	CommandName string

	// Command is the resolved definition, nil for unknown commands.
	Command *Command

	// Args holds the parsed section values.
	Args Args

	// Errors carries structural and validation diagnostics.
	Errors []string

	// StartLine is the zero-based line index where the block opened.
	StartLine int
}

// Valid reports whether the result may be dispatched.
func (r *ParseResult) Valid() bool {
	return r.CommandName != "" && len(r.Errors) == 0
}

var blockOpenRe = regexp.MustCompile(`^<<<\s+(\S+)\s*$`)

// Parser extracts block-form commands from free text.
//
// The block syntax is:
//
//	<<< command_name
//	///section_a
//	value a (possibly multi-line)
//	///section_b
//	value b
//	>>>
//
// Lines starting with # are never treated as syntax, so help text can show
// literal examples.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser resolving names against the given registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse scans the text and returns one result per command block, in source
// order. Structural parsing is lenient; each result carries its own errors.
func (p *Parser) Parse(text string) []ParseResult {
	lines := strings.Split(text, "\n")

	var results []ParseResult

	i := 0
	for i < len(lines) {
		line := lines[i]
		if strings.HasPrefix(line, "#") {
			i++
			continue
		}
		match := blockOpenRe.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			i++
			continue
		}

		result, next := p.parseBlock(lines, i, match[1])
		results = append(results, result)
		i = next
	}

	return results
}

// parseBlock consumes one block starting at lines[start] and returns the
// result plus the index of the first line after the block.
func (p *Parser) parseBlock(lines []string, start int, name string) (ParseResult, int) {
	result := ParseResult{
		Args:      Args{},
		StartLine: start,
	}

	var cmd *Command
	if p.registry != nil {
		cmd, _ = p.registry.Get(name)
	}
	if cmd == nil {
		result.Errors = append(result.Errors, "unknown command: "+name)
	} else {
		result.CommandName = cmd.Name
		result.Command = cmd
	}

	section := ""
	var value []string
	terminated := false

	flush := func() {
		if section == "" {
			return
		}
		raw := strings.TrimRight(strings.Join(value, "\n"), "\n")
		if cmd != nil {
			if s := cmd.section(section); s != nil && !s.AllowMultiple && result.Args.Has(section) {
				result.Errors = append(result.Errors,
					fmt.Sprintf("section %s specified multiple times", section))
			}
		}
		result.Args[section] = append(result.Args[section], raw)
		section = ""
		value = nil
	}

	i := start + 1
	for ; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.HasPrefix(line, "#"):
			// Literal text, never syntax. Keep it as content when inside a section.
			if section != "" {
				value = append(value, line)
			}
		case strings.TrimSpace(line) == ">>>":
			flush()
			terminated = true
			i++
		case strings.HasPrefix(line, "///"):
			flush()
			section = strings.TrimSpace(strings.TrimPrefix(line, "///"))
		default:
			if section != "" {
				value = append(value, line)
			}
		}
		if terminated {
			break
		}
	}

	if !terminated {
		flush()
		result.Errors = append(result.Errors, "unterminated block")
	}

	if cmd != nil {
		if cmd.Transform != nil {
			result.Args = cmd.Transform(result.Args)
		}
		result.Errors = append(result.Errors, cmd.checkArgs(result.Args)...)
	}

	return result, i
}

// ErrorReport aggregates the diagnostics of all results into one block of
// human-readable text, or "" when every result is clean. The report is fed
// back to the LLM so it can correct its command usage on the next turn.
func ErrorReport(results []ParseResult) string {
	var b strings.Builder
	for _, r := range results {
		if len(r.Errors) == 0 {
			continue
		}
		name := r.CommandName
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(&b, "command block %q at line %d:\n", name, r.StartLine+1)
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "Some commands could not be executed:\n" + b.String()
}
