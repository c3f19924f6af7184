// Package commands provides the embedded command model: section schemas,
// a name registry, and the block-syntax parser both conversation sides speak.
package commands

import "context"

// Section describes one named argument slot of a command.
type Section struct {
	// Name is the marker written as ///name inside a command block.
	Name string

	// Required makes validation fail when the section is absent.
	Required bool

	// AllowMultiple permits the section to appear more than once.
	AllowMultiple bool

	// Help is a short description rendered into the control panel.
	Help string
}

// Args maps section names to their raw values. Sections with AllowMultiple
// accumulate one entry per occurrence.
type Args map[string][]string

// Get returns the first value for a section, or "" when absent.
func (a Args) Get(name string) string {
	if vals := a[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// All returns every value recorded for a section.
func (a Args) All(name string) []string { return a[name] }

// Has reports whether the section was provided at all.
func (a Args) Has(name string) bool { return len(a[name]) > 0 }

// Env is the capability bundle a command runs against. Hosts fill in the
// parts they support; commands must tolerate nil members.
type Env struct {
	// Dir is the working directory for file-touching commands.
	Dir string

	// Notify prints a transient message to the local user.
	Notify func(text string)

	// Output routes command output back into the conversation.
	Output func(text string)

	// Confirm asks the local user a yes/no question; nil means "no".
	Confirm func(prompt string) bool
}

// RunFunc executes a command with validated, transformed arguments.
type RunFunc func(ctx context.Context, env *Env, args Args) error

// Command describes a registered command: its section schema plus behaviour.
type Command struct {
	Name string
	Help string

	// Sections is the ordered section schema.
	Sections []Section

	// Source identifies where the command came from (builtin, mcp).
	Source string

	// Transform normalises parsed arguments before validation. Optional.
	Transform func(Args) Args

	// Validate returns extra diagnostics beyond the required-section check.
	// Optional.
	Validate func(Args) []string

	// Run is the command's effect.
	Run RunFunc
}

// AddSection appends a section to the schema and returns the command for
// chaining.
func (c *Command) AddSection(name string, required bool, help string) *Command {
	c.Sections = append(c.Sections, Section{Name: name, Required: required, Help: help})
	return c
}

// AddMultiSection appends a section that may repeat.
func (c *Command) AddMultiSection(name string, required bool, help string) *Command {
	c.Sections = append(c.Sections, Section{
		Name: name, Required: required, AllowMultiple: true, Help: help,
	})
	return c
}

func (c *Command) section(name string) *Section {
	for i := range c.Sections {
		if c.Sections[i].Name == name {
			return &c.Sections[i]
		}
	}
	return nil
}

// checkArgs runs the default required-section validation plus the command's
// own Validate hook.
func (c *Command) checkArgs(args Args) []string {
	var errs []string
	for _, s := range c.Sections {
		if s.Required && !args.Has(s.Name) {
			errs = append(errs, "missing required section: "+s.Name)
		}
	}
	if c.Validate != nil {
		errs = append(errs, c.Validate(args)...)
	}
	return errs
}
