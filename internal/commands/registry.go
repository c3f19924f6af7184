package commands

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry maps command names to definitions. Registration is idempotent by
// name: a later registration replaces an earlier one. Each control panel owns
// its own registry; there are no process-wide instances.
type Registry struct {
	commands map[string]*Command
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]*Command),
		logger:   logger.With("component", "commands"),
	}
}

// Register inserts or replaces a command by name.
func (r *Registry) Register(cmd *Command) {
	if cmd == nil || cmd.Name == "" {
		return
	}
	name := strings.ToLower(strings.TrimSpace(cmd.Name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		r.logger.Debug("replacing command", "name", name, "source", cmd.Source)
	}
	r.commands[name] = cmd
}

// Unregister removes a command. Returns whether it existed.
func (r *Registry) Unregister(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; !exists {
		return false
	}
	delete(r.commands, name)
	return true
}

// UnregisterSource removes every command registered with the given source.
func (r *Registry) UnregisterSource(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name, cmd := range r.commands {
		if cmd.Source == source {
			delete(r.commands, name)
			removed++
		}
	}
	return removed
}

// Get resolves a command by name.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, exists := r.commands[name]
	return cmd, exists
}

// All returns a copy of the name→command map.
func (r *Registry) All() map[string]*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Command, len(r.commands))
	for name, cmd := range r.commands {
		out[name] = cmd
	}
	return out
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
