package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Role partitions servers by the mode that uses them.
type Role string

const (
	RoleChat     Role = "chat"
	RoleResearch Role = "deep-research"
)

// Manager owns every configured MCP client and tracks the initial load so
// the first conversation cycle can wait for tool discovery.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	clients  []*managedClient
	started  bool
	errsAckd bool

	loaded chan struct{}
}

type managedClient struct {
	role   Role
	client *Client
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger.With("component", "mcp"),
		loaded: make(chan struct{}),
	}
}

// Add registers a server under a role. Must be called before Start.
func (m *Manager) Add(role Role, name, commandLine string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append(m.clients, &managedClient{
		role:   role,
		client: NewClient(name, commandLine, m.logger),
	})
}

// Start launches every client concurrently and returns immediately. The
// loaded channel closes once every handshake has settled, success or not.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	clients := make([]*managedClient, len(m.clients))
	copy(clients, m.clients)
	m.mu.Unlock()

	go func() {
		var wg sync.WaitGroup
		for _, mc := range clients {
			wg.Add(1)
			go func(mc *managedClient) {
				defer wg.Done()
				if err := mc.client.Start(ctx); err != nil {
					m.logger.Warn("MCP server failed to start",
						"server", mc.client.Name(), "error", err)
				}
			}(mc)
		}
		wg.Wait()
		close(m.loaded)
	}()
}

// WaitForInitialLoad blocks until every client has settled or the timeout
// elapses. Returns true when the load completed in time.
func (m *Manager) WaitForInitialLoad(timeout time.Duration) bool {
	select {
	case <-m.loaded:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Loading lists the names of clients still connecting.
func (m *Manager) Loading() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for _, mc := range m.clients {
		if mc.client.Status() == StatusConnecting {
			names = append(names, mc.client.Name())
		}
	}
	sort.Strings(names)
	return names
}

// HasErrors reports whether any client is in the error state and the
// failure has not been acknowledged yet.
func (m *Manager) HasErrors() bool {
	m.mu.Lock()
	acked := m.errsAckd
	m.mu.Unlock()
	if acked {
		return false
	}
	for _, mc := range m.snapshot() {
		if mc.client.Status() == StatusError {
			return true
		}
	}
	return false
}

// AcknowledgeErrors suppresses further reporting of the current failures.
func (m *Manager) AcknowledgeErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errsAckd = true
}

// StatusReport renders a human-readable summary: servers still loading, or
// unacknowledged failures. Empty when there is nothing to report.
func (m *Manager) StatusReport() string {
	if loading := m.Loading(); len(loading) > 0 {
		return "Still connecting to MCP servers: " + strings.Join(loading, ", ")
	}
	if !m.HasErrors() {
		return ""
	}

	var b strings.Builder
	b.WriteString("Some MCP servers failed to start:\n")
	for _, mc := range m.snapshot() {
		if mc.client.Status() == StatusError {
			fmt.Fprintf(&b, "  %s: %s\n", mc.client.Name(), mc.client.Err())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ClientsForRole returns the clients registered under a role.
func (m *Manager) ClientsForRole(role Role) []*Client {
	var out []*Client
	for _, mc := range m.snapshot() {
		if mc.role == role {
			out = append(out, mc.client)
		}
	}
	return out
}

// Connected counts clients that completed their handshake.
func (m *Manager) Connected() int {
	n := 0
	for _, mc := range m.snapshot() {
		if mc.client.Status() == StatusConnected {
			n++
		}
	}
	return n
}

// ClientUsage is one client's call statistics.
type ClientUsage struct {
	Name        string
	Calls       int64
	Errors      int64
	LastLatency time.Duration
}

// UsageSummary reports per-client call statistics, for end-of-session
// logging.
func (m *Manager) UsageSummary() []ClientUsage {
	var out []ClientUsage
	for _, mc := range m.snapshot() {
		calls, errs, latency := mc.client.Stats()
		out = append(out, ClientUsage{
			Name:        mc.client.Name(),
			Calls:       calls,
			Errors:      errs,
			LastLatency: latency,
		})
	}
	return out
}

// StopAll shuts every client down.
func (m *Manager) StopAll() {
	for _, mc := range m.snapshot() {
		mc.client.Stop()
	}
}

func (m *Manager) snapshot() []*managedClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*managedClient, len(m.clients))
	copy(out, m.clients)
	return out
}
