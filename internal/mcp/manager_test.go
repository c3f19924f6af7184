package mcp

import (
	"context"
	"strings"
	"testing"
	"time"
)

func connectedClient(name string, tools ...ToolSchema) *Client {
	c := NewClient(name, "unused", testLogger())
	c.mu.Lock()
	c.status = StatusConnected
	c.tools = tools
	c.mu.Unlock()
	return c
}

func addClient(m *Manager, role Role, c *Client) {
	m.mu.Lock()
	m.clients = append(m.clients, &managedClient{role: role, client: c})
	m.mu.Unlock()
}

func TestManager_StartSettlesFailedServers(t *testing.T) {
	m := NewManager(testLogger())
	// /bin/true exits immediately, so the handshake sees EOF and fails.
	m.Add(RoleChat, "dead", "true")
	m.Start(context.Background())

	if !m.WaitForInitialLoad(10 * time.Second) {
		t.Fatal("initial load never settled")
	}
	if !m.HasErrors() {
		t.Fatal("a server that exited immediately should be in error")
	}

	report := m.StatusReport()
	if !strings.Contains(report, "dead") {
		t.Errorf("report = %q, want the failed server named", report)
	}

	m.AcknowledgeErrors()
	if m.HasErrors() {
		t.Error("acknowledged errors should stop being reported")
	}
	if m.StatusReport() != "" {
		t.Errorf("report after ack = %q, want empty", m.StatusReport())
	}
	m.StopAll()
}

func TestManager_RolesArePartitioned(t *testing.T) {
	m := NewManager(testLogger())
	addClient(m, RoleChat, connectedClient("chat-tools"))
	addClient(m, RoleResearch, connectedClient("research-tools"))

	chat := m.ClientsForRole(RoleChat)
	if len(chat) != 1 || chat[0].Name() != "chat-tools" {
		t.Errorf("chat clients = %v", chat)
	}
	research := m.ClientsForRole(RoleResearch)
	if len(research) != 1 || research[0].Name() != "research-tools" {
		t.Errorf("research clients = %v", research)
	}
	if m.Connected() != 2 {
		t.Errorf("connected = %d, want 2", m.Connected())
	}
}

func TestManager_StatusReportWhileLoading(t *testing.T) {
	m := NewManager(testLogger())
	c := NewClient("slowpoke", "unused", testLogger())
	c.mu.Lock()
	c.status = StatusConnecting
	c.mu.Unlock()
	addClient(m, RoleChat, c)

	report := m.StatusReport()
	if !strings.Contains(report, "slowpoke") {
		t.Errorf("report = %q, want the loading server named", report)
	}
	if m.WaitForInitialLoad(10 * time.Millisecond) {
		t.Error("load should not settle while a client is connecting")
	}
}
