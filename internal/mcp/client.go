package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultCallTimeout      = 60 * time.Second

	// stdoutBufferSize bounds a single JSON-RPC line from the server.
	stdoutBufferSize = 1 << 20
)

// ErrNotConnected is returned when a call is attempted against a client that
// has not completed its handshake.
var ErrNotConnected = errors.New("mcp: client not connected")

type callOutcome struct {
	result json.RawMessage
	err    error
}

// Client supervises one MCP server subprocess. The lifecycle is
// disconnected → connecting → connected, with error reachable from both
// live states and Stop returning the client to disconnected.
type Client struct {
	name        string
	commandLine string
	logger      *slog.Logger

	// HandshakeTimeout bounds each handshake request. CallTimeout bounds
	// tools/call requests.
	HandshakeTimeout time.Duration
	CallTimeout      time.Duration

	mu      sync.Mutex
	status  Status
	errMsg  string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	nextID  int64
	pending map[int64]chan callOutcome
	tools   []ToolSchema

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	calls       atomic.Int64
	callErrors  atomic.Int64
	lastLatency atomic.Int64 // nanoseconds
}

// NewClient creates a client for the given server command string. The command
// is not started until Start.
func NewClient(name, commandLine string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:             name,
		commandLine:      commandLine,
		logger:           logger.With("mcp_server", name),
		HandshakeTimeout: defaultHandshakeTimeout,
		CallTimeout:      defaultCallTimeout,
		status:           StatusDisconnected,
		pending:          make(map[int64]chan callOutcome),
		done:             make(chan struct{}),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// Status returns the current lifecycle state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the first recorded error message, if any.
func (c *Client) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Tools returns a copy of the discovered tool schemas.
func (c *Client) Tools() []ToolSchema {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolSchema, len(c.tools))
	copy(out, c.tools)
	return out
}

// Stats reports call count, error count and the latency of the last call.
func (c *Client) Stats() (calls, callErrors int64, lastLatency time.Duration) {
	return c.calls.Load(), c.callErrors.Load(), time.Duration(c.lastLatency.Load())
}

// Start spawns the subprocess and performs the MCP handshake:
// initialize, the initialized notification, then tools/list. On any failure
// the client lands in the error state with a recorded message.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("mcp: client %s already started", c.name)
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	argv := splitCommandLine(c.commandLine)
	if len(argv) == 0 {
		return c.fail("empty server command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return c.fail("stdin pipe: " + err.Error())
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return c.fail("stdout pipe: " + err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return c.fail("stderr pipe: " + err.Error())
	}
	if err := cmd.Start(); err != nil {
		return c.fail("spawn: " + err.Error())
	}

	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.mu.Unlock()

	c.logger.Debug("started MCP server process", "command", argv[0], "pid", cmd.Process.Pid)

	return c.run(ctx, stdout, stderr)
}

// run wires the reader goroutines to the given streams and performs the
// handshake. Split from Start so tests can drive a client over pipes.
func (c *Client) run(ctx context.Context, stdout, stderr io.Reader) error {
	c.wg.Add(1)
	go c.readLoop(stdout)
	if stderr != nil {
		c.wg.Add(1)
		go c.stderrLoop(stderr)
	}
	return c.handshake(ctx)
}

func (c *Client) handshake(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		ClientInfo:      clientInfo{Name: "parley", Version: "1.0.0"},
		Capabilities:    map[string]any{},
	}
	if _, err := c.call(ctx, "initialize", params, c.HandshakeTimeout); err != nil {
		return c.fail("initialize: " + err.Error())
	}

	if err := c.notify("notifications/initialized", nil); err != nil {
		return c.fail("initialized notification: " + err.Error())
	}

	raw, err := c.call(ctx, "tools/list", nil, c.HandshakeTimeout)
	if err != nil {
		return c.fail("tools/list: " + err.Error())
	}
	var listed listToolsResult
	if err := json.Unmarshal(raw, &listed); err != nil {
		return c.fail("tools/list result: " + err.Error())
	}

	c.mu.Lock()
	if c.status == StatusConnecting {
		c.tools = listed.Tools
		c.status = StatusConnected
	}
	status := c.status
	c.mu.Unlock()

	if status != StatusConnected {
		return fmt.Errorf("mcp: %s failed during handshake: %s", c.name, c.Err())
	}
	c.logger.Info("connected to MCP server", "tools", len(listed.Tools))
	return nil
}

// CallTool invokes a tool and returns the result object, or the server's
// JSON-RPC error. The handshake must have completed first.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()
	if status != StatusConnected {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotConnected, c.name, status)
	}
	if args == nil {
		args = map[string]any{}
	}

	started := time.Now()
	c.calls.Add(1)

	raw, err := c.call(ctx, "tools/call", callToolParams{Name: name, Arguments: args}, c.CallTimeout)
	c.lastLatency.Store(int64(time.Since(started)))
	if err != nil {
		c.callErrors.Add(1)
		return nil, err
	}

	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.callErrors.Add(1)
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &result, nil
}

// call sends one request and waits for the correlated response. On timeout
// the pending entry is removed but the client stays operational.
func (c *Client) call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	if c.status == StatusError || c.status == StatusDisconnected {
		status := c.status
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrNotConnected, c.name, status)
	}
	c.nextID++
	id := c.nextID
	outcome := make(chan callOutcome, 1)
	c.pending[id] = outcome
	stdin := c.stdin
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			c.removePending(id)
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}

	data, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)
		return nil, err
	}
	if _, err := stdin.Write(append(data, '\n')); err != nil {
		c.removePending(id)
		c.fail("write request: " + err.Error())
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	select {
	case out := <-outcome:
		return out.result, out.err
	case <-time.After(timeout):
		c.removePending(id)
		return nil, fmt.Errorf("%s request timed out after %v", method, timeout)
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("%w: %s stopped", ErrNotConnected, c.name)
	}
}

// notify sends a notification; no response is expected.
func (c *Client) notify(method string, params any) error {
	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()

	n := rpcNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		n.Params = raw
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = stdin.Write(append(data, '\n'))
	return err
}

// readLoop consumes stdout lines and correlates responses by id. EOF means
// the child is gone: every pending call fails with "connection lost" and the
// client enters the error state unless it is being stopped.
func (c *Client) readLoop(stdout io.Reader) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), stdoutBufferSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg rpcMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			c.logger.Warn("skipping malformed server output", "error", err)
			continue
		}

		if msg.ID == nil {
			// Servers are not expected to send notifications; log and drop.
			c.logger.Debug("dropping unexpected server message", "method", msg.Method)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("response for unknown request id", "id", *msg.ID)
			continue
		}

		if msg.Error != nil {
			ch <- callOutcome{err: msg.Error}
		} else {
			ch <- callOutcome{result: msg.Result}
		}
	}

	select {
	case <-c.done:
		// Stop in progress; silence the EOF.
	default:
		c.failPending(errors.New("connection lost"))
		c.fail("connection lost")
	}
}

// stderrLoop watches the child's stderr. A line containing "[error]" marks
// the client failed; the first such line wins as the error message.
func (c *Client) stderrLoop(stderr io.Reader) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		c.logger.Debug("server stderr", "line", line)
		if strings.Contains(strings.ToLower(line), "[error]") {
			c.fail(line)
		}
	}
}

// Stop terminates the subprocess and waits for the readers. Idempotent.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		if c.stdin != nil {
			c.stdin.Close()
		}
		cmd := c.cmd
		c.status = StatusDisconnected
		c.mu.Unlock()

		c.failPending(fmt.Errorf("%w: stopped", ErrNotConnected))

		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
		c.wg.Wait()
	})
}

// fail transitions the client into the error state. The first message wins.
func (c *Client) fail(msg string) error {
	c.mu.Lock()
	if c.errMsg == "" {
		c.errMsg = msg
	}
	if c.status != StatusDisconnected {
		c.status = StatusError
	}
	first := c.errMsg
	c.mu.Unlock()

	c.logger.Warn("MCP client failed", "error", msg)
	return fmt.Errorf("mcp: %s: %s", c.name, first)
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan callOutcome)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- callOutcome{err: err}
	}
}

func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// splitCommandLine splits a server command string into argv, honouring
// single and double quotes.
func splitCommandLine(s string) []string {
	var argv []string
	var current strings.Builder
	inWord := false
	var quote byte

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				current.WriteByte(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			inWord = true
		case ch == ' ' || ch == '\t':
			if inWord {
				argv = append(argv, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteByte(ch)
			inWord = true
		}
	}
	if inWord {
		argv = append(argv, current.String())
	}
	return argv
}
