package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Transport moves JSON-RPC messages to and from one server. Call correlates
// the response by ID and is safe for concurrent use; the receive loop runs
// until Close.
type Transport interface {
	// Connect establishes the connection. For stdio this spawns the
	// subprocess; for SSE it opens the event stream and waits for the
	// outbound endpoint.
	Connect(ctx context.Context) error

	// Close tears the connection down and unblocks in-flight calls.
	Close() error

	// Call sends a request and waits for the matching response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the transport is usable.
	Connected() bool
}

// NewTransport picks the transport implied by the server config: a command
// means stdio, a URL means SSE.
func NewTransport(cfg *ServerConfig, logger *slog.Logger) (Transport, error) {
	switch {
	case cfg.Command != "":
		return NewStdioTransport(cfg, logger), nil
	case cfg.URL != "":
		return NewSSETransport(cfg, logger), nil
	default:
		return nil, fmt.Errorf("server %q: config needs a command or a url", cfg.Name)
	}
}

// callTable correlates in-flight requests with responses delivered by the
// receive loop. IDs are monotonically increasing integers.
type callTable struct {
	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan *JSONRPCResponse
}

func newCallTable() *callTable {
	return &callTable{pending: make(map[int64]chan *JSONRPCResponse)}
}

// register allocates a request ID and its buffered reply channel.
func (c *callTable) register() (int64, chan *JSONRPCResponse) {
	id := c.nextID.Add(1)
	ch := make(chan *JSONRPCResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return id, ch
}

// drop forgets an in-flight request, typically after its caller gave up.
func (c *callTable) drop(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// resolve delivers a response to its waiting caller. Responses with unknown
// or already-abandoned IDs are discarded.
func (c *callTable) resolve(resp *JSONRPCResponse) {
	var id int64
	switch v := resp.ID.(type) {
	case float64:
		id = int64(v)
	case int64:
		id = v
	case int:
		id = int64(v)
	default:
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// routeMessage classifies one incoming JSON-RPC object. Responses resolve
// their pending call; notifications are a no-op and server-initiated requests
// are dropped, both logged at debug.
func routeMessage(data []byte, calls *callTable, logger *slog.Logger) {
	var msg struct {
		ID     any             `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Debug("skipping malformed message", "error", err)
		return
	}

	switch {
	case msg.Method != "" && msg.ID == nil:
		logger.Debug("ignoring notification", "method", msg.Method)
	case msg.Method != "":
		logger.Debug("dropping server-initiated request", "method", msg.Method)
	case msg.ID != nil:
		calls.resolve(&JSONRPCResponse{ID: msg.ID, Result: msg.Result, Error: msg.Error})
	}
}

// awaitResponse blocks until the registered call resolves, the caller's
// context ends, or the transport shuts down. A request sits in the table for
// as long as its caller is willing to wait; there is no transport-level
// timeout.
func awaitResponse(ctx context.Context, method string, id int64, ch chan *JSONRPCResponse, calls *callTable, stop <-chan struct{}) (json.RawMessage, error) {
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		calls.drop(id)
		return nil, ctx.Err()
	case <-stop:
		calls.drop(id)
		return nil, fmt.Errorf("transport closed while waiting for %s response", method)
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}
