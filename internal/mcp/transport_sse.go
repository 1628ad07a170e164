package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// endpointWait bounds how long Connect waits for the server to announce its
// POST endpoint on the event stream.
const endpointWait = 15 * time.Second

// SSETransport talks to a remote server over Server-Sent Events: a long-lived
// GET on the configured URL carries server-to-client messages, and outbound
// messages are POSTed to an endpoint the server announces as the first event
// on the stream.
type SSETransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client

	calls         *callTable
	endpointMu    sync.Mutex
	endpoint      string
	endpointReady chan struct{}
	readyOnce     sync.Once

	cancelStream context.CancelFunc
	connected    atomic.Bool
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// NewSSETransport creates an SSE transport for the given server.
func NewSSETransport(cfg *ServerConfig, logger *slog.Logger) *SSETransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSETransport{
		config: cfg,
		logger: logger.With("mcp_server", cfg.Name, "transport", "sse"),
		// The stream stays open for the life of the connection, so the
		// client must not impose a request timeout.
		client:        &http.Client{},
		calls:         newCallTable(),
		endpointReady: make(chan struct{}),
		stopChan:      make(chan struct{}),
	}
}

// Connect opens the event stream and waits for the endpoint announcement.
// The stream is not bound to ctx; it lives until Close.
func (t *SSETransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("url is required for sse transport")
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	t.cancelStream = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.config.URL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("event stream returned HTTP %d", resp.StatusCode)
	}

	t.connected.Store(true)
	t.logger.Info("opened MCP event stream", "url", t.config.URL)

	t.wg.Add(1)
	go t.readLoop(resp.Body)

	select {
	case <-t.endpointReady:
		return nil
	case <-ctx.Done():
		t.Close()
		return ctx.Err()
	case <-time.After(endpointWait):
		t.Close()
		return fmt.Errorf("server did not announce an endpoint within %s", endpointWait)
	case <-t.stopChan:
		return fmt.Errorf("transport closed before endpoint arrived")
	}
}

// Close tears down the stream and unblocks in-flight calls. Safe to call more
// than once.
func (t *SSETransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)
	if t.cancelStream != nil {
		t.cancelStream()
	}
	t.wg.Wait()
	return nil
}

// Call POSTs a request to the announced endpoint and waits for the response
// to arrive on the event stream.
func (t *SSETransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id, respChan := t.calls.register()
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsJSON,
	}

	if err := t.post(ctx, req); err != nil {
		t.calls.drop(id)
		return nil, fmt.Errorf("post request: %w", err)
	}

	return awaitResponse(ctx, method, id, respChan, t.calls, t.stopChan)
}

// Notify POSTs a notification to the announced endpoint.
func (t *SSETransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	paramsJSON, err := marshalParams(params)
	if err != nil {
		return err
	}

	notif := JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
	}
	if err := t.post(ctx, notif); err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	return nil
}

// Connected reports whether the event stream is up.
func (t *SSETransport) Connected() bool {
	return t.connected.Load()
}

// post sends one JSON-RPC message to the announced endpoint.
func (t *SSETransport) post(ctx context.Context, msg any) error {
	t.endpointMu.Lock()
	endpoint := t.endpoint
	t.endpointMu.Unlock()
	if endpoint == "" {
		return fmt.Errorf("endpoint not announced yet")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// setEndpoint resolves the announced endpoint against the stream URL and
// signals waiters the first time it arrives.
func (t *SSETransport) setEndpoint(raw string) {
	resolved := raw
	if base, err := url.Parse(t.config.URL); err == nil {
		if rel, err := url.Parse(raw); err == nil {
			resolved = base.ResolveReference(rel).String()
		}
	}

	t.endpointMu.Lock()
	t.endpoint = resolved
	t.endpointMu.Unlock()
	t.logger.Info("MCP endpoint announced", "endpoint", resolved)
	t.readyOnce.Do(func() { close(t.endpointReady) })
}

// readLoop scans the event stream. Lines accumulate into one event until a
// blank line flushes it: "endpoint" events carry the POST URL, "message"
// events carry a JSON-RPC object.
func (t *SSETransport) readLoop(body io.ReadCloser) {
	defer t.wg.Done()
	defer t.connected.Store(false)
	defer body.Close()

	var eventType, data string
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}

		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(line[len("data:"):])
		case strings.TrimSpace(line) == "":
			t.dispatchEvent(eventType, data)
			eventType, data = "", ""
		}
	}

	if err := scanner.Err(); err != nil && t.connected.Load() {
		t.logger.Error("event stream read error", "error", err)
	}
}

// dispatchEvent handles one flushed SSE event. Events with no declared type
// default to "message" per the EventSource specification.
func (t *SSETransport) dispatchEvent(eventType, data string) {
	if eventType == "" && data == "" {
		return
	}
	if eventType == "" {
		eventType = "message"
	}

	switch eventType {
	case "endpoint":
		t.setEndpoint(data)
	case "message":
		routeMessage([]byte(data), t.calls, t.logger)
	default:
		t.logger.Debug("ignoring event", "type", eventType)
	}
}
