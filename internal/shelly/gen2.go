package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RPC connection constants.
const (
	// rpcSource identifies this bridge in RPC request frames.
	rpcSource = "graylogic-shelly"

	// rpcHandshakeTimeout bounds the WebSocket upgrade handshake.
	rpcHandshakeTimeout = 10 * time.Second

	// rpcWriteTimeout bounds a single frame write.
	rpcWriteTimeout = 5 * time.Second
)

// rpcFrame is the wire format for gen2 JSON-RPC frames, covering requests,
// responses, and push notifications.
type rpcFrame struct {
	ID     *int            `json:"id,omitempty"`
	Src    string          `json:"src,omitempty"`
	Dst    string          `json:"dst,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcErrorBody   `json:"error,omitempty"`
}

// rpcErrorBody is the error member of a response frame.
type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Gen2Client talks to an RPC (gen2+) Shelly device over a persistent
// WebSocket connection.
//
// It implements the RPCDevice interface. Request/response correlation uses
// monotonically increasing frame IDs; push notifications (NotifyStatus,
// NotifyFullStatus, NotifyEvent) are fanned out to subscribers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Frame writes are serialised under the client mutex.
type Gen2Client struct {
	host string

	// mu guards the connection state, request correlation, and identity.
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	nextID    int
	pending   map[int]chan rpcFrame
	info      *RPCDeviceInfo
	done      chan struct{}

	// subMu guards the push subscriber set.
	subMu   sync.Mutex
	subs    map[int]func(RPCUpdate)
	subNext int
}

// compile-time interface check
var _ RPCDevice = (*Gen2Client)(nil)

// NewGen2Client creates an RPC client for a gen2+ device.
// The connection is not established until Initialize is called.
func NewGen2Client(host string) *Gen2Client {
	return &Gen2Client{
		host:    host,
		pending: make(map[int]chan rpcFrame),
		subs:    make(map[int]func(RPCUpdate)),
	}
}

// Host returns the device's IP address or hostname.
func (c *Gen2Client) Host() string {
	return c.host
}

// Connected reports whether the WebSocket connection is established.
func (c *Gen2Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// DeviceInfo returns the identity retrieved during Initialize, or nil if
// the device was never initialised.
func (c *Gen2Client) DeviceInfo() *RPCDeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Initialize establishes the WebSocket connection and retrieves device
// identity via Shelly.GetDeviceInfo.
//
// Calling Initialize on a connected client is a no-op. After a connection
// loss it establishes a fresh connection.
//
// Parameters:
//   - ctx: Bounds the dial and the identity exchange
//
// Returns:
//   - error: ErrConnectionFailed (wrapped) if the dial fails
func (c *Gen2Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	u := url.URL{Scheme: "ws", Host: c.host, Path: "/rpc"}
	dialer := websocket.Dialer{HandshakeTimeout: rpcHandshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close() //nolint:errcheck // Best effort on error path
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)

	var info RPCDeviceInfo
	if err := c.call(ctx, "Shelly.GetDeviceInfo", nil, &info); err != nil {
		c.closeConn(conn)
		return fmt.Errorf("fetching device info: %w", err)
	}

	c.mu.Lock()
	c.info = &info
	c.mu.Unlock()

	return nil
}

// Status retrieves the current device status via Shelly.GetStatus.
func (c *Gen2Client) Status(ctx context.Context) (*RPCStatus, error) {
	var status RPCStatus
	if err := c.call(ctx, "Shelly.GetStatus", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TriggerOTAUpdate asks the device to start a firmware update via
// Shelly.Update. beta selects the beta release channel.
func (c *Gen2Client) TriggerOTAUpdate(ctx context.Context, beta bool) error {
	stage := "stable"
	if beta {
		stage = "beta"
	}
	return c.call(ctx, "Shelly.Update", map[string]string{"stage": stage}, nil)
}

// SubscribeUpdates registers a callback for push notifications.
// The returned function removes the subscription.
func (c *Gen2Client) SubscribeUpdates(handler func(RPCUpdate)) (unsubscribe func()) {
	c.subMu.Lock()
	c.subNext++
	id := c.subNext
	c.subs[id] = handler
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Shutdown closes the connection and waits for the read loop to exit.
func (c *Gen2Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.closeConn(conn)

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("shutting down rpc client: %w", ctx.Err())
		}
	}
	return nil
}

// call performs one JSON-RPC request/response exchange.
func (c *Gen2Client) call(ctx context.Context, method string, params any, result any) error {
	var rawParams json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshalling rpc params: %w", err)
		}
		rawParams = raw
	}

	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan rpcFrame, 1)
	c.pending[id] = ch
	conn := c.conn

	req := rpcFrame{
		ID:     &id,
		Src:    rpcSource,
		Method: method,
		Params: rawParams,
	}

	// Write while holding the mutex: gorilla connections support at most
	// one concurrent writer.
	_ = conn.SetWriteDeadline(time.Now().Add(rpcWriteTimeout))
	writeErr := conn.WriteJSON(req)
	c.mu.Unlock()

	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("writing rpc request: %w", writeErr)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if resp.Error != nil {
			return fmt.Errorf("%w: %s: %s (code %d)", ErrRPCError, method, resp.Error.Message, resp.Error.Code)
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decoding %s result: %w", method, err)
			}
		}
		return nil

	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, method)
		}
		return ctx.Err()
	}
}

// readLoop consumes frames from the connection until it fails or closes.
func (c *Gen2Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn)
			return
		}

		var frame rpcFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue // malformed frame, skip
		}

		switch {
		case frame.Method == "NotifyEvent":
			var batch RPCEventBatch
			if err := json.Unmarshal(frame.Params, &batch); err == nil {
				c.dispatch(RPCUpdate{Events: &batch})
			}

		case frame.Method == "NotifyStatus" || frame.Method == "NotifyFullStatus":
			var status RPCStatus
			if err := json.Unmarshal(frame.Params, &status); err == nil {
				c.dispatch(RPCUpdate{Status: &status})
			}

		case frame.ID != nil:
			c.mu.Lock()
			ch, ok := c.pending[*frame.ID]
			if ok {
				delete(c.pending, *frame.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		}
	}
}

// dispatch fans an update out to all subscribers.
func (c *Gen2Client) dispatch(update RPCUpdate) {
	c.subMu.Lock()
	handlers := make([]func(RPCUpdate), 0, len(c.subs))
	for _, h := range c.subs {
		handlers = append(handlers, h)
	}
	c.subMu.Unlock()

	for _, h := range handlers {
		h(update)
	}
}

// handleDisconnect marks the connection lost and fails in-flight calls.
func (c *Gen2Client) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.connected = false
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[int]chan rpcFrame)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	conn.Close() //nolint:errcheck // Connection already failed
}

// closeConn tears a specific connection down.
func (c *Gen2Client) closeConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.connected = false
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close() //nolint:errcheck // Close is best effort during teardown
}
