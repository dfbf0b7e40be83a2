package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/davidchris/thoughttree/internal/logging"
)

// NotificationHandler receives agent-initiated notifications, dispatched by
// method. Handlers run on the connection's read loop, so delivery within one
// connection is strictly ordered and exactly-once.
type NotificationHandler func(params json.RawMessage)

// RequestHandler answers agent-initiated requests (e.g. permission checks).
// Handlers run on their own goroutine because they may suspend indefinitely;
// the returned value is sent back tagged with the agent's request id.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

type pendingCall struct {
	ch chan *Message
}

// Connection owns one adapter subprocess's pipes, the pending-request table
// and the handler tables. It is exclusively owned by a single session for
// its entire lifetime and is never repaired: any fatal error kills it.
type Connection struct {
	enc *Encoder
	dec *Decoder
	log *logging.Logger

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]pendingCall
	notifs   map[string]NotificationHandler
	requests map[string]RequestHandler
	fatal    error
	onFatal  func(error)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnection creates a connection over the given pipes. Call Start to
// begin reading; register handlers before that.
func NewConnection(w io.Writer, r io.Reader, log *logging.Logger) *Connection {
	if log == nil {
		log = logging.New("acp")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		enc:      NewEncoder(w),
		dec:      NewDecoder(r),
		log:      log,
		pending:  make(map[int64]pendingCall),
		notifs:   make(map[string]NotificationHandler),
		requests: make(map[string]RequestHandler),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// HandleNotification registers a handler for an agent-initiated notification
// method. Must be called before Start.
func (c *Connection) HandleNotification(method string, h NotificationHandler) {
	c.mu.Lock()
	c.notifs[method] = h
	c.mu.Unlock()
}

// HandleRequest registers a handler for an agent-initiated request method.
// Must be called before Start.
func (c *Connection) HandleRequest(method string, h RequestHandler) {
	c.mu.Lock()
	c.requests[method] = h
	c.mu.Unlock()
}

// OnFatal registers a callback invoked exactly once when the connection
// dies, with the fatal error. Must be called before Start.
func (c *Connection) OnFatal(fn func(error)) {
	c.mu.Lock()
	c.onFatal = fn
	c.mu.Unlock()
}

// Start launches the read loop. The loop goroutine exclusively owns the
// decoder until the connection dies.
func (c *Connection) Start() {
	go c.readLoop()
}

// Done is closed when the connection has failed or been closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Err returns the fatal error after Done is closed, ErrConnectionClosed for
// a deliberate shutdown.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// Close shuts the connection down. Pending calls fail with
// ErrConnectionClosed. Safe to call more than once.
func (c *Connection) Close() {
	c.fail(ErrConnectionClosed)
}

// Call sends a request and waits for the matching response. Exactly one of
// the following happens: the response arrives and is decoded into result,
// ctx is cancelled, or the connection fails fatally.
func (c *Connection) Call(ctx context.Context, method string, params, result any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	call := pendingCall{ch: make(chan *Message, 1)}
	c.pending[id] = call
	c.mu.Unlock()

	msg := &Message{JSONRPC: "2.0", ID: NumericID(id), Method: method, Params: raw}
	if err := c.enc.Encode(msg); err != nil {
		c.removePending(id)
		c.fail(&ProtocolError{Reason: "write failed", Err: err})
		return c.Err()
	}

	select {
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	case <-c.done:
		return c.Err()
	case resp := <-call.ch:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				c.fail(&ProtocolError{Reason: "undecodable result for " + method, Err: err})
				return c.Err()
			}
		}
		return nil
	}
}

// Notify sends a notification; no response is expected.
func (c *Connection) Notify(method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	return c.enc.Encode(&Message{JSONRPC: "2.0", Method: method, Params: raw})
}

func (c *Connection) readLoop() {
	for {
		msg, err := c.dec.Decode()
		if err == io.EOF {
			c.fail(ErrConnectionClosed)
			return
		}
		if err != nil {
			if !IsProtocolError(err) {
				err = &ProtocolError{Reason: "read failed", Err: err}
			}
			c.fail(err)
			return
		}

		switch {
		case msg.IsResponse():
			c.dispatchResponse(msg)
		case msg.IsNotification():
			c.dispatchNotification(msg)
		case msg.IsRequest():
			c.dispatchRequest(msg)
		}
	}
}

func (c *Connection) dispatchResponse(msg *Message) {
	num, numeric := msg.ID.Int()
	c.mu.Lock()
	call, ok := c.pending[num]
	if ok && numeric {
		delete(c.pending, num)
	}
	c.mu.Unlock()

	if !numeric || !ok {
		c.mu.Lock()
		issued := numeric && num >= 1 && num <= c.nextID
		c.mu.Unlock()
		if !issued {
			// Every id this client issues is numeric and below the
			// watermark. Anything else answers a request we never sent:
			// a broken peer, not a late reply.
			c.fail(&ProtocolError{
				Reason: "response to unknown request id " + msg.ID.String(),
				Err:    ErrMalformedFrame,
			})
			return
		}
		// Waiter gone, most likely the caller cancelled. Dropped.
		c.log.Warn("orphaned_response", map[string]any{"id": num}, nil)
		return
	}
	call.ch <- msg
}

func (c *Connection) dispatchNotification(msg *Message) {
	c.mu.Lock()
	h := c.notifs[msg.Method]
	c.mu.Unlock()

	if h == nil {
		c.log.Debug("unhandled_notification", map[string]any{"method": msg.Method})
		return
	}
	// Inline on the read loop: preserves per-connection ordering.
	h(msg.Params)
}

func (c *Connection) dispatchRequest(msg *Message) {
	c.mu.Lock()
	h := c.requests[msg.Method]
	c.mu.Unlock()

	// Echoed verbatim so agents that use string ids get them back.
	id := msg.ID
	if h == nil {
		c.respondError(id, -32601, "method not found: "+msg.Method)
		return
	}

	// Requests may suspend (a permission prompt waits on the user), so they
	// must not stall the read loop: chunks keep streaming while we wait.
	go func() {
		result, err := h(c.ctx, msg.Params)
		if err != nil {
			c.respondError(id, -32603, err.Error())
			return
		}
		raw, err := json.Marshal(result)
		if err != nil {
			c.respondError(id, -32603, err.Error())
			return
		}
		if err := c.enc.Encode(&Message{JSONRPC: "2.0", ID: id, Result: raw}); err != nil {
			c.fail(&ProtocolError{Reason: "write failed", Err: err})
		}
	}()
}

func (c *Connection) respondError(id *RequestID, code int, text string) {
	msg := &Message{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: text}}
	if err := c.enc.Encode(msg); err != nil {
		c.fail(&ProtocolError{Reason: "write failed", Err: err})
	}
}

func (c *Connection) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// fail records the first fatal error, fails every pending call, cancels
// in-flight request handlers and closes Done. Idempotent.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	if c.fatal != nil {
		c.mu.Unlock()
		return
	}
	c.fatal = err
	pending := c.pending
	c.pending = make(map[int64]pendingCall)
	onFatal := c.onFatal
	c.mu.Unlock()

	c.cancel()
	// Waiters select on Done alongside their call channel; swapping the map
	// above guarantees no response can still reach them.
	close(c.done)

	if len(pending) > 0 {
		c.log.Warn("pending_calls_failed", map[string]any{"count": len(pending)}, err)
	}
	if err != ErrConnectionClosed {
		c.log.Error("connection_failed", nil, err)
	}
	if onFatal != nil {
		onFatal(err)
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}
