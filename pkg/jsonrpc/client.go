package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client errors
var (
	ErrClientClosed = errors.New("client closed")
	ErrTimeout      = errors.New("request timeout")
	ErrCanceled     = errors.New("request canceled")
)

// NotificationHandler receives server notifications. Handlers run on the read
// goroutine, so a notification is always handled before any response that
// the server sent after it.
type NotificationHandler func(method string, params json.RawMessage)

// Client is a JSON-RPC 2.0 client over a single WebSocket connection.
// Calls may be issued concurrently.
type Client struct {
	conn *websocket.Conn

	// nextID is the next request ID.
	nextID int64

	// writeMutex serializes writes; gorilla connections allow one writer.
	writeMutex   sync.Mutex
	writeTimeout time.Duration

	mutex    sync.Mutex
	pending  map[int64]chan *Message
	handlers map[string]NotificationHandler
	fallback NotificationHandler

	// closed indicates whether the client is closed.
	closed atomic.Bool
	done   chan struct{}
	err    error
}

type dialOptions struct {
	dialer       *websocket.Dialer
	headers      http.Header
	writeTimeout time.Duration
	handler      NotificationHandler
}

// ClientOption is a function that configures a Client.
type ClientOption func(*dialOptions)

// WithDialer sets the WebSocket dialer.
func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(o *dialOptions) {
		o.dialer = dialer
	}
}

// WithHeader adds an HTTP header to the upgrade request.
func WithHeader(key, value string) ClientOption {
	return func(o *dialOptions) {
		o.headers.Set(key, value)
	}
}

// WithHeaders sets HTTP headers on the upgrade request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *dialOptions) {
		for k, v := range headers {
			o.headers.Set(k, v)
		}
	}
}

// WithToken authenticates the upgrade request with a bearer token.
func WithToken(token string) ClientOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithWriteTimeout bounds every write to the connection.
func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(o *dialOptions) {
		o.writeTimeout = timeout
	}
}

// WithNotificationHandler receives notifications no method handler claimed.
func WithNotificationHandler(handler NotificationHandler) ClientOption {
	return func(o *dialOptions) {
		o.handler = handler
	}
}

// Dial connects to the JSON-RPC WebSocket endpoint at url.
func Dial(ctx context.Context, url string, options ...ClientOption) (*Client, error) {
	opts := dialOptions{
		dialer:       websocket.DefaultDialer,
		headers:      make(http.Header),
		writeTimeout: 10 * time.Second,
	}
	for _, option := range options {
		option(&opts)
	}

	conn, resp, err := opts.dialer.DialContext(ctx, url, opts.headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	client := &Client{
		conn:         conn,
		writeTimeout: opts.writeTimeout,
		pending:      make(map[int64]chan *Message),
		handlers:     make(map[string]NotificationHandler),
		fallback:     opts.handler,
		done:         make(chan struct{}),
	}
	go client.readLoop()

	return client, nil
}

// Handle registers the handler for notifications of method.
func (c *Client) Handle(method string, handler NotificationHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handlers[method] = handler
}

// Call makes a JSON-RPC 2.0 request and waits for the response.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	// Create request
	id := atomic.AddInt64(&c.nextID, 1)
	req, err := NewRequest(method, params, id)
	if err != nil {
		return err
	}

	ch := make(chan *Message, 1)
	c.mutex.Lock()
	c.pending[id] = ch
	c.mutex.Unlock()
	defer func() {
		c.mutex.Lock()
		delete(c.pending, id)
		c.mutex.Unlock()
	}()

	if err := c.write(req); err != nil {
		return err
	}

	select {
	case res := <-ch:
		// Check for error
		if res.Error != nil {
			return res.Error
		}
		if result != nil {
			return res.UnmarshalResult(result)
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrCanceled
	case <-c.done:
		return c.closeErr()
	}
}

// Notify makes a JSON-RPC 2.0 notification (a request without an ID).
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return ErrCanceled
	}

	req, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.write(req)
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. Pending calls fail with ErrClientClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.writeMutex.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMutex.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) write(req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.closed.Load() {
			return ErrClientClosed
		}
		return err
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mutex.Lock()
			if !c.closed.Load() {
				c.err = err
			}
			c.mutex.Unlock()
			c.closed.Store(true)
			c.conn.Close()
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			continue
		}

		if msg.IsNotification() {
			c.dispatch(msg)
			continue
		}
		if msg.ID == nil {
			continue
		}

		c.mutex.Lock()
		ch := c.pending[*msg.ID]
		c.mutex.Unlock()
		if ch != nil {
			ch <- msg
		}
	}
}

func (c *Client) dispatch(msg *Message) {
	c.mutex.Lock()
	handler := c.handlers[msg.Method]
	if handler == nil {
		handler = c.fallback
	}
	c.mutex.Unlock()

	if handler != nil {
		handler(msg.Method, msg.Params)
	}
}

func (c *Client) closeErr() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClientClosed, c.err)
	}
	return ErrClientClosed
}
