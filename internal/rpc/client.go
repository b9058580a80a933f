package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/utils"
)

// Client represents a WebSocket client connection.
type Client struct {
	// ID is a unique identifier for the client.
	ID string

	// Subject identifies the host-shell session. Anonymous clients get their remote address.
	Subject string

	// Claims are the validated token claims, nil for anonymous clients.
	Claims *auth.Claims

	// server is the WebSocket server that created this client.
	server *Server

	// conn is the WebSocket connection.
	conn *websocket.Conn

	// send is a channel of outbound messages.
	send chan []byte

	// logger is the client's logger.
	logger *utils.Logger

	// mutex protects concurrent access to client properties
	mutex sync.RWMutex

	// closed indicates whether the send channel has been closed
	closed bool

	// tasks holds the cancel functions of running requests by task id.
	tasks map[string]func()

	// ctx is cancelled when the connection goes away.
	ctx    context.Context
	cancel context.CancelFunc

	// inflight tracks request goroutines.
	inflight sync.WaitGroup

	connectedAt time.Time
	closeOnce   sync.Once
}

// NewClient creates a new client.
func NewClient(id, subject string, claims *auth.Claims, server *Server, conn *websocket.Conn, logger *utils.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:          id,
		Subject:     subject,
		Claims:      claims,
		server:      server,
		conn:        conn,
		send:        make(chan []byte, server.config.SendBuffer),
		logger:      logger,
		tasks:       make(map[string]func()),
		ctx:         ctx,
		cancel:      cancel,
		connectedAt: time.Now(),
	}
}

// Track registers the cancel function of a running task under id. The
// returned release must be called when the task completes. ok is false if a
// task with the same id is already running.
func (c *Client) Track(id string, cancel func()) (release func(), ok bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.tasks[id]; exists {
		return func() {}, false
	}
	c.tasks[id] = cancel
	return func() {
		c.mutex.Lock()
		delete(c.tasks, id)
		c.mutex.Unlock()
	}, true
}

// CancelTask cancels the running task with the given id.
func (c *Client) CancelTask(id string) bool {
	c.mutex.Lock()
	cancel, ok := c.tasks[id]
	delete(c.tasks, id)
	c.mutex.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// cancelTasks cancels every running task.
func (c *Client) cancelTasks() {
	c.mutex.Lock()
	tasks := c.tasks
	c.tasks = make(map[string]func())
	c.mutex.Unlock()

	for _, cancel := range tasks {
		cancel()
	}
}

// safelySendMessage sends a message only if the channel isn't closed
// Uses non-blocking send to prevent deadlocks if channel is full
func (c *Client) safelySendMessage(message []byte) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.closed {
		c.logger.Debug("Client send channel is closed", "clientID", c.ID)
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn("Client send channel is full, message dropped", "clientID", c.ID)
		return false
	}
}

// closeSend closes the send channel once. Called by the hub on unregistration.
func (c *Client) closeSend() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// shutdown cancels running requests and unregisters the client.
func (c *Client) shutdown(closeCode int) {
	c.closeOnce.Do(func() {
		if closeCode == websocket.CloseNormalClosure || closeCode == websocket.CloseGoingAway {
			c.logger.Debug("Normal client disconnection", "subject", c.Subject, "code", closeCode)
		} else {
			c.logger.Debug("Unexpected client disconnection", "subject", c.Subject, "code", closeCode)
		}

		c.cancel()
		c.cancelTasks()
		c.server.hub.Unregister(c)
		c.server.metrics.DecWSConnectionsActive()
		c.server.metrics.ObserveWSConnection(time.Since(c.connectedAt))
		c.logger.Info("Client disconnected", "subject", c.Subject)
	})
}

// readPump pumps messages from the WebSocket connection to the router.
func (c *Client) readPump() {
	var closeErr error
	defer func() {
		closeCode := websocket.CloseNoStatusReceived
		if closeErr != nil && websocket.IsCloseError(closeErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			closeCode = websocket.CloseNormalClosure
		}

		c.shutdown(closeCode)
		c.conn.Close()
	}()

	cfg := c.server.config
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			closeErr = err
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("Unexpected close error", err)
			}
			return
		}

		c.handleMessage(bytes.TrimSpace(message))
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Client) writePump() {
	cfg := c.server.config
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown(websocket.CloseGoingAway)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Debug("Failed to get next writer", "clientID", c.ID, "error", err)
				return
			}

			if _, err := w.Write(message); err != nil {
				c.logger.Debug("Failed to write message", "clientID", c.ID, "error", err)
				return
			}

			if err := w.Close(); err != nil {
				c.logger.Debug("Failed to close writer", "clientID", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to write ping message", "clientID", c.ID, "error", err)
				return
			}
		}
	}
}

// handleMessage parses a request and routes it on its own goroutine, so a
// streaming search does not hold up a later cancel.
func (c *Client) handleMessage(message []byte) {
	var request Request
	if err := json.Unmarshal(message, &request); err != nil {
		c.logger.Debug("Failed to parse message", "error", err)
		c.sendErrorResponse(nil, ErrParseError, "Invalid JSON")
		return
	}
	if !request.Valid() {
		c.sendErrorResponse(request.ID, ErrInvalidRequest, "Invalid request")
		return
	}

	c.server.metrics.ObserveWSMessage("in", request.Method)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		response := c.server.router.Route(c.ctx, c, &request)
		if response == nil {
			return
		}

		responseJSON, err := json.Marshal(response)
		if err != nil {
			c.logger.Error("Failed to marshal response", err, "method", request.Method)
			c.sendErrorResponse(request.ID, ErrInternalError, "Failed to marshal response")
			return
		}
		c.safelySendMessage(responseJSON)
	}()
}

// sendErrorResponse sends an error response to the client.
func (c *Client) sendErrorResponse(id any, code ErrorCode, message string) {
	responseJSON, err := json.Marshal(NewErrorResponse(id, code, message, nil))
	if err != nil {
		c.logger.Error("Failed to marshal error response", err)
		return
	}

	c.safelySendMessage(responseJSON)
}

// NotifySession sends a notification to every connection of the client's subject,
// this one included.
func (c *Client) NotifySession(method string, params any) error {
	if c.Subject == "" {
		if c.SendNotification(method, params) {
			return nil
		}
		return ErrConnectionClosed
	}
	return c.server.NotifySubject(c.Subject, method, params)
}

// SendNotification sends a notification to the client.
func (c *Client) SendNotification(method string, params any) bool {
	notificationJSON, err := encodeNotification(method, params)
	if err != nil {
		c.logger.Error("Failed to marshal notification", err, "method", method)
		return false
	}

	if !c.safelySendMessage(notificationJSON) {
		return false
	}
	c.server.metrics.ObserveWSMessage("out", method)
	return true
}

// Done is closed when the connection goes away.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}
