package rpc

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/utils"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 512 * 1024 // 512KB

	defaultSendBuffer = 256
)

// Metrics receives connection and message counters.
type Metrics interface {
	IncWSConnectionsActive()
	DecWSConnectionsActive()
	ObserveWSConnection(duration time.Duration)
	ObserveWSMessage(direction, method string)
}

type nopMetrics struct{}

func (nopMetrics) IncWSConnectionsActive()           {}
func (nopMetrics) DecWSConnectionsActive()           {}
func (nopMetrics) ObserveWSConnection(time.Duration) {}
func (nopMetrics) ObserveWSMessage(string, string)   {}

// ServerConfig configures a Server.
type ServerConfig struct {
	WebSocket config.WebSocketConfig

	// AuthRequired rejects connections without a valid token.
	AuthRequired bool

	// AllowedOrigins lists accepted Origin headers. Empty or "*" accepts any.
	AllowedOrigins []string
}

// Server handles WebSocket connections and RPC requests.
type Server struct {
	hub          *Hub
	router       *Router
	authProvider auth.Provider
	metrics      Metrics
	config       config.WebSocketConfig
	authRequired bool
	upgrader     websocket.Upgrader
	logger       *utils.Logger

	cancel  context.CancelFunc
	mutex   sync.Mutex
	stopped bool
}

// NewServer creates a new WebSocket server and starts its hub. authProvider
// may be nil, in which case every connection is anonymous.
func NewServer(cfg ServerConfig, router *Router, authProvider auth.Provider, metrics Metrics, logger *utils.Logger) *Server {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	ws := cfg.WebSocket
	if ws.WriteWait <= 0 {
		ws.WriteWait = defaultWriteWait
	}
	if ws.PongWait <= 0 {
		ws.PongWait = defaultPongWait
	}
	if ws.PingPeriod <= 0 || ws.PingPeriod >= ws.PongWait {
		// Must be less than PongWait.
		ws.PingPeriod = (ws.PongWait * 9) / 10
	}
	if ws.MaxMessageSize <= 0 {
		ws.MaxMessageSize = defaultMaxMessageSize
	}
	if ws.SendBuffer <= 0 {
		ws.SendBuffer = defaultSendBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger)
	go hub.Run(ctx)

	s := &Server{
		hub:          hub,
		router:       router,
		authProvider: authProvider,
		metrics:      metrics,
		config:       ws,
		authRequired: cfg.AuthRequired,
		logger:       logger.Named("rpc_server"),
		cancel:       cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	s.logger.Debug("RPC server started", "methods", len(router.Methods()))

	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Host shells connect without an Origin header.
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}

// authenticate resolves the caller of an upgrade request. Anonymous callers
// get a nil claims value.
func (s *Server) authenticate(r *http.Request) (*auth.Claims, error) {
	token, _ := utils.ExtractBearerToken(r)

	if token == "" || s.authProvider == nil {
		if s.authRequired {
			return nil, auth.ErrInvalidToken
		}
		return nil, nil
	}

	claims, err := s.authProvider.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// HandleWebSocket authenticates the caller, upgrades the connection and starts its pumps.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	stopped := s.stopped
	s.mutex.Unlock()
	if stopped {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	claims, err := s.authenticate(r)
	if err != nil {
		s.logger.Warn("Rejected WebSocket connection", "error", err, "ip", utils.GetRequestIP(r))
		message := "Invalid token"
		if errors.Is(err, auth.ErrExpiredToken) {
			message = "Token expired"
		}
		utils.RespondWithError(w, http.StatusUnauthorized, message)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Failed to upgrade connection", "error", err)
		return
	}

	clientID := utils.NewID("client")
	subject := "ip:" + utils.GetRequestIP(r)
	if claims != nil {
		subject = claims.Subject
	}

	client := NewClient(clientID, subject, claims, s, conn, s.logger.Named("client").With("clientID", clientID))
	if !s.hub.Register(client) {
		conn.Close()
		return
	}
	s.metrics.IncWSConnectionsActive()

	go client.readPump()
	go client.writePump()

	s.logger.Info("WebSocket connection established", "clientID", client.ID, "subject", client.Subject, "authenticated", claims != nil)
}

// Notify sends a notification to every connected client.
func (s *Server) Notify(method string, params any) error {
	message, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	s.hub.Broadcast(message)
	return nil
}

// NotifySubject sends a notification to every connection of a subject.
func (s *Server) NotifySubject(subject, method string, params any) error {
	message, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	s.hub.BroadcastToSubject(subject, message)
	return nil
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// SubjectCount returns the number of distinct connected sessions.
func (s *Server) SubjectCount() int {
	return s.hub.SubjectCount()
}

// Shutdown cancels running requests, closes every connection and waits for
// request goroutines to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return nil
	}
	s.stopped = true
	s.mutex.Unlock()

	s.logger.Info("Shutting down RPC server")

	clients := s.hub.Clients()
	for _, client := range clients {
		client.cancel()
		client.cancelTasks()
		client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		client.conn.Close()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		for _, client := range clients {
			client.inflight.Wait()
		}
		<-s.hub.done
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
