package rpc

import (
	"context"
	"sync"

	"norelock.dev/soundscope/internal/utils"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// clients is a map of all connected clients.
	clients map[*Client]bool

	// subjects is a map of subjects to a map of their clients.
	subjects map[string]map[*Client]bool

	// broadcast is a channel of messages to broadcast to all clients.
	broadcast chan []byte

	// subjectBroadcast is a channel of messages to broadcast to a specific subject.
	subjectBroadcast chan *subjectMessage

	// register is a channel for registering clients.
	register chan *Client

	// unregister is a channel for unregistering clients.
	unregister chan *Client

	// done is closed when Run returns.
	done chan struct{}

	// mutex is used to synchronize access to the maps.
	mutex sync.RWMutex

	// logger is the hub's logger.
	logger *utils.Logger
}

// subjectMessage represents a message to be broadcast to a subject.
type subjectMessage struct {
	subject string
	message []byte
}

// NewHub creates a new hub.
func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients:          make(map[*Client]bool),
		subjects:         make(map[string]map[*Client]bool),
		broadcast:        make(chan []byte),
		subjectBroadcast: make(chan *subjectMessage),
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		done:             make(chan struct{}),
		logger:           logger.Named("hub"),
	}
}

// Run processes hub events until ctx is cancelled. Remaining clients are
// unregistered on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for client := range h.clients {
			client.closeSend()
		}
		h.clients = make(map[*Client]bool)
		h.subjects = make(map[string]map[*Client]bool)
		h.mutex.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case sm := <-h.subjectBroadcast:
			h.broadcastToSubject(sm.subject, sm.message)
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// BroadcastToSubject sends a message to every connection of a subject.
func (h *Hub) BroadcastToSubject(subject string, message []byte) {
	select {
	case h.subjectBroadcast <- &subjectMessage{subject: subject, message: message}:
	case <-h.done:
	}
}

// registerClient registers a client with the hub.
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true

	if client.Subject != "" {
		if _, ok := h.subjects[client.Subject]; !ok {
			h.subjects[client.Subject] = make(map[*Client]bool)
		}
		h.subjects[client.Subject][client] = true
	}

	h.logger.Debug("Client registered", "id", client.ID, "subject", client.Subject)
}

// unregisterClient unregisters a client from the hub.
func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	if clients, ok := h.subjects[client.Subject]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subjects, client.Subject)
		}
	}

	client.closeSend()
	h.logger.Debug("Client unregistered", "id", client.ID, "subject", client.Subject)
}

// broadcastMessage sends a message to all clients.
func (h *Hub) broadcastMessage(message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		client.safelySendMessage(message)
	}
}

// broadcastToSubject sends a message to all clients of a subject.
func (h *Hub) broadcastToSubject(subject string, message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.subjects[subject] {
		client.safelySendMessage(message)
	}
}

// Clients returns a snapshot of the connected clients.
func (h *Hub) Clients() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// SubjectCount returns the number of distinct connected subjects.
func (h *Hub) SubjectCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subjects)
}
