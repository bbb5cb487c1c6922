package hub

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomcast-live/roomcast/internal/config"
)

// Handler receives inbound traffic from registered connections. The hub
// guarantees that messages from one connection are delivered in the
// order they arrived; nothing is guaranteed across connections.
type Handler interface {
	// HandleMessage is called for every text frame read from a client
	HandleMessage(clientID string, data []byte)

	// HandleDisconnect is called exactly once when a client's read
	// loop ends, however it ends
	HandleDisconnect(clientID string)
}

// Message carries an outbound payload to one client
type Message struct {
	ClientID string
	Data     []byte
}

// Client represents a connected signaling participant
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte
}

// ID returns the connection identity assigned at registration
func (c *Client) ID() string {
	return c.id
}

// Hub maintains the set of active signaling connections and routes
// outbound messages to them. Delivery is fire-and-forget: a client
// whose send buffer is full or whose connection died is dropped.
type Hub struct {
	cfg     config.WebSocketConfig
	handler Handler

	// Registered clients
	clients map[string]*Client

	// Register requests from new connections
	register chan *Client

	// Unregister requests from closing connections
	unregister chan *Client

	// Direct messages to specific clients
	direct chan Message

	// Lock for the clients map
	mu sync.RWMutex

	// Stop channel
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a hub routing inbound messages to the given handler
func New(cfg config.WebSocketConfig, handler Handler) *Hub {
	return &Hub{
		cfg:        cfg,
		handler:    handler,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan Message, 64),
		stopChan:   make(chan struct{}),
	}
}

// SetHandler binds the inbound handler. Call before Run when the
// handler itself needs the hub to send with.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Run starts the hub loop. Blocks until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			log.Printf("Client registered: %s", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
				log.Printf("Client unregistered: %s", client.id)
			}
			h.mu.Unlock()

		case message := <-h.direct:
			h.mu.RLock()
			client, exists := h.clients[message.ClientID]
			h.mu.RUnlock()

			if !exists {
				// Recipient already gone; the message is dropped
				continue
			}

			select {
			case client.send <- message.Data:
			default:
				// Slow consumer; drop it rather than block the hub
				h.mu.Lock()
				delete(h.clients, message.ClientID)
				close(client.send)
				h.mu.Unlock()
			}

		case <-h.stopChan:
			h.mu.Lock()
			for id, client := range h.clients {
				client.conn.Close()
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// RegisterClient registers a new WebSocket connection under the given
// identity and starts its pumps. Returns nil when the hub is already
// shut down; the connection is closed in that case.
func (h *Hub) RegisterClient(conn *websocket.Conn, clientID string) *Client {
	client := &Client{
		hub:  h,
		conn: conn,
		id:   clientID,
		send: make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.stopChan:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	return client
}

// SendTo queues a message for one client. Unknown recipients are
// silently dropped.
func (h *Hub) SendTo(clientID string, data []byte) {
	select {
	case h.direct <- Message{ClientID: clientID, Data: data}:
	case <-h.stopChan:
	}
}

// Connected reports whether a client is currently registered
func (h *Hub) Connected(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

// ClientIDs returns a snapshot of currently registered identities
func (h *Hub) ClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts the hub down and closes every connection
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

// readPump pumps messages from the WebSocket connection to the handler
func (c *Client) readPump() {
	defer func() {
		c.hub.handler.HandleDisconnect(c.id)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		c.hub.handler.HandleMessage(c.id, message)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
