package signaling

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomcast-live/roomcast/internal/model"
)

const (
	writeWait      = 10 * time.Second
	handshakeWait  = 10 * time.Second
	maxMessageSize = 512 * 1024
)

// Handler receives every decoded message from the signaling socket.
type Handler interface {
	HandleSignal(msg *model.SignalingMessage)
}

// Client is a signaling socket connection. Writes are serialized so the
// orchestrator and capture goroutines can send concurrently.
type Client struct {
	conn    *websocket.Conn
	handler Handler

	writeMu sync.Mutex

	mu       sync.Mutex
	socketID string

	closeOnce sync.Once
}

// Dial connects to the signaling endpoint, e.g. ws://host:3001/ws.
func Dial(ctx context.Context, url string, handler Handler) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeWait}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling server: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &Client{conn: conn, handler: handler}, nil
}

// SetHandler binds the inbound handler. Call before Run when the
// handler itself sends through this client.
func (c *Client) SetHandler(handler Handler) {
	c.handler = handler
}

// Run reads messages until the connection drops. It returns nil on a
// normal close and the read error otherwise.
func (c *Client) Run() error {
	for {
		var msg model.SignalingMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("signaling read failed: %w", err)
		}

		if msg.Type == model.MessageTypeWelcome {
			c.mu.Lock()
			c.socketID = msg.SocketID
			c.mu.Unlock()
		}

		if c.handler != nil {
			c.handler.HandleSignal(&msg)
		}
	}
}

// SocketID returns the connection id assigned by the server, empty
// until the welcome message arrives.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Join announces this client into a room.
func (c *Client) Join(roomID, name string) error {
	return c.Send(&model.SignalingMessage{
		Type:   model.MessageTypeJoin,
		RoomID: roomID,
		Name:   name,
	})
}

// Send writes one message to the socket.
func (c *Client) Send(msg *model.SignalingMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(writeWait)
		c.conn.SetWriteDeadline(deadline)
		if werr := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); werr != nil {
			log.Printf("Failed to send close frame: %v", werr)
		}
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
