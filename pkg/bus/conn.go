package bus

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a WebSocket connection with write locking and deadlines
type Conn struct {
	ws            *websocket.Conn
	writeMu       sync.Mutex
	closeMu       sync.Mutex
	closed        bool
	readDeadline  time.Duration
	writeDeadline time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from a separately hosted frontend
		return true
	},
}

// UpgradeHTTP upgrades an HTTP request to a WebSocket connection
func UpgradeHTTP(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Conn{
		ws:            ws,
		readDeadline:  60 * time.Second,
		writeDeadline: 10 * time.Second,
	}

	ws.SetReadDeadline(time.Now().Add(conn.readDeadline))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(conn.readDeadline))
		return nil
	})

	return conn, nil
}

// ReadMessage reads and decodes one message from the connection
func (c *Conn) ReadMessage() (*Message, error) {
	if c.IsClosed() {
		return nil, fmt.Errorf("connection closed")
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// SetReadDeadlineOnce sets an absolute read deadline for the next read.
// Used to bound the authentication handshake.
func (c *Conn) SetReadDeadlineOnce(deadline time.Time) {
	c.ws.SetReadDeadline(deadline)
}

// ResetReadDeadline restores the rolling read deadline
func (c *Conn) ResetReadDeadline() {
	c.ws.SetReadDeadline(time.Now().Add(c.readDeadline))
}

// WriteMessage encodes and writes one message to the connection
func (c *Conn) WriteMessage(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsClosed() {
		return fmt.Errorf("connection closed")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.writeDeadline))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame to keep the connection alive
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsClosed() {
		return fmt.Errorf("connection closed")
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.writeDeadline))
	return c.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeDeadline))
}

// Close closes the connection. Idempotent.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
	return c.ws.Close()
}

// IsClosed reports whether Close has been called
func (c *Conn) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// RemoteAddr returns the remote address
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
