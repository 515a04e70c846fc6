package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one websocket connection. Writes go through a buffered channel
// drained by WritePump; a client that cannot keep up is closed.
type Client struct {
	ID        string
	AccountID string

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool

	bindMu        sync.RWMutex
	sessionID     string
	participantID string
}

func NewClient(conn *websocket.Conn, accountID string) *Client {
	return &Client{
		ID:        uuid.NewString(),
		AccountID: accountID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
}

// Binding returns the session and participant this connection acts as, or
// empty strings before a join.
func (c *Client) Binding() (sessionID, participantID string) {
	c.bindMu.RLock()
	defer c.bindMu.RUnlock()
	return c.sessionID, c.participantID
}

func (c *Client) bind(sessionID, participantID string) {
	c.bindMu.Lock()
	c.sessionID, c.participantID = sessionID, participantID
	c.bindMu.Unlock()
}

func (c *Client) unbind() {
	c.bind("", "")
}

// Send queues a frame. It never blocks.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("ws: send buffer full, closing client %s", c.ID)
		c.closeLocked()
		return false
	}
}

func (c *Client) SendMessage(msg WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ws: marshal error: %v", err)
		return false
	}
	return c.Send(data)
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump drains the send queue and keeps the connection alive with pings.
// It owns closing the underlying connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("ws: write error (client %s): %v", c.ID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump hands every text frame to handle until the connection fails or
// is closed. It returns after the connection is gone.
func (c *Client) ReadPump(handle func(data []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error (client %s): %v", c.ID, err)
			}
			return
		}
		handle(data)
	}
}
