package party

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
	sendBufferSize = 256
)

// wsConnection abstracts the subset of *websocket.Conn the Client needs,
// so tests can substitute a fake instead of opening a real socket —
// mirrors the teacher's wsConnection interface (internal/v1/party
// formerly internal/v1/session's client.go).
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Client is one connected WebSocket session: one user, in one room, on one
// connection. RoomID/UserID are immutable after construction. ClientID is
// a random UUID generated per connection.
type Client struct {
	RoomID   uuid.UUID
	UserID   UserID
	Username string
	ClientID string

	conn wsConnection
	send chan []byte

	closeOnce sync.Once
	closed    bool
	closeMu   sync.Mutex
}

func newClient(roomID uuid.UUID, userID UserID, username string, conn wsConnection) *Client {
	return &Client{
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
		ClientID: uuid.New().String(),
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}
}

// trySend performs a non-blocking enqueue onto the client's send channel.
// If the channel is full (a slow or wedged client), the message is dropped
// rather than blocking the broadcaster — spec §5 forbids holding a room
// lock across a suspension point, and a blocking send here would do exactly
// that for every other room mutation waiting on the same lock.
func (c *Client) trySend(payload []byte) bool {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close idempotently closes the send channel. writePump then flushes any
// frames already queued, writes a close frame and closes the socket.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()
		close(c.send)
	})
}

// writePump drains c.send to the socket and pings on an idle timer. It is
// the sole writer of the connection, per gorilla/websocket's concurrency
// rules. Runs until send is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames off the socket and hands each to handle. It
// enforces the read deadline/pong handler dance gorilla/websocket expects
// and returns (closing the connection) on any read error.
func (c *Client) readPump(handle func(*Client, []byte)) {
	defer c.close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(c, raw)
	}
}
