package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	sendBufferSize = 256
)

// Client wraps one websocket connection with buffered writes and a read
// loop. Inbound frames go to OnMessage; OnClose fires once when the read
// side ends, before the callbacks are detached.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	send chan []byte

	// OnMessage and OnClose are set by the connection handler after the
	// admission checks pass and before the pumps start.
	OnMessage func(data []byte)
	OnClose   func()

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, log *slog.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		log:  log,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send marshals a payload and queues it for this one socket. A full or
// closed queue drops the frame; delivery here is as best-effort as the
// hub's.
func (c *Client) Send(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Enqueue(frame)
	return nil
}

// Enqueue implements Subscriber. It never blocks.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close shuts the outbound queue down once; the write pump then sends a
// close frame and drops the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump consumes inbound frames until the connection dies, then
// unregisters the client everywhere and fires OnClose.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Drop(c)
		c.Close()
		c.conn.Close()
		if c.OnClose != nil {
			c.OnClose()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read failed", slog.Any("error", err))
			}
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(message)
		}
	}
}

// WritePump drains the outbound queue to the socket, one frame per text
// message so clients can parse each as a standalone JSON document, and
// keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
