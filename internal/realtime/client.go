package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"careconnect/internal/config"
	"careconnect/internal/events"
)

// FrameHandler processes one client-to-server frame. It runs on the client's
// read goroutine; anything long-lived belongs elsewhere.
type FrameHandler func(ctx context.Context, client *Client, frame events.ClientFrame)

// Client is a middleman between one websocket connection and the hub.
// It implements ConnectionHandle.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages. mu guards it against a deliver
	// racing the hub's close: the hub drops slow clients from its own
	// goroutine while acks arrive from the read goroutine.
	mu     sync.Mutex
	closed bool
	send   chan []byte

	id     string
	userID uint

	handleFrame FrameHandler
}

// ID implements ConnectionHandle.
func (c *Client) ID() string { return c.id }

// UserID implements ConnectionHandle.
func (c *Client) UserID() uint { return c.userID }

// Deliver implements ConnectionHandle with a non-blocking send.
// A closed handle reports false instead of panicking.
func (c *Client) Deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendFrame marshals v and delivers it to this client.
func (c *Client) SendFrame(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to encode frame for user %d: %v", c.userID, err)
		return false
	}
	return c.Deliver(payload)
}

// Terminate closes the underlying connection, which unwinds both pumps.
func (c *Client) Terminate() {
	c.conn.Close()
}

// closeSend closes the outbound channel exactly once. Owned by the hub.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump pumps frames from the websocket connection to the frame handler.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (user %d): %v", c.userID, err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame events.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("Discarding malformed frame from user %d: %v", c.userID, err)
			continue
		}
		if c.handleFrame != nil {
			c.handleFrame(context.Background(), c, frame)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection,
// aggregating whatever is queued and keeping the connection alive with pings.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	newline := []byte("\n")
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeConnection upgrades the HTTP request, registers the client with the
// hub, and starts its pumps. Callers must have authenticated userID already;
// a failed handshake never reaches this point.
func ServeConnection(hub *Hub, handler FrameHandler, userID uint, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ServeConnection - upgrade failed:", err)
		return
	}
	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          uuid.NewString(),
		userID:      userID,
		handleFrame: handler,
	}
	client.hub.register <- client

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)
}
