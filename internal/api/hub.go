package api

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"smart-algo-trade/internal/model"
)

// WSHub fans out tick and candle events to connected dashboard clients.
// Channel names mirror the redis publisher: "tick:{EX}:{SYMBOL}" and
// "candle:{interval}m:{EX}:{SYMBOL}". A client with no subscriptions
// receives every channel.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	latest  map[string]latestEntry
}

type latestEntry struct {
	data []byte
	ts   time.Time
}

func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[*wsClient]bool),
		latest:  make(map[string]latestEntry),
	}
}

// PublishTick pushes a tick to all clients subscribed to its channel.
func (h *WSHub) PublishTick(t model.Tick) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	h.broadcast("tick:"+t.Key(), data)
}

// PublishCandle pushes a closed candle to all clients subscribed to its
// interval channel.
func (h *WSHub) PublishCandle(c model.Candle) {
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	h.broadcast(c.ChannelKey(), data)
}

func (h *WSHub) broadcast(channel string, data []byte) {
	ts := time.Now()
	envelope, err := json.Marshal(map[string]interface{}{
		"channel": channel,
		"data":    json.RawMessage(data),
		"ts":      ts.Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	h.latest[channel] = latestEntry{data: envelope, ts: ts}
	for c := range h.clients {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- envelope:
		default:
			// Slow consumer: drop the message rather than block the feed.
		}
	}
	h.mu.Unlock()
}

// HandleConn takes ownership of an upgraded connection.
func (h *WSHub) HandleConn(conn *websocket.Conn) {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[api] ws client connected (%d active)", n)

	go c.writePump()
	go c.readPump()
}

func (h *WSHub) removeClient(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount reports the number of connected peers.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *WSHub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// wsClient is a single WebSocket peer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	subMu sync.RWMutex
	subs  map[string]bool
}

func (c *wsClient) wants(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	return c.subs[channel]
}

// sendLatest replays the most recent message per subscribed channel so a
// fresh client paints immediately instead of waiting for the next event.
func (c *wsClient) sendLatest() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- entry.data:
		default:
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: batch queued messages into a single frame
			// with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		log.Println("[api] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Type     string   `json:"type"`
			Channels []string `json:"channels"`
			Ping     int64    `json:"ping"`
		}
		if json.Unmarshal(msg, &req) != nil {
			continue
		}

		switch req.Type {
		case "subscribe":
			c.subMu.Lock()
			for _, ch := range req.Channels {
				c.subs[ch] = true
			}
			c.subMu.Unlock()
			c.sendLatest()
		case "unsubscribe":
			c.subMu.Lock()
			for _, ch := range req.Channels {
				delete(c.subs, ch)
			}
			c.subMu.Unlock()
		default:
			if req.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      req.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}
