package kiteconnect

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"smart-algo-trade/internal/model"
)

const (
	tickerRoot        = "wss://ws.kite.trade"
	heartbeatInterval = 10 * time.Second
	writeTimeout      = 5 * time.Second

	// Binary packet sizes per subscription mode.
	packetLTP   = 8
	packetQuote = 44
	packetFull  = 184
)

// TickerConfig configures the streaming client.
type TickerConfig struct {
	APIKey      string
	AccessToken string
	RootURL     string // default wss://ws.kite.trade
}

// Ticker is the Kite streaming transport. It implements model.Streamer:
// one frame carries multiple binary tick packets; text frames carry order
// postbacks and error messages, which this engine ignores beyond logging.
type Ticker struct {
	cfg TickerConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	modes  map[model.StreamMode][]uint32 // desired subscription per mode

	onTicks   func([]model.Tick)
	onConnect func()
	onError   func(error)
	onClose   func()
}

// NewTicker builds a Ticker.
func NewTicker(cfg TickerConfig) *Ticker {
	if cfg.RootURL == "" {
		cfg.RootURL = tickerRoot
	}
	return &Ticker{
		cfg:   cfg,
		modes: make(map[model.StreamMode][]uint32),
	}
}

func (t *Ticker) OnTicks(fn func(ticks []model.Tick)) { t.onTicks = fn }
func (t *Ticker) OnConnect(fn func())                 { t.onConnect = fn }
func (t *Ticker) OnError(fn func(err error))          { t.onError = fn }
func (t *Ticker) OnClose(fn func())                   { t.onClose = fn }

// Connect dials the stream and starts the read and heartbeat loops. The
// caller (tick hub) owns reconnect policy; every drop fires OnClose once.
func (t *Ticker) Connect() error {
	u := t.cfg.RootURL + "?api_key=" + url.QueryEscape(t.cfg.APIKey) +
		"&access_token=" + url.QueryEscape(t.cfg.AccessToken)

	conn, resp, err := websocket.DefaultDialer.Dial(u, http.Header{
		"X-Kite-Version": {kiteVersion},
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("kiteconnect: dial: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("kiteconnect: dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.mu.Unlock()

	go t.readLoop(conn)
	go t.heartbeatLoop(conn)

	if t.onConnect != nil {
		t.onConnect()
	}
	return nil
}

// Close tears down the connection. Safe to call when disconnected.
func (t *Ticker) Close() {
	t.mu.Lock()
	conn := t.conn
	t.closed = true
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		conn.Close()
	}
}

// Subscribe registers tokens and sets their mode. Only valid while
// connected; the hub queues wanted tokens and replays them on connect.
func (t *Ticker) Subscribe(tokens []uint32, mode model.StreamMode) error {
	t.mu.Lock()
	conn := t.conn
	t.modes[mode] = mergeTokens(t.modes[mode], tokens)
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("kiteconnect: not connected")
	}

	if err := t.send(conn, tickerMessage{Action: "subscribe", Value: tokens}); err != nil {
		return err
	}
	return t.send(conn, tickerMessage{Action: "mode", Value: []interface{}{string(mode), tokens}})
}

// Unsubscribe removes tokens from the stream.
func (t *Ticker) Unsubscribe(tokens []uint32) error {
	t.mu.Lock()
	conn := t.conn
	for mode, held := range t.modes {
		t.modes[mode] = removeTokens(held, tokens)
	}
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("kiteconnect: not connected")
	}
	return t.send(conn, tickerMessage{Action: "unsubscribe", Value: tokens})
}

type tickerMessage struct {
	Action string      `json:"a"`
	Value  interface{} `json:"v"`
}

func (t *Ticker) send(conn *websocket.Conn, msg tickerMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (t *Ticker) readLoop(conn *websocket.Conn) {
	defer func() {
		t.mu.Lock()
		intentional := t.closed
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		if !intentional && t.onClose != nil {
			t.onClose()
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			intentional := t.closed
			t.mu.Unlock()
			if !intentional && t.onError != nil {
				t.onError(err)
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			// 1-byte frames are upstream heartbeats.
			if len(message) < 2 {
				continue
			}
			ticks := parseFrame(message)
			if len(ticks) > 0 && t.onTicks != nil {
				t.onTicks(ticks)
			}
		case websocket.TextMessage:
			t.handleTextMessage(message)
		}
	}
}

func (t *Ticker) handleTextMessage(message []byte) {
	var m struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &m); err != nil {
		return
	}
	if m.Type == "error" && t.onError != nil {
		t.onError(fmt.Errorf("kiteconnect: upstream: %s", m.Data))
	}
}

func (t *Ticker) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		live := t.conn == conn
		t.mu.Unlock()
		if !live {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil,
			time.Now().Add(writeTimeout)); err != nil {
			log.Printf("[kite-ws] ping: %v", err)
			return
		}
	}
}

// ---- Binary frame parsing ----
//
// Frame layout (big-endian): int16 packet count, then per packet an int16
// length followed by the packet bytes. Packet: uint32 token, then int32
// fields; price fields are already in paise on the wire.

func parseFrame(b []byte) []model.Tick {
	count := int(binary.BigEndian.Uint16(b[0:2]))
	ticks := make([]model.Tick, 0, count)

	offset := 2
	for i := 0; i < count; i++ {
		if offset+2 > len(b) {
			break
		}
		size := int(binary.BigEndian.Uint16(b[offset : offset+2]))
		offset += 2
		if offset+size > len(b) {
			break
		}
		if tick, ok := parsePacket(b[offset : offset+size]); ok {
			ticks = append(ticks, tick)
		}
		offset += size
	}
	return ticks
}

func parsePacket(p []byte) (model.Tick, bool) {
	if len(p) < packetLTP {
		return model.Tick{}, false
	}
	tick := model.Tick{
		Token:     binary.BigEndian.Uint32(p[0:4]),
		LastPrice: int64(int32(binary.BigEndian.Uint32(p[4:8]))),
	}

	if len(p) >= packetQuote {
		tick.LastQty = int64(int32(binary.BigEndian.Uint32(p[8:12])))
		tick.VolumeTraded = int64(int32(binary.BigEndian.Uint32(p[16:20])))
	}

	if len(p) >= packetFull {
		// last_trade_time at 44:48, exchange_timestamp at 60:64.
		if ts := int64(int32(binary.BigEndian.Uint32(p[60:64]))); ts > 0 {
			tick.TS = time.Unix(ts, 0)
		}
		tick.OI = binary.BigEndian.Uint32(p[48:52])
		// Best bid/ask are the first level of each depth side.
		tick.BidPrice = int64(int32(binary.BigEndian.Uint32(p[68:72])))
		tick.AskPrice = int64(int32(binary.BigEndian.Uint32(p[128:132])))
	}
	return tick, true
}

func mergeTokens(held, add []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(held)+len(add))
	out := make([]uint32, 0, len(held)+len(add))
	for _, t := range append(held, add...) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func removeTokens(held, drop []uint32) []uint32 {
	m := make(map[uint32]struct{}, len(drop))
	for _, t := range drop {
		m[t] = struct{}{}
	}
	out := held[:0]
	for _, t := range held {
		if _, ok := m[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
