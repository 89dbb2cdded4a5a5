// Package tickhub owns the live tick pipeline: it drives the upstream
// streaming transport, keeps the subscription registry, maintains the LTP
// cache, and fans normalized ticks out to consumers.
package tickhub

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"smart-algo-trade/internal/model"
)

const (
	maxReconnectAttempts = 10
	reconnectDelay       = 5 * time.Second
)

// sub is one registered instrument.
type sub struct {
	Symbol   string
	Exchange string
	Mode     model.StreamMode
}

// Hub multiplexes one upstream stream to many consumers. Symbol resolution
// and timestamp normalization happen here so consumers only ever see
// complete ticks.
type Hub struct {
	streamer model.Streamer

	mu        sync.RWMutex
	subs      map[uint32]sub     // active on the upstream
	pending   map[uint32]sub     // queued while disconnected
	ltp       map[uint32]int64   // last traded price per token, paise
	bySymbol  map[string]uint32  // "EXCHANGE:SYMBOL" -> token
	connected bool

	outMu   sync.RWMutex
	outputs []chan model.Tick
	bufSize int

	// dropped wakes Run when the upstream closes mid-session. Buffered so
	// handleClose never blocks on the transport callback goroutine.
	dropped chan struct{}

	// Optional metrics hooks.
	OnTick       func()
	OnDrop       func(subscriberIdx int)
	OnReconnect  func()
	OnDisconnect func()
}

// New creates a Hub over the given transport. outputBufferSize sizes each
// subscriber channel.
func New(streamer model.Streamer, outputBufferSize int) *Hub {
	h := &Hub{
		streamer: streamer,
		subs:     make(map[uint32]sub),
		pending:  make(map[uint32]sub),
		ltp:      make(map[uint32]int64),
		bySymbol: make(map[string]uint32),
		bufSize:  outputBufferSize,
		dropped:  make(chan struct{}, 1),
	}
	streamer.OnTicks(h.handleTicks)
	streamer.OnConnect(h.handleConnect)
	streamer.OnClose(h.handleClose)
	streamer.OnError(func(err error) {
		log.Printf("[tickhub] transport error: %v", err)
	})
	return h
}

// Run connects the upstream and blocks until ctx is cancelled. Dropped
// connections are redialed with a fixed delay; after maxReconnectAttempts
// consecutive failures Run returns an error.
func (h *Hub) Run(ctx context.Context) error {
	for {
		if err := h.connect(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			h.streamer.Close()
			h.outMu.RLock()
			for _, ch := range h.outputs {
				close(ch)
			}
			h.outMu.RUnlock()
			return nil
		case <-h.dropped:
			log.Println("[tickhub] stream dropped, redialing")
		}
	}
}

func (h *Hub) connect(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    reconnectDelay,
		Max:    reconnectDelay,
		Jitter: false,
	}

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		err := h.streamer.Connect()
		if err == nil {
			return nil
		}
		log.Printf("[tickhub] connect attempt %d/%d failed: %v", attempt, maxReconnectAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return fmt.Errorf("tickhub: giving up after %d connect attempts", maxReconnectAttempts)
}

// Subscribe registers an instrument for streaming. Re-subscribing an
// already-tracked token is a no-op; while disconnected the request is queued
// and flushed on the next successful connect.
func (h *Hub) Subscribe(token uint32, symbol, exchange string, mode model.StreamMode) error {
	s := sub{Symbol: symbol, Exchange: exchange, Mode: mode}

	h.mu.Lock()
	if prev, ok := h.subs[token]; ok && prev == s {
		h.mu.Unlock()
		return nil
	}
	h.bySymbol[exchange+":"+symbol] = token
	if !h.connected {
		h.pending[token] = s
		h.mu.Unlock()
		return nil
	}
	h.subs[token] = s
	h.mu.Unlock()

	if err := h.streamer.Subscribe([]uint32{token}, mode); err != nil {
		h.mu.Lock()
		delete(h.subs, token)
		h.pending[token] = s
		h.mu.Unlock()
		return fmt.Errorf("tickhub: subscribe %s:%s: %w", exchange, symbol, err)
	}
	return nil
}

// Unsubscribe removes an instrument. Unknown tokens are ignored.
func (h *Hub) Unsubscribe(token uint32) error {
	h.mu.Lock()
	s, active := h.subs[token]
	if !active {
		s = h.pending[token]
	}
	delete(h.subs, token)
	delete(h.pending, token)
	if s.Symbol != "" {
		delete(h.bySymbol, s.Exchange+":"+s.Symbol)
	}
	delete(h.ltp, token)
	h.mu.Unlock()

	if !active {
		return nil
	}
	if err := h.streamer.Unsubscribe([]uint32{token}); err != nil {
		return fmt.Errorf("tickhub: unsubscribe token %d: %w", token, err)
	}
	return nil
}

// SubscribeTick creates a new output channel receiving every tick. Slow
// consumers drop ticks rather than stall the pipeline.
func (h *Hub) SubscribeTick() <-chan model.Tick {
	ch := make(chan model.Tick, h.bufSize)
	h.outMu.Lock()
	h.outputs = append(h.outputs, ch)
	h.outMu.Unlock()
	return ch
}

// LTP returns the cached last traded price for a token in paise.
func (h *Hub) LTP(token uint32) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.ltp[token]
	return p, ok
}

// LTPBySymbol resolves "EXCHANGE:SYMBOL" through the registry.
func (h *Hub) LTPBySymbol(instrument string) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	token, ok := h.bySymbol[instrument]
	if !ok {
		return 0, false
	}
	p, ok := h.ltp[token]
	return p, ok
}

// Tokens returns the tokens currently registered (active plus pending).
func (h *Hub) Tokens() []uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]uint32, 0, len(h.subs)+len(h.pending))
	for t := range h.subs {
		out = append(out, t)
	}
	for t := range h.pending {
		out = append(out, t)
	}
	return out
}

func (h *Hub) handleConnect() {
	h.mu.Lock()
	h.connected = true

	// Merge pending into active and resubscribe everything, grouped by mode.
	for t, s := range h.pending {
		h.subs[t] = s
		delete(h.pending, t)
	}
	byMode := make(map[model.StreamMode][]uint32)
	for t, s := range h.subs {
		byMode[s.Mode] = append(byMode[s.Mode], t)
	}
	h.mu.Unlock()

	for mode, tokens := range byMode {
		if err := h.streamer.Subscribe(tokens, mode); err != nil {
			log.Printf("[tickhub] resubscribe mode=%s tokens=%d: %v", mode, len(tokens), err)
		}
	}
	log.Printf("[tickhub] connected, %d tokens subscribed", len(h.Tokens()))
	if h.OnReconnect != nil {
		h.OnReconnect()
	}
}

func (h *Hub) handleClose() {
	h.mu.Lock()
	h.connected = false
	// Active subs fall back to pending so a later connect restores them.
	for t, s := range h.subs {
		h.pending[t] = s
		delete(h.subs, t)
	}
	h.mu.Unlock()
	log.Println("[tickhub] connection closed")

	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
	select {
	case h.dropped <- struct{}{}:
	default:
	}
}

// handleTicks runs on the transport read goroutine.
func (h *Hub) handleTicks(ticks []model.Tick) {
	now := time.Now()

	h.mu.Lock()
	for i := range ticks {
		t := &ticks[i]
		if s, ok := h.subs[t.Token]; ok {
			t.Symbol = s.Symbol
			t.Exchange = s.Exchange
		}
		if t.TS.IsZero() {
			t.TS = now
		}
		t.ReceivedAt = now
		h.ltp[t.Token] = t.LastPrice
	}
	h.mu.Unlock()

	h.outMu.RLock()
	for _, t := range ticks {
		if h.OnTick != nil {
			h.OnTick()
		}
		for i, ch := range h.outputs {
			select {
			case ch <- t:
			default:
				if h.OnDrop != nil {
					h.OnDrop(i)
				} else {
					log.Printf("[tickhub] output %d full, dropping tick %s", i, t.Key())
				}
			}
		}
	}
	h.outMu.RUnlock()
}
