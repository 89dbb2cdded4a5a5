// Package candles builds multi-timeframe OHLC candles from live ticks.
// Per (token, interval) the builder keeps one open candle and a bounded
// history of closed ones; bucket roll-over fires registered close handlers.
package candles

import (
	"log"
	"sync"
	"time"

	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/model"
)

// Intervals supported for live builds, in minutes.
var Intervals = []int{1, 3, 5, 10, 15, 30, 60}

// maxHistory caps closed candles retained per (token, interval); the oldest
// candle is evicted first.
const maxHistory = 500

// CloseHandler receives every candle the instant its bucket closes.
// Handlers run outside the builder lock on the tick-processing goroutine,
// so they must be fast or hand off internally.
type CloseHandler func(token uint32, c model.Candle)

type series struct {
	open *model.Candle
	hist []model.Candle
}

// Builder aggregates ticks into candles for every supported interval.
type Builder struct {
	mu     sync.Mutex
	series map[uint32]map[int]*series

	handlers   map[int][]CloseHandler
	handlersMu sync.RWMutex

	// Metrics hooks (optional, set externally)
	OnLateTick func()
	OnClose    func()
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{
		series:   make(map[uint32]map[int]*series),
		handlers: make(map[int][]CloseHandler),
	}
}

// OnCandleClose registers a handler for closed candles of one interval.
func (b *Builder) OnCandleClose(interval int, fn CloseHandler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[interval] = append(b.handlers[interval], fn)
}

// BucketStart floors ts to the interval boundary in market-local (IST) time.
func BucketStart(ts time.Time, interval int) time.Time {
	ist := ts.In(markethours.IST)
	mins := ist.Hour()*60 + ist.Minute()
	mins -= mins % interval
	return time.Date(ist.Year(), ist.Month(), ist.Day(), mins/60, mins%60, 0, 0, markethours.IST)
}

// ProcessTick folds one tick into every interval series for its token.
// Ticks older than the current open bucket are dropped; a tick exactly on a
// bucket boundary opens the new bucket.
func (b *Builder) ProcessTick(tick model.Tick) {
	type closed struct {
		interval int
		candle   model.Candle
	}
	var fired []closed

	b.mu.Lock()
	byInterval, ok := b.series[tick.Token]
	if !ok {
		byInterval = make(map[int]*series, len(Intervals))
		b.series[tick.Token] = byInterval
	}

	for _, iv := range Intervals {
		bucket := BucketStart(tick.TS, iv)

		s, ok := byInterval[iv]
		if !ok {
			s = &series{}
			byInterval[iv] = s
		}

		if s.open != nil && bucket.Before(s.open.Start) {
			// Late tick, belongs to an already-rolled bucket, drop it.
			if b.OnLateTick != nil {
				b.OnLateTick()
			}
			continue
		}

		if s.open != nil && bucket.After(s.open.Start) {
			c := *s.open
			c.Closed = true
			s.hist = append(s.hist, c)
			if len(s.hist) > maxHistory {
				s.hist = s.hist[1:]
			}
			fired = append(fired, closed{iv, c})
			s.open = nil
		}

		if s.open == nil {
			s.open = &model.Candle{
				Token:    tick.Token,
				Symbol:   tick.Symbol,
				Exchange: tick.Exchange,
				Interval: iv,
				Start:    bucket,
				Open:     tick.LastPrice,
				High:     tick.LastPrice,
				Low:      tick.LastPrice,
				Close:    tick.LastPrice,
			}
		}

		c := s.open
		if tick.LastPrice > c.High {
			c.High = tick.LastPrice
		}
		if tick.LastPrice < c.Low {
			c.Low = tick.LastPrice
		}
		c.Close = tick.LastPrice
		c.Volume += tick.LastQty
		c.TickCount++
	}
	b.mu.Unlock()

	// Close callbacks run outside the lock, in bucket order per key.
	for _, f := range fired {
		if b.OnClose != nil {
			b.OnClose()
		}
		b.fire(f.interval, f.candle)
	}
}

func (b *Builder) fire(interval int, c model.Candle) {
	b.handlersMu.RLock()
	handlers := b.handlers[interval]
	b.handlersMu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[candles] close handler panic for %s %dm: %v", c.Key(), interval, r)
				}
			}()
			fn(c.Token, c)
		}()
	}
}

// Current returns a copy of the open candle for (token, interval).
func (b *Builder) Current(token uint32, interval int) (model.Candle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.series[token][interval]; ok && s.open != nil {
		return *s.open, true
	}
	return model.Candle{}, false
}

// History returns up to n most recent closed candles for (token, interval),
// oldest first.
func (b *Builder) History(token uint32, interval int, n int) []model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.series[token][interval]
	if !ok {
		return nil
	}
	h := s.hist
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]model.Candle, len(h))
	copy(out, h)
	return out
}

// Flush discards all open candles. Called on shutdown: a partially formed
// bucket is never persisted or delivered as closed.
func (b *Builder) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, byInterval := range b.series {
		for _, s := range byInterval {
			s.open = nil
		}
	}
}

// Reset drops all candle state for a token (used when a subscription ends).
func (b *Builder) Reset(token uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.series, token)
}
