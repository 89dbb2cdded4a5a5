// Package renko converts price ticks into Renko bricks. A brick is a fixed
// price movement of at least the configured brick size; moves smaller than
// that are filtered out entirely, which makes the accumulated brick count a
// compact trend gauge for tick-driven strategies.
package renko

import (
	"log"
	"sync"
)

// State holds the brick state for one instrument. Prices are paise.
// Once initialized, UpperLimit - LowerLimit == 2 * BrickSize always holds.
type State struct {
	BrickSize  int64 `json:"brick_size"`
	UpperLimit int64 `json:"upper_limit"`
	LowerLimit int64 `json:"lower_limit"`
	BrickCount int64 `json:"brick_count"` // positive = uptrend, negative = downtrend
	LastPrice  int64 `json:"last_price"`
	limitsSet  bool
}

// Event describes the outcome of one price update.
type Event struct {
	Symbol     string `json:"symbol"`
	Formed     bool   `json:"brick_formed"`
	BrickCount int64  `json:"brick_count"`
	Change     int64  `json:"brick_change"`
	UpperLimit int64  `json:"upper_limit"`
	LowerLimit int64  `json:"lower_limit"`
	Price      int64  `json:"price"`
}

// Accumulator tracks Renko state per symbol.
type Accumulator struct {
	mu     sync.Mutex
	states map[string]*State
}

// New creates an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{states: make(map[string]*State)}
}

// Init configures the brick for a symbol. initialPrice 0 leaves the limits
// unset; they are seeded by the first Update.
func (a *Accumulator) Init(symbol string, brickSize, initialPrice int64) {
	if brickSize <= 0 {
		log.Printf("[renko] invalid brick size %d for %s, using 100", brickSize, symbol)
		brickSize = 100
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	st := &State{BrickSize: brickSize}
	if initialPrice > 0 {
		st.UpperLimit = initialPrice + brickSize
		st.LowerLimit = initialPrice - brickSize
		st.LastPrice = initialPrice
		st.limitsSet = true
	}
	a.states[symbol] = st
}

// Update feeds a new price and returns the resulting brick event.
// Symbols never passed to Init are auto-initialized with a 1-rupee brick.
//
// A price exactly on a limit forms no brick; strictly beyond it does. When
// the price gaps several brick sizes past a limit, all implied bricks form
// at once. A direction flip resets the count magnitude to 1.
func (a *Accumulator) Update(symbol string, price int64) Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.states[symbol]
	if !ok {
		st = &State{BrickSize: 100}
		a.states[symbol] = st
	}
	st.LastPrice = price

	if !st.limitsSet {
		st.UpperLimit = price + st.BrickSize
		st.LowerLimit = price - st.BrickSize
		st.limitsSet = true
		return Event{Symbol: symbol, Price: price, UpperLimit: st.UpperLimit, LowerLimit: st.LowerLimit}
	}

	old := st.BrickCount

	switch {
	case price > st.UpperLimit:
		gap := (price - st.UpperLimit) / st.BrickSize
		formed := 1 + gap
		st.LowerLimit = st.UpperLimit + gap*st.BrickSize - st.BrickSize
		st.UpperLimit = st.UpperLimit + formed*st.BrickSize
		st.BrickCount = max64(1, st.BrickCount+formed)

	case price < st.LowerLimit:
		gap := (st.LowerLimit - price) / st.BrickSize
		formed := 1 + gap
		st.UpperLimit = st.LowerLimit - gap*st.BrickSize + st.BrickSize
		st.LowerLimit = st.LowerLimit - formed*st.BrickSize
		st.BrickCount = min64(-1, st.BrickCount-formed)

	default:
		return Event{
			Symbol: symbol, Price: price, BrickCount: st.BrickCount,
			UpperLimit: st.UpperLimit, LowerLimit: st.LowerLimit,
		}
	}

	return Event{
		Symbol:     symbol,
		Formed:     true,
		BrickCount: st.BrickCount,
		Change:     st.BrickCount - old,
		UpperLimit: st.UpperLimit,
		LowerLimit: st.LowerLimit,
		Price:      price,
	}
}

// State returns a copy of the brick state for symbol, or false if unknown.
func (a *Accumulator) State(symbol string) (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[symbol]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Count returns the accumulated brick count for symbol (0 if unknown).
func (a *Accumulator) Count(symbol string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[symbol]; ok {
		return st.BrickCount
	}
	return 0
}

// StrongUp reports a directional run of at least threshold bricks up.
func (a *Accumulator) StrongUp(symbol string, threshold int64) bool {
	return a.Count(symbol) >= threshold
}

// StrongDown reports a directional run of at least threshold bricks down.
func (a *Accumulator) StrongDown(symbol string, threshold int64) bool {
	return a.Count(symbol) <= -threshold
}

// Reset forgets the state for symbol.
func (a *Accumulator) Reset(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, symbol)
}

// All returns a copy of every tracked state keyed by symbol.
func (a *Accumulator) All() map[string]State {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]State, len(a.states))
	for sym, st := range a.states {
		out[sym] = *st
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
