package model

import (
	"context"
	"time"
)

// ---- External Ports ----
// These interfaces decouple the engine core from the upstream broker
// transport and the concrete storage implementations (SQLite, Redis).

// StreamMode selects how much of each tick the upstream sends.
type StreamMode string

const (
	ModeLTP   StreamMode = "ltp"
	ModeQuote StreamMode = "quote"
	ModeFull  StreamMode = "full"
)

// Streamer is the upstream streaming transport consumed by the tick hub.
// Implementations deliver tick batches to the handler registered with
// OnTicks; handlers run on the transport's read goroutine.
type Streamer interface {
	// Connect dials the upstream and starts the read loop.
	Connect() error

	// Close tears down the connection. Safe to call when disconnected.
	Close()

	// Subscribe registers tokens in the given mode. Only valid while
	// connected.
	Subscribe(tokens []uint32, mode StreamMode) error

	// Unsubscribe removes tokens from the upstream subscription.
	Unsubscribe(tokens []uint32) error

	// OnTicks registers the tick-batch handler.
	OnTicks(fn func(ticks []Tick))

	// OnConnect registers a handler fired after every successful (re)connect.
	OnConnect(fn func())

	// OnError registers a handler for transport errors.
	OnError(fn func(err error))

	// OnClose registers a handler fired when the connection drops.
	OnClose(fn func())
}

// PriceOracle answers request/response LTP queries. Instruments are
// "EXCHANGE:SYMBOL" strings; prices are returned in paise.
type PriceOracle interface {
	LTP(ctx context.Context, instruments []string) (map[string]int64, error)
}

// HistoricalSource fetches ordered OHLCV candles for one instrument window.
// Interval names follow the upstream convention: "minute", "3minute",
// "5minute", "15minute", "30minute", "60minute", "day".
type HistoricalSource interface {
	Candles(ctx context.Context, token uint32, interval string, from, to time.Time) ([]Candle, error)
}

// EngineStore persists paper-engine state. Every mutation in the engine is
// written through before the operation returns; LoadState rebuilds the full
// in-memory state on startup.
type EngineStore interface {
	SaveFunds(f Funds) error
	SaveOrder(o Order) error
	SavePosition(p Position) error
	DeletePosition(symbol, exchange, product string) error
	AppendTrade(t TradeEntry) error

	// LoadState returns funds, all orders, all open positions, and the
	// trade log, in that order. A store with no prior state returns
	// (nil, nil, nil, nil, nil) and the engine starts fresh.
	LoadState() (*Funds, []Order, []Position, []TradeEntry, error)

	// Reset drops all persisted engine state (portfolio reset).
	Reset() error

	Close() error
}

// Publisher pushes live engine output (ticks, closed candles, portfolio
// snapshots) to downstream consumers such as the API websocket hub.
type Publisher interface {
	PublishTick(ctx context.Context, t Tick)
	PublishCandle(ctx context.Context, c Candle)
	PublishPortfolio(ctx context.Context, user string, snapshot []byte)
	Close() error
}
