// Package bot orchestrates the strategy runtime against the paper engine:
// it owns the lifecycle state machine, the tick fan-in, and the periodic
// monitoring loop with its auto square-off.
package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/notification"
	"smart-algo-trade/internal/paper"
	"smart-algo-trade/internal/strategy"
)

// State is the bot lifecycle state.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StatePaused   State = "PAUSED"
	StateStopping State = "STOPPING"
	StateError    State = "ERROR"
)

// Order tags the bot stamps on its own orders.
const (
	tagBot       = "BOT_"
	tagStopLoss  = "SL_BOT_"
	tagSquareOff = "AUTO_SQUAREOFF"
)

// TickStream is the subset of the tick hub the bot drives.
type TickStream interface {
	Subscribe(token uint32, symbol, exchange string, mode model.StreamMode) error
	Unsubscribe(token uint32) error
	SubscribeTick() <-chan model.Tick
}

// CandleSource delivers recent history for strategy evaluation.
type CandleSource interface {
	FetchDaysBack(ctx context.Context, token uint32, interval string, days int) ([]model.Candle, error)
}

// InstrumentResolver maps (exchange, symbol) to an instrument.
type InstrumentResolver func(exchange, symbol string) (model.Instrument, bool)

// Config for the bot.
type Config struct {
	Exchange        string
	Product         string
	CandleInterval  string // upstream interval name, e.g. "5minute"
	HistoryDays     int
	LoopInterval    time.Duration
	SquareOffHour   int
	SquareOffMinute int
	SquareOffRetry  int

	// Per-strategy risk settings, forwarded into strategy.Config.
	RiskPerTrade    float64
	MaxLossPerDay   int64
	MaxTradesPerDay int

	// Notifier receives trade alerts when set. Delivery is queued off the
	// trading path; nil disables alerts.
	Notifier *notification.Dispatcher
}

func (c *Config) defaults() {
	if c.Product == "" {
		c.Product = model.ProductMIS
	}
	if c.CandleInterval == "" {
		c.CandleInterval = "5minute"
	}
	if c.HistoryDays == 0 {
		c.HistoryDays = 5
	}
	if c.LoopInterval == 0 {
		c.LoopInterval = 60 * time.Second
	}
	if c.SquareOffHour == 0 {
		c.SquareOffHour = 15
		c.SquareOffMinute = 15
	}
	if c.SquareOffRetry == 0 {
		c.SquareOffRetry = 10
	}
}

// activePair is the live entry/stop order pair for one symbol.
type activePair struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Qty          int64  `json:"qty"`
	EntryOrderID string `json:"entry_order_id"`
	SLOrderID    string `json:"sl_order_id,omitempty"`
}

// Bot runs one strategy type over a set of symbols.
type Bot struct {
	cfg     Config
	engine  *paper.Engine
	stream  TickStream
	candles CandleSource
	oracle  model.PriceOracle
	resolve InstrumentResolver

	mu         sync.Mutex
	state      State
	strategies map[string]strategy.Strategy // by symbol
	tokens     map[string]uint32            // by symbol
	active     map[string]*activePair       // by symbol
	lastPrices map[string]int64             // by symbol, paise
	cancel     context.CancelFunc
	done       chan struct{}

	// Session counters, reset on Start.
	signalsGenerated int64
	ordersPlaced     int64

	// Test hooks.
	now        func() time.Time
	marketOpen func(time.Time) bool
}

// New wires a bot. All dependencies are required except oracle, which only
// degrades the LTP refresh when absent.
func New(cfg Config, engine *paper.Engine, stream TickStream, candles CandleSource,
	oracle model.PriceOracle, resolve InstrumentResolver) *Bot {
	cfg.defaults()
	return &Bot{
		cfg:        cfg,
		engine:     engine,
		stream:     stream,
		candles:    candles,
		oracle:     oracle,
		resolve:    resolve,
		state:      StateStopped,
		strategies: make(map[string]strategy.Strategy),
		tokens:     make(map[string]uint32),
		active:     make(map[string]*activePair),
		lastPrices: make(map[string]int64),
		now:        time.Now,
		marketOpen: markethours.IsMarketOpen,
	}
}

// State returns the current lifecycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bot) setState(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()
	if prev != s {
		log.Printf("[bot] %s -> %s", prev, s)
	}
}

// notify forwards a trade alert when a dispatcher is configured.
func (b *Bot) notify(level notification.AlertLevel, title, format string, args ...interface{}) {
	if b.cfg.Notifier != nil {
		b.cfg.Notifier.Notify(level, title, format, args...)
	}
}

// Start instantiates one strategy per symbol, reserves the combined capital,
// subscribes the symbols, and launches the monitoring loop.
func (b *Bot) Start(ctx context.Context, symbols []string, strategyName string,
	capitalPerSymbol int64, params map[string]float64) error {

	b.mu.Lock()
	if b.state != StateStopped {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("bot: cannot start from state %s", state)
	}
	b.state = StateStarting
	b.signalsGenerated = 0
	b.ordersPlaced = 0
	b.mu.Unlock()

	if len(symbols) == 0 || capitalPerSymbol <= 0 {
		b.setState(StateStopped)
		return fmt.Errorf("bot: need symbols and a positive capital allocation")
	}

	strategies := make(map[string]strategy.Strategy, len(symbols))
	tokens := make(map[string]uint32, len(symbols))
	for _, sym := range symbols {
		inst, ok := b.resolve(b.cfg.Exchange, sym)
		if !ok {
			b.setState(StateStopped)
			return fmt.Errorf("bot: unknown instrument %s:%s", b.cfg.Exchange, sym)
		}
		s, err := strategy.New(strategyName, strategy.Config{
			Symbol:          sym,
			Exchange:        b.cfg.Exchange,
			Capital:         capitalPerSymbol,
			RiskPerTrade:    b.cfg.RiskPerTrade,
			MaxLossPerDay:   b.cfg.MaxLossPerDay,
			MaxTradesPerDay: b.cfg.MaxTradesPerDay,
			Params:          params,
		})
		if err != nil {
			b.setState(StateStopped)
			return err
		}
		strategies[sym] = s
		tokens[sym] = inst.Token
	}

	// Fail fast when the combined allocation does not fit.
	if err := b.engine.Allocate(capitalPerSymbol * int64(len(symbols))); err != nil {
		b.setState(StateStopped)
		return fmt.Errorf("bot: reserve funds: %w", err)
	}

	for sym, token := range tokens {
		if err := b.stream.Subscribe(token, sym, b.cfg.Exchange, model.ModeFull); err != nil {
			b.engine.Reclaim()
			b.setState(StateError)
			return fmt.Errorf("bot: subscribe %s: %w", sym, err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.strategies = strategies
	b.tokens = tokens
	b.cancel = cancel
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.consumeTicks(loopCtx, b.stream.SubscribeTick())
	go b.monitorLoop(loopCtx)

	b.setState(StateRunning)
	log.Printf("[bot] started strategy=%s symbols=%v capital/symbol=%d",
		strategyName, symbols, capitalPerSymbol)
	b.notify(notification.AlertInfo, "bot started",
		"strategy %s on %d symbols, ₹%.2f each", strategyName, len(symbols), float64(capitalPerSymbol)/100)
	return nil
}

// Pause halts signal generation; LTP updates keep flowing.
func (b *Bot) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateRunning {
		return fmt.Errorf("bot: cannot pause from state %s", b.state)
	}
	b.state = StatePaused
	return nil
}

// Resume restores signal generation.
func (b *Bot) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StatePaused {
		return fmt.Errorf("bot: cannot resume from state %s", b.state)
	}
	b.state = StateRunning
	return nil
}

// ResetState clears tracked pairs and per-strategy daily state. Called after
// a portfolio reset so the bot does not act on stale positions.
func (b *Bot) ResetState() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = make(map[string]*activePair)
	for _, s := range b.strategies {
		s.ResetDay()
	}
}

// Stop terminates the loop, optionally squares off everything, reclaims the
// reserved funds, and clears the strategies.
func (b *Bot) Stop(ctx context.Context, squareOff bool) error {
	b.mu.Lock()
	if b.state != StateRunning && b.state != StatePaused {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("bot: cannot stop from state %s", state)
	}
	b.state = StateStopping
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if squareOff {
		b.SquareOff(ctx)
	}

	b.teardown()
	return nil
}

// teardown releases everything Start acquired: reclaims reserved funds,
// unsubscribes the stream, clears strategy state, and lands in STOPPED.
// Shared by Stop and the auto square-off cutoff.
func (b *Bot) teardown() {
	reclaimed := b.engine.Reclaim()

	b.mu.Lock()
	for sym, token := range b.tokens {
		if err := b.stream.Unsubscribe(token); err != nil {
			log.Printf("[bot] unsubscribe %s: %v", sym, err)
		}
	}
	b.strategies = make(map[string]strategy.Strategy)
	b.tokens = make(map[string]uint32)
	b.active = make(map[string]*activePair)
	b.mu.Unlock()

	b.setState(StateStopped)
	log.Printf("[bot] stopped, reclaimed %d", reclaimed)
	b.notify(notification.AlertInfo, "bot stopped",
		"reclaimed ₹%.2f of reserved capital", float64(reclaimed)/100)
}

// Status reports the bot and per-strategy state for dashboards.
func (b *Bot) Status() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	strategies := make(map[string]interface{}, len(b.strategies))
	for sym, s := range b.strategies {
		strategies[sym] = s.Status()
	}
	pairs := make([]activePair, 0, len(b.active))
	for _, p := range b.active {
		pairs = append(pairs, *p)
	}
	return map[string]interface{}{
		"state":             string(b.state),
		"symbols":           len(b.strategies),
		"strategies":        strategies,
		"active_positions":  pairs,
		"signals_generated": b.signalsGenerated,
		"orders_placed":     b.ordersPlaced,
		"pnl_today":         b.engine.Stats().DailyPnL,
	}
}
