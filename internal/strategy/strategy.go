// Package strategy implements the signal-generating trading strategies.
//
// A strategy instance is bound to one symbol with a capital allocation. On
// every evaluation it receives the recent candle series and the latest spot
// price and may emit a Signal; tick-driven strategies additionally implement
// TickProcessor.
package strategy

import (
	"fmt"
	"time"

	"smart-algo-trade/internal/model"
)

// Signal kinds.
const (
	KindBuy  = "BUY"
	KindSell = "SELL"
	KindHold = "HOLD"
	KindExit = "EXIT"
)

// Signal is one actionable strategy decision.
type Signal struct {
	TS         time.Time         `json:"ts"`
	Symbol     string            `json:"symbol"`
	Kind       string            `json:"kind"`
	Price      int64             `json:"price"` // paise
	Qty        int64             `json:"qty"`
	StopLoss   int64             `json:"stop_loss,omitempty"` // paise
	Target     int64             `json:"target,omitempty"`    // paise
	Reason     string            `json:"reason"`
	Confidence float64           `json:"confidence"` // [0,1]
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Strategy is the contract every variant implements.
type Strategy interface {
	Name() string

	// GenerateSignal evaluates the candle series and the latest price.
	// A nil return means no action.
	GenerateSignal(candles []model.Candle, price int64) *Signal

	// StopLoss and Target compute exit levels for an entry at the given
	// price and side.
	StopLoss(entry int64, side string) int64
	Target(entry int64, side string) int64

	// Status reports internal state for dashboards.
	Status() map[string]interface{}

	// ResetDay clears daily counters and any tracked position; called
	// after portfolio resets and at session start.
	ResetDay()
}

// TickProcessor is implemented by tick-driven strategies (Renko).
type TickProcessor interface {
	ProcessTick(tick model.Tick) *Signal
}

// Config is the per-instance strategy configuration.
type Config struct {
	Symbol          string
	Exchange        string
	Capital         int64   // paise allocated to this instance
	RiskPerTrade    float64 // fraction of capital risked per trade
	MaxLossPerDay   int64   // paise
	MaxTradesPerDay int
	Params          map[string]float64 // variant-specific overrides
}

func (c Config) param(key string, def float64) float64 {
	if v, ok := c.Params[key]; ok {
		return v
	}
	return def
}

// New constructs a strategy by type name.
func New(name string, cfg Config) (Strategy, error) {
	switch name {
	case "sma_crossover":
		return newSMACrossover(cfg), nil
	case "supertrend":
		return newSupertrend(cfg), nil
	case "ema_rsi":
		return newEMARSI(cfg), nil
	case "ema_scalping":
		return newEMAScalping(cfg), nil
	case "scalping":
		return newScalping(cfg), nil
	case "breakout":
		return newBreakout(cfg), nil
	case "orb":
		return newORB(cfg), nil
	case "pattern":
		return newPatternConfirm(cfg), nil
	case "renko_macd":
		return newRenkoMACD(cfg), nil
	default:
		return nil, fmt.Errorf("strategy: unknown type %q", name)
	}
}

// Names lists the registered strategy type names.
func Names() []string {
	return []string{
		"sma_crossover", "supertrend", "ema_rsi", "ema_scalping",
		"scalping", "breakout", "orb", "pattern", "renko_macd",
	}
}

// ---- Shared base ----

// position is the strategy-local view of its own open trade.
type position struct {
	side     string
	entry    int64
	qty      int64
	stopLoss int64
	target   int64
}

// base carries the state and rules common to every variant: position
// tracking, daily counters, sizing, and the risk gate.
type base struct {
	cfg Config

	pos         *position
	pnlToday    int64
	tradesToday int
	lastSignal  string
}

func newBase(cfg Config) base {
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = 0.01
	}
	return base{cfg: cfg}
}

// positionQty sizes an entry: risk capital divided by per-share stop
// distance, capped by what the allocation can actually buy.
func (b *base) positionQty(entry, stopLoss int64) int64 {
	if entry <= 0 {
		return 0
	}
	maxAffordable := b.cfg.Capital / entry
	dist := entry - stopLoss
	if dist < 0 {
		dist = -dist
	}
	if dist == 0 {
		return maxAffordable
	}
	riskCapital := int64(float64(b.cfg.Capital) * b.cfg.RiskPerTrade)
	qty := riskCapital / dist
	if qty > maxAffordable {
		qty = maxAffordable
	}
	return qty
}

// gateOpen reports whether a new entry is currently allowed.
func (b *base) gateOpen() bool {
	if b.pos != nil {
		return false
	}
	if b.cfg.MaxLossPerDay > 0 {
		loss := b.pnlToday
		if loss < 0 {
			loss = -loss
		}
		if loss >= b.cfg.MaxLossPerDay {
			return false
		}
	}
	if b.cfg.MaxTradesPerDay > 0 && b.tradesToday >= b.cfg.MaxTradesPerDay {
		return false
	}
	return true
}

// checkExit returns an EXIT signal when the open position's stop or target
// is hit at price.
func (b *base) checkExit(price int64) *Signal {
	p := b.pos
	if p == nil {
		return nil
	}
	var reason string
	switch {
	case p.side == KindBuy && p.stopLoss > 0 && price <= p.stopLoss:
		reason = "stop loss hit"
	case p.side == KindBuy && p.target > 0 && price >= p.target:
		reason = "target hit"
	case p.side == KindSell && p.stopLoss > 0 && price >= p.stopLoss:
		reason = "stop loss hit"
	case p.side == KindSell && p.target > 0 && price <= p.target:
		reason = "target hit"
	default:
		return nil
	}
	return &Signal{
		TS:         time.Now(),
		Symbol:     b.cfg.Symbol,
		Kind:       KindExit,
		Price:      price,
		Qty:        p.qty,
		Reason:     reason,
		Confidence: 1,
	}
}

// enter records a freshly signalled entry.
func (b *base) enter(side string, entry, qty, stopLoss, target int64) {
	b.pos = &position{side: side, entry: entry, qty: qty, stopLoss: stopLoss, target: target}
	b.tradesToday++
	b.lastSignal = side
}

// exit closes the strategy-local position and books its P&L.
func (b *base) exit(price int64) {
	if b.pos == nil {
		return
	}
	pnl := (price - b.pos.entry) * b.pos.qty
	if b.pos.side == KindSell {
		pnl = -pnl
	}
	b.pnlToday += pnl
	b.pos = nil
	b.lastSignal = KindExit
}

// updateStop raises or lowers the tracked stop (trailing strategies).
func (b *base) updateStop(stopLoss int64) {
	if b.pos != nil {
		b.pos.stopLoss = stopLoss
	}
}

// ResetDay clears daily counters and drops any tracked position.
func (b *base) ResetDay() {
	b.pos = nil
	b.pnlToday = 0
	b.tradesToday = 0
	b.lastSignal = ""
}

func (b *base) status(name string, extra map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"name":         name,
		"symbol":       b.cfg.Symbol,
		"capital":      b.cfg.Capital,
		"in_position":  b.pos != nil,
		"pnl_today":    b.pnlToday,
		"trades_today": b.tradesToday,
		"last_signal":  b.lastSignal,
	}
	if b.pos != nil {
		out["side"] = b.pos.side
		out["entry"] = b.pos.entry
		out["qty"] = b.pos.qty
		out["stop_loss"] = b.pos.stopLoss
		out["target"] = b.pos.target
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// entrySignal builds a fully-populated BUY/SELL signal and records it.
func (b *base) entrySignal(s Strategy, kind string, price int64, reason string, confidence float64) *Signal {
	stop := s.StopLoss(price, kind)
	target := s.Target(price, kind)
	qty := b.positionQty(price, stop)
	if qty <= 0 {
		return nil
	}
	b.enter(kind, price, qty, stop, target)
	return &Signal{
		TS:         time.Now(),
		Symbol:     b.cfg.Symbol,
		Kind:       kind,
		Price:      price,
		Qty:        qty,
		StopLoss:   stop,
		Target:     target,
		Reason:     reason,
		Confidence: confidence,
	}
}

// exitSignal marks the tracked position closed and returns the EXIT.
func (b *base) exitSignal(sig *Signal) *Signal {
	if sig != nil {
		b.exit(sig.Price)
	}
	return sig
}

// pctStop returns entry shifted by pct against the trade direction.
func pctStop(entry int64, side string, pct float64) int64 {
	delta := int64(float64(entry) * pct)
	if side == KindBuy {
		return entry - delta
	}
	return entry + delta
}

// pctTarget returns entry shifted by pct with the trade direction.
func pctTarget(entry int64, side string, pct float64) int64 {
	delta := int64(float64(entry) * pct)
	if side == KindBuy {
		return entry + delta
	}
	return entry - delta
}
