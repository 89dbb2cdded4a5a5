package strategy

import (
	"fmt"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/model"
)

// emaScalping is the bare 9/21 crossover with tight scalping exits.
type emaScalping struct {
	base
	fast, slow       int
	slPct, targetPct float64
}

func newEMAScalping(cfg Config) *emaScalping {
	return &emaScalping{
		base:      newBase(cfg),
		fast:      int(cfg.param("ema_fast", 9)),
		slow:      int(cfg.param("ema_slow", 21)),
		slPct:     cfg.param("stop_loss_pct", 0.005),
		targetPct: cfg.param("target_pct", 0.01),
	}
}

func (s *emaScalping) Name() string { return "ema_scalping" }

func (s *emaScalping) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	if len(candles) < s.slow+2 || !s.gateOpen() {
		return nil
	}

	closes := indicator.Closes(candles)
	fast := indicator.EMA(closes, s.fast)
	slow := indicator.EMA(closes, s.slow)

	i := len(closes) - 1
	if fast[i-1] <= slow[i-1] && fast[i] > slow[i] {
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("EMA%d crossed above EMA%d", s.fast, s.slow), 0.6)
	}
	if fast[i-1] >= slow[i-1] && fast[i] < slow[i] {
		return s.entrySignal(s, KindSell, price,
			fmt.Sprintf("EMA%d crossed below EMA%d", s.fast, s.slow), 0.6)
	}
	return nil
}

func (s *emaScalping) StopLoss(entry int64, side string) int64 {
	return pctStop(entry, side, s.slPct)
}

func (s *emaScalping) Target(entry int64, side string) int64 {
	return pctTarget(entry, side, s.targetPct)
}

func (s *emaScalping) Status() map[string]interface{} {
	return s.status(s.Name(), map[string]interface{}{
		"ema_fast": s.fast, "ema_slow": s.slow,
	})
}
