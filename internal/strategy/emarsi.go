package strategy

import (
	"fmt"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/model"
)

// emaRSI trades 9/21 EMA crossovers filtered by RSI(14): longs need the
// market not overbought, shorts not oversold.
type emaRSI struct {
	base
	fast, slow, rsiPeriod int
	slPct, targetPct      float64
}

func newEMARSI(cfg Config) *emaRSI {
	return &emaRSI{
		base:      newBase(cfg),
		fast:      int(cfg.param("ema_fast", 9)),
		slow:      int(cfg.param("ema_slow", 21)),
		rsiPeriod: int(cfg.param("rsi_period", 14)),
		slPct:     cfg.param("stop_loss_pct", 0.02),
		targetPct: cfg.param("target_pct", 0.04),
	}
}

func (s *emaRSI) Name() string { return "ema_rsi" }

func (s *emaRSI) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	need := s.slow + 2
	if s.rsiPeriod+2 > need {
		need = s.rsiPeriod + 2
	}
	if len(candles) < need || !s.gateOpen() {
		return nil
	}

	closes := indicator.Closes(candles)
	fast := indicator.EMA(closes, s.fast)
	slow := indicator.EMA(closes, s.slow)
	rsi := indicator.RSI(closes, s.rsiPeriod)

	i := len(closes) - 1
	crossedUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
	crossedDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]

	if crossedUp && rsi[i] < 70 {
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("EMA%d crossed above EMA%d, RSI %.1f", s.fast, s.slow, rsi[i]), 0.7)
	}
	if crossedDown && rsi[i] > 30 {
		return s.entrySignal(s, KindSell, price,
			fmt.Sprintf("EMA%d crossed below EMA%d, RSI %.1f", s.fast, s.slow, rsi[i]), 0.7)
	}
	return nil
}

func (s *emaRSI) StopLoss(entry int64, side string) int64 {
	return pctStop(entry, side, s.slPct)
}

func (s *emaRSI) Target(entry int64, side string) int64 {
	return pctTarget(entry, side, s.targetPct)
}

func (s *emaRSI) Status() map[string]interface{} {
	return s.status(s.Name(), map[string]interface{}{
		"ema_fast": s.fast, "ema_slow": s.slow, "rsi_period": s.rsiPeriod,
	})
}
