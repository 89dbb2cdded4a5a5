package strategy

import (
	"fmt"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/model"
)

// scalping is the fast RSI(7) momentum scalper. The buy and sell conditions
// are evaluated in that order, so on any overlap the buy wins.
type scalping struct {
	base
	rsiPeriod          int
	buyLevel, sellLevel float64
	slPct, targetPct   float64
}

func newScalping(cfg Config) *scalping {
	return &scalping{
		base:      newBase(cfg),
		rsiPeriod: int(cfg.param("rsi_period", 7)),
		buyLevel:  cfg.param("rsi_buy", 60),
		sellLevel: cfg.param("rsi_sell", 40),
		slPct:     cfg.param("stop_loss_pct", 0.002),
		targetPct: cfg.param("target_pct", 0.004),
	}
}

func (s *scalping) Name() string { return "scalping" }

func (s *scalping) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	if len(candles) < s.rsiPeriod+2 || !s.gateOpen() {
		return nil
	}

	rsi := indicator.Last(indicator.RSI(indicator.Closes(candles), s.rsiPeriod))
	if rsi >= s.buyLevel {
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("RSI%d %.1f above %.0f", s.rsiPeriod, rsi, s.buyLevel), 0.55)
	}
	if rsi <= s.sellLevel {
		return s.entrySignal(s, KindSell, price,
			fmt.Sprintf("RSI%d %.1f below %.0f", s.rsiPeriod, rsi, s.sellLevel), 0.55)
	}
	return nil
}

func (s *scalping) StopLoss(entry int64, side string) int64 {
	return pctStop(entry, side, s.slPct)
}

func (s *scalping) Target(entry int64, side string) int64 {
	return pctTarget(entry, side, s.targetPct)
}

func (s *scalping) Status() map[string]interface{} {
	return s.status(s.Name(), map[string]interface{}{
		"rsi_period": s.rsiPeriod, "rsi_buy": s.buyLevel, "rsi_sell": s.sellLevel,
	})
}
