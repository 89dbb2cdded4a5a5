package strategy

import (
	"fmt"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/model"
)

// smaCrossover trades the classic golden/death cross of two simple moving
// averages. An RSI(14) filter blocks longs when overbought and shorts when
// oversold; set rsi_filter=0 to disable it.
type smaCrossover struct {
	base
	fast, slow       int
	rsiFilter        bool
	rsiPeriod        int
	slPct, targetPct float64
}

func newSMACrossover(cfg Config) *smaCrossover {
	return &smaCrossover{
		base:      newBase(cfg),
		fast:      int(cfg.param("sma_fast", 10)),
		slow:      int(cfg.param("sma_slow", 30)),
		rsiFilter: cfg.param("rsi_filter", 1) != 0,
		rsiPeriod: int(cfg.param("rsi_period", 14)),
		slPct:     cfg.param("stop_loss_pct", 0.02),
		targetPct: cfg.param("target_pct", 0.04),
	}
}

func (s *smaCrossover) Name() string { return "sma_crossover" }

func (s *smaCrossover) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	need := s.slow + 2
	if s.rsiFilter && s.rsiPeriod+2 > need {
		need = s.rsiPeriod + 2
	}
	if len(candles) < need || !s.gateOpen() {
		return nil
	}

	closes := indicator.Closes(candles)
	fast := indicator.SMA(closes, s.fast)
	slow := indicator.SMA(closes, s.slow)

	i := len(closes) - 1
	crossedUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
	crossedDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]
	if !crossedUp && !crossedDown {
		return nil
	}

	if s.rsiFilter {
		rsi := indicator.RSI(closes, s.rsiPeriod)
		if crossedUp && rsi[i] > 70 {
			return nil
		}
		if crossedDown && rsi[i] < 30 {
			return nil
		}
	}

	if crossedUp {
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("SMA%d crossed above SMA%d", s.fast, s.slow), 0.65)
	}
	return s.entrySignal(s, KindSell, price,
		fmt.Sprintf("SMA%d crossed below SMA%d", s.fast, s.slow), 0.65)
}

func (s *smaCrossover) StopLoss(entry int64, side string) int64 {
	return pctStop(entry, side, s.slPct)
}

func (s *smaCrossover) Target(entry int64, side string) int64 {
	return pctTarget(entry, side, s.targetPct)
}

func (s *smaCrossover) Status() map[string]interface{} {
	return s.status(s.Name(), map[string]interface{}{
		"sma_fast": s.fast, "sma_slow": s.slow, "rsi_filter": s.rsiFilter,
	})
}
