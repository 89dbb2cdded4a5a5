package strategy

import (
	"fmt"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/model"
)

// breakout trades closes beyond dynamic support/resistance. Levels are the
// extremes of the last lookback closed candles and are recomputed every
// recalcEvery evaluations; breakouts need candle volume above volumeFactor
// times the rolling average to confirm.
type breakout struct {
	base
	lookback     int
	recalcEvery  int
	volumeFactor float64
	slPct        float64

	evals      int
	support    int64 // paise
	resistance int64
}

func newBreakout(cfg Config) *breakout {
	return &breakout{
		base:         newBase(cfg),
		lookback:     int(cfg.param("lookback", 20)),
		recalcEvery:  int(cfg.param("recalc_every", 5)),
		volumeFactor: cfg.param("volume_factor", 1.2),
		slPct:        cfg.param("stop_loss_pct", 0.01),
	}
}

func (s *breakout) Name() string { return "breakout" }

func (s *breakout) recomputeLevels(candles []model.Candle) {
	// Exclude the newest candle so its own breakout does not move the level.
	window := candles[len(candles)-1-s.lookback : len(candles)-1]
	s.support = window[0].Low
	s.resistance = window[0].High
	for _, c := range window {
		if c.Low < s.support {
			s.support = c.Low
		}
		if c.High > s.resistance {
			s.resistance = c.High
		}
	}
}

func (s *breakout) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	if len(candles) < s.lookback+2 {
		return nil
	}

	if s.evals%s.recalcEvery == 0 || s.resistance == 0 {
		s.recomputeLevels(candles)
	}
	s.evals++

	if !s.gateOpen() {
		return nil
	}

	last := candles[len(candles)-1]
	vols := indicator.Volumes(candles[:len(candles)-1])
	avgVol := indicator.Last(indicator.SMA(vols, s.lookback))
	confirmed := avgVol > 0 && float64(last.Volume) >= s.volumeFactor*avgVol

	if last.Close > s.resistance && confirmed {
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("close above resistance %.2f on %.1fx volume",
				float64(s.resistance)/100, float64(last.Volume)/avgVol), 0.75)
	}
	if last.Close < s.support && confirmed {
		return s.entrySignal(s, KindSell, price,
			fmt.Sprintf("close below support %.2f on %.1fx volume",
				float64(s.support)/100, float64(last.Volume)/avgVol), 0.75)
	}
	return nil
}

func (s *breakout) StopLoss(entry int64, side string) int64 {
	// Stops anchor to the broken level when it is tighter than the
	// percentage floor.
	if side == KindBuy && s.resistance > 0 && s.resistance < entry {
		return s.resistance
	}
	if side == KindSell && s.support > entry {
		return s.support
	}
	return pctStop(entry, side, s.slPct)
}

func (s *breakout) Target(entry int64, side string) int64 {
	// Target anchors to the next level: the width of the broken range
	// projected beyond the breakout.
	width := s.resistance - s.support
	if width <= 0 {
		return pctTarget(entry, side, 2*s.slPct)
	}
	if side == KindBuy {
		return entry + width
	}
	return entry - width
}

func (s *breakout) Status() map[string]interface{} {
	return s.status(s.Name(), map[string]interface{}{
		"lookback":   s.lookback,
		"support":    s.support,
		"resistance": s.resistance,
	})
}
