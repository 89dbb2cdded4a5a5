package strategy

import (
	"fmt"
	"strconv"
	"time"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/model"
)

// supertrendParams is one (period, multiplier) pair of the triplet.
type supertrendParams struct {
	period     int
	multiplier float64
}

// supertrendStrategy trades the alignment of three supertrend series. Entry
// requires all three directions to agree; the trailing stop is a weighted
// blend of the two supertrend lines closest to price, re-emitted on every
// evaluation as an update_sl HOLD while the trend holds.
type supertrendStrategy struct {
	base
	params [3]supertrendParams

	lastStop int64
}

// Blend weights for the two supertrend lines nearest the market.
const (
	stopWeightNear = 0.6
	stopWeightFar  = 0.4
)

func newSupertrend(cfg Config) *supertrendStrategy {
	return &supertrendStrategy{
		base: newBase(cfg),
		params: [3]supertrendParams{
			{int(cfg.param("st1_period", 7)), cfg.param("st1_multiplier", 3.0)},
			{int(cfg.param("st2_period", 10)), cfg.param("st2_multiplier", 3.0)},
			{int(cfg.param("st3_period", 11)), cfg.param("st3_multiplier", 2.0)},
		},
	}
}

func (s *supertrendStrategy) Name() string { return "supertrend" }

// trailingStop blends the two supertrend values closest to price, 0.6 on the
// nearest and 0.4 on the next.
func (s *supertrendStrategy) trailingStop(price int64, lines [3]float64) int64 {
	priceRs := float64(price) / 100

	// Order the three lines by distance to price; keep the closest two.
	vals := []float64{lines[0], lines[1], lines[2]}
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && dist(vals[j], priceRs) < dist(vals[j-1], priceRs); j-- {
			vals[j], vals[j-1] = vals[j-1], vals[j]
		}
	}
	blended := stopWeightNear*vals[0] + stopWeightFar*vals[1]
	return int64(blended * 100)
}

func dist(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func (s *supertrendStrategy) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	need := 0
	for _, p := range s.params {
		if 2*p.period > need {
			need = 2 * p.period
		}
	}
	if len(candles) < need {
		return nil
	}

	var lines [3]float64
	var dirs [3]int
	for i, p := range s.params {
		line, dir := indicator.Supertrend(candles, p.period, p.multiplier)
		lines[i] = indicator.Last(line)
		dirs[i] = dir[len(dir)-1]
	}

	allUp := dirs[0] == indicator.TrendUp && dirs[1] == indicator.TrendUp && dirs[2] == indicator.TrendUp
	allDown := dirs[0] == indicator.TrendDown && dirs[1] == indicator.TrendDown && dirs[2] == indicator.TrendDown

	// With an open position, trail the stop while the alignment holds.
	if s.pos != nil {
		aligned := (s.pos.side == KindBuy && allUp) || (s.pos.side == KindSell && allDown)
		if !aligned {
			sig := &Signal{
				TS: time.Now(), Symbol: s.cfg.Symbol, Kind: KindExit,
				Price: price, Qty: s.pos.qty,
				Reason: "supertrend alignment lost", Confidence: 0.9,
			}
			return s.exitSignal(sig)
		}
		stop := s.trailingStop(price, lines)
		if (s.pos.side == KindBuy && stop > s.pos.stopLoss) ||
			(s.pos.side == KindSell && stop < s.pos.stopLoss) {
			s.updateStop(stop)
			s.lastStop = stop
			return &Signal{
				TS: time.Now(), Symbol: s.cfg.Symbol, Kind: KindHold,
				Price: price, StopLoss: stop,
				Reason:     "trailing stop update",
				Confidence: 1,
				Metadata:   map[string]string{"action": "update_sl", "stop_loss": strconv.FormatInt(stop, 10)},
			}
		}
		return nil
	}

	if !s.gateOpen() {
		return nil
	}
	if allUp {
		s.lastStop = s.trailingStop(price, lines)
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("all supertrends up (%.2f/%.2f/%.2f)", lines[0], lines[1], lines[2]), 0.8)
	}
	if allDown {
		s.lastStop = s.trailingStop(price, lines)
		return s.entrySignal(s, KindSell, price,
			fmt.Sprintf("all supertrends down (%.2f/%.2f/%.2f)", lines[0], lines[1], lines[2]), 0.8)
	}
	return nil
}

func (s *supertrendStrategy) StopLoss(entry int64, side string) int64 {
	if s.lastStop > 0 {
		return s.lastStop
	}
	return pctStop(entry, side, 0.01)
}

func (s *supertrendStrategy) Target(entry int64, side string) int64 {
	// Trend-following: exits come from the trailing stop, not a fixed
	// target.
	return 0
}

func (s *supertrendStrategy) Status() map[string]interface{} {
	return s.status(s.Name(), map[string]interface{}{
		"periods":     []int{s.params[0].period, s.params[1].period, s.params[2].period},
		"multipliers": []float64{s.params[0].multiplier, s.params[1].multiplier, s.params[2].multiplier},
		"last_stop":   s.lastStop,
	})
}
