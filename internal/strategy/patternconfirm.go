package strategy

import (
	"fmt"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/pattern"
)

// patternConfirm enters on high-confidence candlestick patterns that agree
// with the prevailing trend, judged by price against EMA with ADX strong
// enough to call it a trend.
type patternConfirm struct {
	base
	minConfidence float64
	emaPeriod     int
	adxPeriod     int
	adxThreshold  float64
	slPct         float64
	targetPct     float64
}

func newPatternConfirm(cfg Config) *patternConfirm {
	return &patternConfirm{
		base:          newBase(cfg),
		minConfidence: cfg.param("min_confidence", 0.8),
		emaPeriod:     int(cfg.param("ema_period", 21)),
		adxPeriod:     int(cfg.param("adx_period", 14)),
		adxThreshold:  cfg.param("adx_threshold", 20),
		slPct:         cfg.param("stop_loss_pct", 0.01),
		targetPct:     cfg.param("target_pct", 0.02),
	}
}

func (s *patternConfirm) Name() string { return "pattern" }

func (s *patternConfirm) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	need := 2 * s.adxPeriod
	if s.emaPeriod+1 > need {
		need = s.emaPeriod + 1
	}
	if len(candles) < need || !s.gateOpen() {
		return nil
	}

	m, ok := pattern.Best(candles, s.minConfidence)
	if !ok {
		return nil
	}

	closes := indicator.Closes(candles)
	ema := indicator.Last(indicator.EMA(closes, s.emaPeriod))
	adx, _, _ := indicator.ADX(candles, s.adxPeriod)
	if indicator.Last(adx) < s.adxThreshold {
		return nil
	}

	priceRs := float64(price) / 100
	if m.Direction == pattern.Bullish && priceRs > ema {
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("%s with uptrend confirmation", m.Name), m.Confidence)
	}
	if m.Direction == pattern.Bearish && priceRs < ema {
		return s.entrySignal(s, KindSell, price,
			fmt.Sprintf("%s with downtrend confirmation", m.Name), m.Confidence)
	}
	return nil
}

func (s *patternConfirm) StopLoss(entry int64, side string) int64 {
	return pctStop(entry, side, s.slPct)
}

func (s *patternConfirm) Target(entry int64, side string) int64 {
	return pctTarget(entry, side, s.targetPct)
}

func (s *patternConfirm) Status() map[string]interface{} {
	return s.status(s.Name(), map[string]interface{}{
		"min_confidence": s.minConfidence,
		"ema_period":     s.emaPeriod,
		"adx_threshold":  s.adxThreshold,
	})
}
