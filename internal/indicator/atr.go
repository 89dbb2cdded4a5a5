package indicator

import (
	"math"

	"smart-algo-trade/internal/model"
)

// TrueRange computes the true-range series in rupees. Index 0 uses
// high-low only.
func TrueRange(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		h := float64(c.High) / 100.0
		l := float64(c.Low) / 100.0
		if i == 0 {
			out[i] = h - l
			continue
		}
		pc := float64(candles[i-1].Close) / 100.0
		out[i] = math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
	}
	return out
}

// ATR computes the average true range with Wilder smoothing, seeded with the
// mean of the first period true ranges.
func ATR(candles []model.Candle, period int) []float64 {
	tr := TrueRange(candles)
	out := make([]float64, len(tr))
	if period <= 0 || len(tr) < period {
		return out
	}

	var seed float64
	for i := 0; i < period; i++ {
		seed += tr[i]
	}
	out[period-1] = seed / float64(period)

	for i := period; i < len(tr); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}
