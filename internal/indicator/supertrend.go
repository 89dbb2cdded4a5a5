package indicator

import "smart-algo-trade/internal/model"

// TrendUp and TrendDown are the direction values Supertrend reports.
const (
	TrendUp   = 1
	TrendDown = -1
)

// Supertrend computes the supertrend line and its direction series for the
// given ATR period and band multiplier. While the trend is up the line is
// the final lower band (a rising stop under price); while down it is the
// final upper band. Direction is TrendUp or TrendDown, zero before ready.
func Supertrend(candles []model.Candle, period int, multiplier float64) (line []float64, dir []int) {
	n := len(candles)
	line = make([]float64, n)
	dir = make([]int, n)
	if period <= 0 || n < period+1 {
		return
	}

	atr := ATR(candles, period)
	closes := Closes(candles)

	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := period - 1; i < n; i++ {
		mid := (float64(candles[i].High) + float64(candles[i].Low)) / 200.0
		basicUpper := mid + multiplier*atr[i]
		basicLower := mid - multiplier*atr[i]

		if i == period-1 {
			upper[i] = basicUpper
			lower[i] = basicLower
			continue
		}

		// Final bands ratchet: the upper band only moves down while price
		// stays below it, the lower band only moves up while price stays
		// above it.
		if basicUpper < upper[i-1] || closes[i-1] > upper[i-1] {
			upper[i] = basicUpper
		} else {
			upper[i] = upper[i-1]
		}
		if basicLower > lower[i-1] || closes[i-1] < lower[i-1] {
			lower[i] = basicLower
		} else {
			lower[i] = lower[i-1]
		}
	}

	for i := period; i < n; i++ {
		prev := dir[i-1]
		if prev == 0 {
			prev = TrendUp
		}
		switch {
		case prev == TrendUp && closes[i] < lower[i-1]:
			dir[i] = TrendDown
		case prev == TrendDown && closes[i] > upper[i-1]:
			dir[i] = TrendUp
		default:
			dir[i] = prev
		}

		if dir[i] == TrendUp {
			line[i] = lower[i]
		} else {
			line[i] = upper[i]
		}
	}
	return
}
