package indicator

import "smart-algo-trade/internal/model"

// VWAP computes the cumulative volume-weighted average price series over the
// given candles. Candles with zero volume carry the previous value forward.
func VWAP(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	var cumPV, cumV float64
	for i, c := range candles {
		typical := float64(c.High+c.Low+c.Close) / 300.0
		v := float64(c.Volume)
		cumPV += typical * v
		cumV += v
		if cumV > 0 {
			out[i] = cumPV / cumV
		} else if i > 0 {
			out[i] = out[i-1]
		}
	}
	return out
}
