// Package indicator provides technical indicator calculations over candle
// series.
//
// All functions take a chronological candle slice and return series aligned
// to the input: output[i] corresponds to candles[i], with zeros before the
// indicator has accumulated enough data. Prices come in as paise and all
// outputs are in rupees.
package indicator

import "smart-algo-trade/internal/model"

// Closes extracts close prices in rupees.
func Closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = float64(c.Close) / 100.0
	}
	return out
}

// Highs extracts high prices in rupees.
func Highs(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = float64(c.High) / 100.0
	}
	return out
}

// Lows extracts low prices in rupees.
func Lows(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = float64(c.Low) / 100.0
	}
	return out
}

// Volumes extracts traded volumes.
func Volumes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = float64(c.Volume)
	}
	return out
}

// Last returns the final value of a series, or 0 for an empty one.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
