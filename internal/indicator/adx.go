package indicator

import "smart-algo-trade/internal/model"

// ADX computes the average directional index plus the +DI/-DI series, all
// Wilder-smoothed. The ADX becomes defined around index 2*period-1.
func ADX(candles []model.Candle, period int) (adx, plusDI, minusDI []float64) {
	n := len(candles)
	adx = make([]float64, n)
	plusDI = make([]float64, n)
	minusDI = make([]float64, n)
	if period <= 0 || n < 2*period {
		return
	}

	tr := TrueRange(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := float64(candles[i].High-candles[i-1].High) / 100.0
		down := float64(candles[i-1].Low-candles[i].Low) / 100.0
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Wilder-smoothed sums over [1, period].
	var trS, plusS, minusS float64
	for i := 1; i <= period; i++ {
		trS += tr[i]
		plusS += plusDM[i]
		minusS += minusDM[i]
	}

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if i > period {
			trS = trS - trS/float64(period) + tr[i]
			plusS = plusS - plusS/float64(period) + plusDM[i]
			minusS = minusS - minusS/float64(period) + minusDM[i]
		}
		if trS == 0 {
			continue
		}
		plusDI[i] = 100 * plusS / trS
		minusDI[i] = 100 * minusS / trS
		sum := plusDI[i] + minusDI[i]
		if sum != 0 {
			dx[i] = 100 * abs(plusDI[i]-minusDI[i]) / sum
		}
	}

	// ADX seeds with the mean DX over the first period DX values.
	var seed float64
	for i := period; i < 2*period; i++ {
		seed += dx[i]
	}
	adx[2*period-1] = seed / float64(period)
	for i := 2 * period; i < n; i++ {
		adx[i] = (adx[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
