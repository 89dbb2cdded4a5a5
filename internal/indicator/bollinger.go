package indicator

import "math"

// Bollinger computes the middle (SMA), upper, and lower bands with k standard
// deviations around the middle.
func Bollinger(values []float64, period int, k float64) (middle, upper, lower []float64) {
	n := len(values)
	middle = SMA(values, period)
	upper = make([]float64, n)
	lower = make([]float64, n)
	if period <= 0 || n < period {
		return
	}

	for i := period - 1; i < n; i++ {
		// Population standard deviation over the window.
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - middle[i]
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		upper[i] = middle[i] + k*sd
		lower[i] = middle[i] - k*sd
	}
	return
}
