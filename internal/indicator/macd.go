package indicator

// MACD computes the MACD line, signal line, and histogram for the standard
// (fast, slow, signal) parameterization. The MACD line is defined from index
// slow-1; the signal line from index slow-1+signal-1.
func MACD(values []float64, fast, slow, signal int) (macd, signalLine, hist []float64) {
	n := len(values)
	macd = make([]float64, n)
	signalLine = make([]float64, n)
	hist = make([]float64, n)
	if n < slow {
		return
	}

	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)
	for i := slow - 1; i < n; i++ {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal line is an EMA over the defined part of the MACD line.
	defined := macd[slow-1:]
	sig := EMA(defined, signal)
	for i, v := range sig {
		signalLine[slow-1+i] = v
	}
	for i := slow + signal - 2; i < n; i++ {
		hist[i] = macd[i] - signalLine[i]
	}
	return
}
