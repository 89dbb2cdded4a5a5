package indicator

import (
	"math"
	"testing"

	"smart-algo-trade/internal/model"
)

func candlesFrom(closesPaise ...int64) []model.Candle {
	out := make([]model.Candle, len(closesPaise))
	for i, c := range closesPaise {
		out[i] = model.Candle{Open: c, High: c + 50, Low: c - 50, Close: c, Volume: 100}
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func TestSMACorrectness(t *testing.T) {
	// Prices in rupees: 100, 102, 104, 103, 105.
	// SMA(3): _, _, 102, 103, 104.
	values := Closes(candlesFrom(10000, 10200, 10400, 10300, 10500))
	sma := SMA(values, 3)

	want := []float64{0, 0, 102, 103, 104}
	for i := range want {
		assertClose(t, "SMA(3)", sma[i], want[i], 1e-9)
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14}
	ema := EMA(values, 3)

	if ema[0] != 0 || ema[1] != 0 {
		t.Fatal("EMA defined before period")
	}
	assertClose(t, "seed", ema[2], 11, 1e-9)
	// mult = 0.5: 13*0.5 + 11*0.5 = 12; 14*0.5 + 12*0.5 = 13.
	assertClose(t, "ema[3]", ema[3], 12, 1e-9)
	assertClose(t, "ema[4]", ema[4], 13, 1e-9)
}

func TestRSIWilder(t *testing.T) {
	// Monotonic rise: RSI pegs at 100; monotonic fall pegs at 0.
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	rsi := RSI(up, 5)
	assertClose(t, "rsi up", Last(rsi), 100, 1e-9)

	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	rsi = RSI(down, 5)
	assertClose(t, "rsi down", Last(rsi), 0, 1e-9)

	// Alternating equal gains and losses settle at 50.
	flat := []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11}
	rsi = RSI(flat, 4)
	got := Last(rsi)
	if got < 40 || got > 60 {
		t.Fatalf("alternating RSI = %.2f, want near 50", got)
	}
}

func TestRSIBounds(t *testing.T) {
	values := []float64{5, 9, 2, 8, 1, 7, 3, 6, 4, 8, 2, 9}
	for _, v := range RSI(values, 5)[5:] {
		if v < 0 || v > 100 {
			t.Fatalf("RSI out of bounds: %f", v)
		}
	}
}

func TestMACDCrossoverSign(t *testing.T) {
	// Steep rise: fast EMA above slow EMA, MACD positive.
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i)*2
	}
	macd, signal, hist := MACD(values, 12, 26, 9)
	if Last(macd) <= 0 {
		t.Fatalf("macd = %f on rising series", Last(macd))
	}
	if Last(hist) != Last(macd)-Last(signal) {
		t.Fatal("histogram != macd - signal")
	}
	if macd[24] != 0 || macd[25] == 0 {
		t.Fatalf("macd defined from wrong index: [24]=%f [25]=%f", macd[24], macd[25])
	}
}

func TestATRConstantRange(t *testing.T) {
	// Every candle has the same 1-rupee range and identical closes, so
	// every true range is 1 and ATR converges to 1.
	candles := candlesFrom(10000, 10000, 10000, 10000, 10000, 10000)
	atr := ATR(candles, 3)
	assertClose(t, "atr", Last(atr), 1, 1e-9)
}

func TestBollingerBands(t *testing.T) {
	values := []float64{100, 102, 104, 103, 105, 101, 106}
	mid, upper, lower := Bollinger(values, 5, 2)
	for i := 4; i < len(values); i++ {
		if !(lower[i] < mid[i] && mid[i] < upper[i]) {
			t.Fatalf("band ordering broken at %d: %f %f %f", i, lower[i], mid[i], upper[i])
		}
		if math.Abs((upper[i]-mid[i])-(mid[i]-lower[i])) > 1e-9 {
			t.Fatalf("bands not symmetric at %d", i)
		}
	}
}

func TestADXTrendingVsFlat(t *testing.T) {
	trending := make([]model.Candle, 60)
	flat := make([]model.Candle, 60)
	for i := range trending {
		p := int64(10000 + i*100)
		trending[i] = model.Candle{Open: p, High: p + 80, Low: p - 20, Close: p + 60, Volume: 100}
		q := int64(10000)
		if i%2 == 1 {
			q = 10040
		}
		flat[i] = model.Candle{Open: q, High: q + 50, Low: q - 50, Close: q, Volume: 100}
	}

	adxT, plusDI, minusDI := ADX(trending, 14)
	adxF, _, _ := ADX(flat, 14)
	if Last(adxT) <= Last(adxF) {
		t.Fatalf("adx trending %.2f <= flat %.2f", Last(adxT), Last(adxF))
	}
	if Last(plusDI) <= Last(minusDI) {
		t.Fatalf("+DI %.2f <= -DI %.2f on an uptrend", Last(plusDI), Last(minusDI))
	}
}

func TestSupertrendDirection(t *testing.T) {
	n := 80
	candles := make([]model.Candle, n)
	// 40 rising candles then 40 falling ones.
	for i := 0; i < n; i++ {
		var p int64
		if i < 40 {
			p = int64(10000 + i*100)
		} else {
			p = int64(10000 + 40*100 - (i-40)*150)
		}
		candles[i] = model.Candle{Open: p, High: p + 60, Low: p - 60, Close: p, Volume: 100}
	}

	line, dir := Supertrend(candles, 10, 3.0)
	if dir[39] != TrendUp {
		t.Fatalf("direction during rise = %d", dir[39])
	}
	if dir[n-1] != TrendDown {
		t.Fatalf("direction after fall = %d", dir[n-1])
	}
	// In an uptrend the line sits below price; in a downtrend above.
	closes := Closes(candles)
	if line[39] >= closes[39] {
		t.Fatalf("uptrend line %.2f above price %.2f", line[39], closes[39])
	}
	if line[n-1] <= closes[n-1] {
		t.Fatalf("downtrend line %.2f below price %.2f", line[n-1], closes[n-1])
	}
}

func TestVWAPWithinRange(t *testing.T) {
	candles := []model.Candle{
		{High: 10100, Low: 9900, Close: 10000, Volume: 100},
		{High: 10300, Low: 10100, Close: 10200, Volume: 300},
		{High: 10200, Low: 10000, Close: 10100, Volume: 0},
	}
	vwap := VWAP(candles)
	assertClose(t, "vwap[0]", vwap[0], 100, 1e-9)
	if vwap[1] <= vwap[0] {
		t.Fatal("vwap did not pull toward the heavier candle")
	}
	// Zero-volume candle still contributes nothing new.
	assertClose(t, "vwap[2]", vwap[2], vwap[1], 1e-9)
}

func TestShortSeriesAllZero(t *testing.T) {
	values := []float64{1, 2}
	for _, v := range SMA(values, 5) {
		if v != 0 {
			t.Fatal("SMA on short series")
		}
	}
	for _, v := range EMA(values, 5) {
		if v != 0 {
			t.Fatal("EMA on short series")
		}
	}
	if got := RSI(values, 5); Last(got) != 0 {
		t.Fatal("RSI on short series")
	}
}
