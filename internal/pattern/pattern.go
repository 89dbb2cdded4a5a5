// Package pattern detects candlestick reversal patterns on closed candles.
package pattern

import "smart-algo-trade/internal/model"

// Direction of the move a pattern anticipates.
type Direction int

const (
	Bullish Direction = 1
	Bearish Direction = -1
)

// Match is one detected pattern on the last candle of the scanned window.
type Match struct {
	Name       string    `json:"name"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // [0,1]
}

type body struct {
	open, high, low, close float64
	size                   float64 // |close-open|
	rng                    float64 // high-low
	upperWick, lowerWick   float64
	bullish                bool
}

func newBody(c model.Candle) body {
	b := body{
		open:  float64(c.Open),
		high:  float64(c.High),
		low:   float64(c.Low),
		close: float64(c.Close),
	}
	b.size = abs(b.close - b.open)
	b.rng = b.high - b.low
	b.upperWick = b.high - max(b.open, b.close)
	b.lowerWick = min(b.open, b.close) - b.low
	b.bullish = b.close > b.open
	return b
}

// Scan examines the tail of the candle series and returns every pattern
// found on the most recent candle, best confidence first.
func Scan(candles []model.Candle) []Match {
	if len(candles) == 0 {
		return nil
	}
	var out []Match

	cur := newBody(candles[len(candles)-1])
	if cur.rng <= 0 {
		return nil
	}

	if m, ok := doji(cur); ok {
		out = append(out, m)
	}
	if m, ok := hammer(cur); ok {
		out = append(out, m)
	}
	if m, ok := shootingStar(cur); ok {
		out = append(out, m)
	}
	if len(candles) >= 2 {
		prev := newBody(candles[len(candles)-2])
		if m, ok := engulfing(prev, cur); ok {
			out = append(out, m)
		}
	}
	if len(candles) >= 3 {
		a := newBody(candles[len(candles)-3])
		b := newBody(candles[len(candles)-2])
		if m, ok := star(a, b, cur); ok {
			out = append(out, m)
		}
	}

	// Insertion sort by confidence; the list is tiny.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Confidence > out[j-1].Confidence; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Best returns the highest-confidence match at or above minConfidence.
func Best(candles []model.Candle, minConfidence float64) (Match, bool) {
	for _, m := range Scan(candles) {
		if m.Confidence >= minConfidence {
			return m, true
		}
	}
	return Match{}, false
}

// doji: the body is a sliver of the full range. Direction follows the wick
// balance, defaulting bullish on a perfect balance.
func doji(b body) (Match, bool) {
	if b.size > 0.1*b.rng {
		return Match{}, false
	}
	dir := Bullish
	if b.upperWick > b.lowerWick {
		dir = Bearish
	}
	conf := 0.6 + 0.2*(1-b.size/(0.1*b.rng+1e-9))
	return Match{Name: "doji", Direction: dir, Confidence: clamp(conf)}, true
}

// hammer: small body at the top of the range with a long lower shadow.
func hammer(b body) (Match, bool) {
	if b.size <= 0 || b.lowerWick < 2*b.size || b.upperWick > b.size {
		return Match{}, false
	}
	conf := 0.7 + 0.1*min(b.lowerWick/(3*b.size), 1)
	return Match{Name: "hammer", Direction: Bullish, Confidence: clamp(conf)}, true
}

// shootingStar: the hammer mirrored: long upper shadow, body at the bottom.
func shootingStar(b body) (Match, bool) {
	if b.size <= 0 || b.upperWick < 2*b.size || b.lowerWick > b.size {
		return Match{}, false
	}
	conf := 0.7 + 0.1*min(b.upperWick/(3*b.size), 1)
	return Match{Name: "shooting_star", Direction: Bearish, Confidence: clamp(conf)}, true
}

// engulfing: the current body fully wraps the previous, opposite-colored one.
func engulfing(prev, cur body) (Match, bool) {
	if prev.size <= 0 || cur.size <= prev.size {
		return Match{}, false
	}
	if cur.bullish && !prev.bullish &&
		cur.open <= prev.close && cur.close >= prev.open {
		return Match{Name: "bullish_engulfing", Direction: Bullish,
			Confidence: clamp(0.75 + 0.1*min(cur.size/(2*prev.size), 1))}, true
	}
	if !cur.bullish && prev.bullish &&
		cur.open >= prev.close && cur.close <= prev.open {
		return Match{Name: "bearish_engulfing", Direction: Bearish,
			Confidence: clamp(0.75 + 0.1*min(cur.size/(2*prev.size), 1))}, true
	}
	return Match{}, false
}

// star: three-candle reversal: a long candle, a small-bodied pause, and a
// long candle the other way closing beyond the first one's midpoint.
func star(a, b, c body) (Match, bool) {
	if a.size <= 0 || c.size <= 0 || b.size > 0.5*a.size {
		return Match{}, false
	}
	mid := (a.open + a.close) / 2
	if !a.bullish && c.bullish && c.close > mid {
		return Match{Name: "morning_star", Direction: Bullish, Confidence: 0.85}, true
	}
	if a.bullish && !c.bullish && c.close < mid {
		return Match{Name: "evening_star", Direction: Bearish, Confidence: 0.85}, true
	}
	return Match{}, false
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
