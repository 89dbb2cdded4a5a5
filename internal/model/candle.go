package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Candle represents an OHLC candle for one instrument over one minute-based
// interval. All prices are in paise (int64) to avoid floating-point drift.
type Candle struct {
	Token     uint32    `json:"token"`
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Interval  int       `json:"interval"` // bucket width in minutes (1,3,5,10,15,30,60)
	Start     time.Time `json:"start"`    // bucket start, interval-aligned in IST
	Open      int64     `json:"open"`     // paise
	High      int64     `json:"high"`     // paise
	Low       int64     `json:"low"`      // paise
	Close     int64     `json:"close"`    // paise
	Volume    int64     `json:"volume"`   // traded quantity within the bucket
	TickCount int       `json:"tick_count"`
	Closed    bool      `json:"closed"` // once true the candle is immutable
}

// Key returns "exchange:symbol".
func (c *Candle) Key() string {
	return c.Exchange + ":" + c.Symbol
}

// ChannelKey returns the pubsub channel for this candle's series:
// "candle:{interval}m:{exchange}:{symbol}".
func (c *Candle) ChannelKey() string {
	return "candle:" + strconv.Itoa(c.Interval) + "m:" + c.Exchange + ":" + c.Symbol
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
