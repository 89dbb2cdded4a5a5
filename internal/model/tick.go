package model

import "time"

// Tick represents a single market data tick from the upstream stream.
// Prices are stored as int64 in paise (1 INR = 100 paise) to avoid float drift.
type Tick struct {
	Token        uint32    `json:"token"`
	Symbol       string    `json:"symbol"`   // filled in by the tick hub
	Exchange     string    `json:"exchange"` // filled in by the tick hub
	LastPrice    int64     `json:"last_price"`    // paise (LTP)
	LastQty      int64     `json:"last_qty"`      // last traded quantity
	VolumeTraded int64     `json:"volume_traded"` // cumulative day volume
	BidPrice     int64     `json:"bid,omitempty"` // best bid in paise
	AskPrice     int64     `json:"ask,omitempty"` // best ask in paise
	OI           uint32    `json:"oi,omitempty"`  // open interest
	TS           time.Time `json:"ts"`            // exchange timestamp, or receive instant if the upstream omitted it
	ReceivedAt   time.Time `json:"received_at"`   // local receive instant
}

// Key returns "exchange:symbol", the instrument key used by the LTP cache.
func (t *Tick) Key() string {
	return t.Exchange + ":" + t.Symbol
}
