package model

import "time"

// Order status values. Terminal states (COMPLETE, CANCELLED, REJECTED) are
// immutable once set.
const (
	StatusPending        = "PENDING"
	StatusOpen           = "OPEN"
	StatusTriggerPending = "TRIGGER PENDING"
	StatusComplete       = "COMPLETE"
	StatusCancelled      = "CANCELLED"
	StatusRejected       = "REJECTED"
)

// Transaction sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types.
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderTypeSL     = "SL"
	OrderTypeSLM    = "SL-M"
)

// Product types.
const (
	ProductMIS  = "MIS"  // intraday margin
	ProductCNC  = "CNC"  // delivery
	ProductNRML = "NRML" // normal carry
)

// Order represents a simulated order in the paper engine.
// Invariant: FilledQty + PendingQty + CancelledQty == Qty.
type Order struct {
	OrderID      string    `json:"order_id"`
	Symbol       string    `json:"symbol"`
	Exchange     string    `json:"exchange"`
	Side         string    `json:"side"`       // BUY, SELL
	Qty          int64     `json:"qty"`        // must be > 0
	OrderType    string    `json:"order_type"` // MARKET, LIMIT, SL, SL-M
	Product      string    `json:"product"`    // MIS, CNC, NRML
	Status       string    `json:"status"`
	Price        int64     `json:"price,omitempty"`         // limit price in paise (0 for market)
	TriggerPrice int64     `json:"trigger_price,omitempty"` // paise
	AvgPrice     int64     `json:"avg_price,omitempty"`     // fill average in paise
	FilledQty    int64     `json:"filled_qty"`
	PendingQty   int64     `json:"pending_qty"`
	CancelledQty int64     `json:"cancelled_qty"`
	Tag          string    `json:"tag,omitempty"`
	PlacedAt     time.Time `json:"placed_at"`
	ExchangeTS   time.Time `json:"exchange_ts,omitempty"`
}

// Terminal reports whether the order is in a terminal state.
func (o *Order) Terminal() bool {
	switch o.Status {
	case StatusComplete, StatusCancelled, StatusRejected:
		return true
	}
	return false
}
