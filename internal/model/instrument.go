package model

// Instrument represents a tradeable instrument/symbol. The numeric token is
// what goes on the wire; (exchange, symbol) is the human identity.
type Instrument struct {
	Token    uint32 `json:"token"`
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Name     string `json:"name,omitempty"`
	LotSize  int    `json:"lot_size,omitempty"`
	TickSize int64  `json:"tick_size,omitempty"` // minimum price movement in paise
}

// Key returns "exchange:symbol".
func (i *Instrument) Key() string {
	return i.Exchange + ":" + i.Symbol
}
