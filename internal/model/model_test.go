package model

import "testing"

func TestComputeUnrealized(t *testing.T) {
	long := Position{NetQty: 10, AvgPrice: 100_000}
	if pnl := long.ComputeUnrealized(105_000); pnl != 50_000 {
		t.Fatalf("long pnl = %d, want 50000", pnl)
	}
	if pnl := long.ComputeUnrealized(98_000); pnl != -20_000 {
		t.Fatalf("long loss = %d, want -20000", pnl)
	}

	short := Position{NetQty: -10, AvgPrice: 100_000}
	if pnl := short.ComputeUnrealized(95_000); pnl != 50_000 {
		t.Fatalf("short pnl = %d, want 50000", pnl)
	}

	flat := Position{NetQty: 0, AvgPrice: 100_000}
	if pnl := flat.ComputeUnrealized(200_000); pnl != 0 {
		t.Fatalf("flat pnl = %d, want 0", pnl)
	}
}

func TestOrderTerminal(t *testing.T) {
	for _, st := range []string{StatusComplete, StatusCancelled, StatusRejected} {
		o := Order{Status: st}
		if !o.Terminal() {
			t.Errorf("status %s should be terminal", st)
		}
	}
	for _, st := range []string{StatusOpen, StatusTriggerPending} {
		o := Order{Status: st}
		if o.Terminal() {
			t.Errorf("status %s should not be terminal", st)
		}
	}
}

func TestKeys(t *testing.T) {
	c := Candle{Symbol: "RELIANCE", Exchange: "NSE", Interval: 5}
	if c.Key() != "NSE:RELIANCE" {
		t.Fatalf("candle key = %q", c.Key())
	}
	if c.ChannelKey() != "candle:5m:NSE:RELIANCE" {
		t.Fatalf("channel key = %q", c.ChannelKey())
	}

	p := Position{Symbol: "INFY", Exchange: "NSE", Product: "MIS"}
	if p.Key() != PositionKey("INFY", "NSE", "MIS") {
		t.Fatalf("position keys disagree: %q vs %q", p.Key(), PositionKey("INFY", "NSE", "MIS"))
	}
}
