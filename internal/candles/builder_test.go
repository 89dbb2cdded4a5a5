package candles

import (
	"testing"
	"time"

	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/model"
)

func tickAt(h, m, s int, price, qty int64) model.Tick {
	return model.Tick{
		Token:     5633,
		Symbol:    "RELIANCE",
		Exchange:  "NSE",
		LastPrice: price,
		LastQty:   qty,
		TS:        time.Date(2026, 8, 26, h, m, s, 0, markethours.IST),
	}
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2026, 8, 26, 9, 17, 59, 0, markethours.IST)

	cases := []struct {
		interval int
		wantMin  int
	}{
		{1, 17},
		{5, 15},
		{15, 15},
		{30, 0},
	}
	for _, tc := range cases {
		got := BucketStart(ts, tc.interval)
		if got.Hour() != 9 || got.Minute() != tc.wantMin || got.Second() != 0 {
			t.Errorf("interval %dm: got %v, want 09:%02d:00", tc.interval, got, tc.wantMin)
		}
	}
}

func TestFiveMinuteBucketRollover(t *testing.T) {
	b := New()

	b.ProcessTick(tickAt(9, 17, 10, 250000, 10))
	b.ProcessTick(tickAt(9, 17, 40, 250500, 5))
	b.ProcessTick(tickAt(9, 17, 59, 249800, 7))

	cur, ok := b.Current(5633, 5)
	if !ok {
		t.Fatal("expected open 5m candle")
	}
	if cur.Start.Minute() != 15 {
		t.Fatalf("bucket start = %v, want 09:15", cur.Start)
	}
	if cur.Open != 250000 || cur.High != 250500 || cur.Low != 249800 || cur.Close != 249800 {
		t.Fatalf("OHLC = %d/%d/%d/%d", cur.Open, cur.High, cur.Low, cur.Close)
	}
	if cur.Volume != 22 || cur.TickCount != 3 {
		t.Fatalf("volume=%d tickCount=%d", cur.Volume, cur.TickCount)
	}

	// A tick exactly on the boundary opens the next bucket.
	b.ProcessTick(tickAt(9, 20, 0, 250100, 3))

	cur, ok = b.Current(5633, 5)
	if !ok || cur.Start.Minute() != 20 {
		t.Fatalf("after boundary tick, open bucket = %v, want 09:20", cur.Start)
	}
	if cur.Open != 250100 || cur.TickCount != 1 {
		t.Fatalf("new bucket open=%d tickCount=%d", cur.Open, cur.TickCount)
	}

	hist := b.History(5633, 5, 0)
	if len(hist) != 1 {
		t.Fatalf("history len = %d, want 1", len(hist))
	}
	if !hist[0].Closed || hist[0].Close != 249800 {
		t.Fatalf("closed candle = %+v", hist[0])
	}
}

func TestCloseHandlerFires(t *testing.T) {
	b := New()
	var got []model.Candle
	b.OnCandleClose(1, func(token uint32, c model.Candle) {
		got = append(got, c)
	})

	b.ProcessTick(tickAt(9, 15, 5, 100, 1))
	b.ProcessTick(tickAt(9, 16, 5, 110, 1))
	b.ProcessTick(tickAt(9, 17, 5, 120, 1))

	if len(got) != 2 {
		t.Fatalf("handler fired %d times, want 2", len(got))
	}
	if got[0].Start.Minute() != 15 || got[1].Start.Minute() != 16 {
		t.Fatalf("close order: %v then %v", got[0].Start, got[1].Start)
	}
	if !got[0].Start.Before(got[1].Start) {
		t.Fatal("closes not monotonic")
	}
}

func TestLateTickDropped(t *testing.T) {
	b := New()
	var late int
	b.OnLateTick = func() { late++ }

	b.ProcessTick(tickAt(9, 20, 10, 100, 1))
	before, _ := b.Current(5633, 1)

	// Belongs to the 09:19 bucket, already behind the open one.
	b.ProcessTick(tickAt(9, 19, 50, 999, 1))

	after, ok := b.Current(5633, 1)
	if !ok || after != before {
		t.Fatalf("late tick mutated open candle: %+v", after)
	}
	if late == 0 {
		t.Fatal("late tick not counted")
	}
	if h := b.History(5633, 1, 0); len(h) != 0 {
		t.Fatalf("late tick closed a candle: %v", h)
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	b := New()
	var second bool
	b.OnCandleClose(1, func(uint32, model.Candle) { panic("boom") })
	b.OnCandleClose(1, func(uint32, model.Candle) { second = true })

	b.ProcessTick(tickAt(9, 15, 5, 100, 1))
	b.ProcessTick(tickAt(9, 16, 5, 110, 1))

	if !second {
		t.Fatal("panic in first handler blocked the second")
	}
}

func TestHistoryCapped(t *testing.T) {
	b := New()
	base := time.Date(2026, 8, 26, 0, 0, 0, 0, markethours.IST)
	for i := 0; i < maxHistory+10; i++ {
		b.ProcessTick(model.Tick{
			Token:     1,
			Symbol:    "X",
			Exchange:  "NSE",
			LastPrice: int64(i),
			TS:        base.Add(time.Duration(i) * time.Minute),
		})
	}
	h := b.History(1, 1, 0)
	if len(h) != maxHistory {
		t.Fatalf("history len = %d, want %d", len(h), maxHistory)
	}
	// Oldest retained candle is the 10th one built.
	if h[0].Open != 9 {
		t.Fatalf("oldest candle open = %d, want 9", h[0].Open)
	}
}

func TestFlushDiscardsOpen(t *testing.T) {
	b := New()
	b.ProcessTick(tickAt(9, 15, 5, 100, 1))
	b.Flush()
	if _, ok := b.Current(5633, 5); ok {
		t.Fatal("open candle survived Flush")
	}
}
