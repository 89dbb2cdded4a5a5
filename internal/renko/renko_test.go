package renko

import "testing"

func TestAccumulation(t *testing.T) {
	a := New()
	// brick size ₹1, initial price ₹100
	a.Init("SBIN", 100, 10000)

	st, ok := a.State("SBIN")
	if !ok {
		t.Fatal("state missing after Init")
	}
	if st.UpperLimit != 10100 || st.LowerLimit != 9900 {
		t.Fatalf("initial limits = (%d, %d), want (10100, 9900)", st.UpperLimit, st.LowerLimit)
	}
	if st.BrickCount != 0 {
		t.Fatalf("initial count = %d, want 0", st.BrickCount)
	}

	// 100.5: inside the band, nothing forms
	ev := a.Update("SBIN", 10050)
	if ev.Formed {
		t.Error("100.5 should not form a brick")
	}

	// 101.2: one brick up, limits slide to (102, 100)
	ev = a.Update("SBIN", 10120)
	if !ev.Formed || ev.BrickCount != 1 {
		t.Fatalf("after 101.2: formed=%v count=%d, want formed count=1", ev.Formed, ev.BrickCount)
	}
	if ev.UpperLimit != 10200 || ev.LowerLimit != 10000 {
		t.Fatalf("after 101.2: limits = (%d, %d), want (10200, 10000)", ev.UpperLimit, ev.LowerLimit)
	}

	// 102.5: second brick, limits (103, 101)
	ev = a.Update("SBIN", 10250)
	if !ev.Formed || ev.BrickCount != 2 {
		t.Fatalf("after 102.5: formed=%v count=%d, want formed count=2", ev.Formed, ev.BrickCount)
	}
	if ev.UpperLimit != 10300 || ev.LowerLimit != 10100 {
		t.Fatalf("after 102.5: limits = (%d, %d), want (10300, 10100)", ev.UpperLimit, ev.LowerLimit)
	}

	// 99.8: crashes through 101: direction flip, count resets to -1,
	// limits (100, 98)
	ev = a.Update("SBIN", 9980)
	if !ev.Formed || ev.BrickCount != -1 {
		t.Fatalf("after 99.8: formed=%v count=%d, want formed count=-1", ev.Formed, ev.BrickCount)
	}
	if ev.UpperLimit != 10000 || ev.LowerLimit != 9800 {
		t.Fatalf("after 99.8: limits = (%d, %d), want (10000, 9800)", ev.UpperLimit, ev.LowerLimit)
	}
}

func TestLimitWidthInvariant(t *testing.T) {
	a := New()
	a.Init("INFY", 150, 150000)

	prices := []int64{150100, 150200, 151000, 149000, 148500, 152000, 147000, 155555}
	for _, p := range prices {
		a.Update("INFY", p)
		st, _ := a.State("INFY")
		if st.UpperLimit-st.LowerLimit != 2*st.BrickSize {
			t.Fatalf("at price %d: upper-lower = %d, want %d",
				p, st.UpperLimit-st.LowerLimit, 2*st.BrickSize)
		}
	}
}

func TestBoundaryPriceFormsNoBrick(t *testing.T) {
	a := New()
	a.Init("TCS", 100, 10000)

	// exactly on the upper limit: no brick
	if ev := a.Update("TCS", 10100); ev.Formed {
		t.Error("price equal to upper_limit must not form a brick")
	}
	// one paisa beyond: brick
	if ev := a.Update("TCS", 10101); !ev.Formed {
		t.Error("price strictly above upper_limit must form a brick")
	}
}

func TestGapFormsMultipleBricks(t *testing.T) {
	a := New()
	a.Init("RELIANCE", 100, 10000)

	// 103.5 clears 101 by 2.5 bricks so 3 form at once
	ev := a.Update("RELIANCE", 10350)
	if ev.BrickCount != 3 || ev.Change != 3 {
		t.Fatalf("gap move: count=%d change=%d, want 3/3", ev.BrickCount, ev.Change)
	}
	if ev.UpperLimit-ev.LowerLimit != 200 {
		t.Fatalf("gap move: band width %d, want 200", ev.UpperLimit-ev.LowerLimit)
	}
}

func TestDirectionRunMonotonic(t *testing.T) {
	a := New()
	a.Init("HDFC", 100, 10000)

	last := int64(0)
	for _, p := range []int64{10150, 10300, 10450, 10600} {
		ev := a.Update("HDFC", p)
		if ev.Formed && ev.BrickCount < last {
			t.Fatalf("count shrank within an up run: %d after %d", ev.BrickCount, last)
		}
		if ev.Formed {
			last = ev.BrickCount
		}
	}
	if !a.StrongUp("HDFC", 2) {
		t.Error("expected StrongUp after sustained advance")
	}
}

func TestAutoInit(t *testing.T) {
	a := New()
	ev := a.Update("UNKNOWN", 5000)
	if ev.Formed {
		t.Error("first update seeds limits, no brick")
	}
	st, ok := a.State("UNKNOWN")
	if !ok || st.BrickSize != 100 {
		t.Fatalf("auto-init brick size = %d, want 100", st.BrickSize)
	}
}
