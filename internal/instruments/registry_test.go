package instruments

import (
	"context"
	"errors"
	"testing"

	"smart-algo-trade/internal/model"
)

type fakeSource struct {
	list  []model.Instrument
	err   error
	calls int
}

func (f *fakeSource) Instruments(ctx context.Context, exchange string) ([]model.Instrument, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func nseSample() []model.Instrument {
	return []model.Instrument{
		{Token: 738561, Symbol: "RELIANCE", Exchange: "NSE", Name: "RELIANCE INDUSTRIES"},
		{Token: 408065, Symbol: "INFY", Exchange: "NSE", Name: "INFOSYS"},
		{Token: 2953217, Symbol: "TCS", Exchange: "NSE", Name: "TATA CONSULTANCY SERVICES"},
		{Token: 112129, Symbol: "TATAMOTORS", Exchange: "NSE", Name: "TATA MOTORS"},
	}
}

func TestEnsureAndResolve(t *testing.T) {
	src := &fakeSource{list: nseSample()}
	r := New(src, t.TempDir())

	if err := r.Ensure(context.Background(), "NSE"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	inst, ok := r.Resolve("NSE", "RELIANCE")
	if !ok || inst.Token != 738561 {
		t.Fatalf("resolve = %+v, %v", inst, ok)
	}
	// Lookup is case-insensitive on both parts.
	if _, ok := r.Resolve("nse", "infy"); !ok {
		t.Fatal("lowercase lookup failed")
	}
	if _, ok := r.Resolve("NSE", "NOSUCH"); ok {
		t.Fatal("expected miss for unknown symbol")
	}
}

func TestEnsureUsesDailyCache(t *testing.T) {
	src := &fakeSource{list: nseSample()}
	r := New(src, t.TempDir())

	for i := 0; i < 3; i++ {
		if err := r.Ensure(context.Background(), "NSE"); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", src.calls)
	}
}

func TestEnsureFallsBackToDiskCache(t *testing.T) {
	dir := t.TempDir()

	good := &fakeSource{list: nseSample()}
	warm := New(good, dir)
	if err := warm.Ensure(context.Background(), "NSE"); err != nil {
		t.Fatalf("warm ensure: %v", err)
	}

	// A fresh registry whose upstream is down should serve from the mirror.
	broken := &fakeSource{err: errors.New("upstream down")}
	r := New(broken, dir)
	if err := r.Ensure(context.Background(), "NSE"); err != nil {
		t.Fatalf("fallback ensure: %v", err)
	}
	if inst, ok := r.Resolve("NSE", "TCS"); !ok || inst.Token != 2953217 {
		t.Fatalf("resolve after fallback = %+v, %v", inst, ok)
	}
}

func TestEnsureFailsWithoutAnyCache(t *testing.T) {
	r := New(&fakeSource{err: errors.New("upstream down")}, t.TempDir())
	if err := r.Ensure(context.Background(), "NSE"); err == nil {
		t.Fatal("expected error with no upstream and no cache")
	}
}

func TestSearchRanking(t *testing.T) {
	src := &fakeSource{list: nseSample()}
	r := New(src, "")
	if err := r.Ensure(context.Background(), "NSE"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	hits := r.Search("TATA", "NSE", 10)
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	// Symbol prefix outranks the name-only substring match.
	if hits[0].Symbol != "TATAMOTORS" || hits[1].Symbol != "TCS" {
		t.Fatalf("order = %s, %s", hits[0].Symbol, hits[1].Symbol)
	}

	exact := r.Search("INFY", "ALL", 10)
	if len(exact) == 0 || exact[0].Symbol != "INFY" {
		t.Fatalf("exact = %+v", exact)
	}

	if got := r.Search("TATA", "NSE", 1); len(got) != 1 {
		t.Fatalf("limit ignored: %+v", got)
	}
}

func TestCountPerExchange(t *testing.T) {
	r := New(&fakeSource{list: nseSample()}, "")
	if err := r.Ensure(context.Background(), "NSE"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if n := r.Count("NSE"); n != 4 {
		t.Fatalf("count = %d, want 4", n)
	}
	if n := r.Count("BSE"); n != 0 {
		t.Fatalf("count BSE = %d, want 0", n)
	}
}
