package bot

import (
	"context"
	"testing"
	"time"

	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/paper"
	"smart-algo-trade/internal/strategy"
)

// ---- Fakes ----

type memStore struct {
	funds     *model.Funds
	orders    map[string]model.Order
	positions map[string]model.Position
	trades    []model.TradeEntry
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[string]model.Order),
		positions: make(map[string]model.Position),
	}
}

func (m *memStore) SaveFunds(f model.Funds) error {
	cp := f
	m.funds = &cp
	return nil
}

func (m *memStore) SaveOrder(o model.Order) error {
	m.orders[o.OrderID] = o
	return nil
}

func (m *memStore) SavePosition(p model.Position) error {
	m.positions[p.Key()] = p
	return nil
}

func (m *memStore) DeletePosition(symbol, exchange, product string) error {
	delete(m.positions, model.PositionKey(symbol, exchange, product))
	return nil
}

func (m *memStore) AppendTrade(t model.TradeEntry) error {
	m.trades = append(m.trades, t)
	return nil
}

func (m *memStore) LoadState() (*model.Funds, []model.Order, []model.Position, []model.TradeEntry, error) {
	var orders []model.Order
	for _, o := range m.orders {
		orders = append(orders, o)
	}
	var positions []model.Position
	for _, p := range m.positions {
		positions = append(positions, p)
	}
	return m.funds, orders, positions, m.trades, nil
}

func (m *memStore) Reset() error {
	m.funds = nil
	m.orders = make(map[string]model.Order)
	m.positions = make(map[string]model.Position)
	m.trades = nil
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeStream struct {
	subs   map[uint32]string
	unsubs []uint32
	ticks  chan model.Tick
	subErr error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		subs:  make(map[uint32]string),
		ticks: make(chan model.Tick, 16),
	}
}

func (f *fakeStream) Subscribe(token uint32, symbol, exchange string, mode model.StreamMode) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.subs[token] = symbol
	return nil
}

func (f *fakeStream) Unsubscribe(token uint32) error {
	f.unsubs = append(f.unsubs, token)
	delete(f.subs, token)
	return nil
}

func (f *fakeStream) SubscribeTick() <-chan model.Tick { return f.ticks }

type fakeCandles struct {
	candles []model.Candle
	err     error
}

func (f *fakeCandles) FetchDaysBack(ctx context.Context, token uint32, interval string, days int) ([]model.Candle, error) {
	return f.candles, f.err
}

type fakeOracle struct {
	prices map[string]int64
}

func (f *fakeOracle) LTP(ctx context.Context, instruments []string) (map[string]int64, error) {
	out := make(map[string]int64, len(instruments))
	for _, inst := range instruments {
		if p, ok := f.prices[inst]; ok {
			out[inst] = p
		}
	}
	return out, nil
}

// stubStrategy emits a fixed signal once.
type stubStrategy struct {
	sig   *strategy.Signal
	fired bool
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) GenerateSignal(candles []model.Candle, price int64) *strategy.Signal {
	if s.fired {
		return nil
	}
	s.fired = true
	return s.sig
}

func (s *stubStrategy) StopLoss(entry int64, side string) int64 { return 0 }
func (s *stubStrategy) Target(entry int64, side string) int64   { return 0 }
func (s *stubStrategy) Status() map[string]interface{}          { return nil }
func (s *stubStrategy) ResetDay()                               {}

func resolveAll(exchange, symbol string) (model.Instrument, bool) {
	tokens := map[string]uint32{"RELIANCE": 738561, "INFY": 408065, "TCS": 2953217}
	tok, ok := tokens[symbol]
	if !ok {
		return model.Instrument{}, false
	}
	return model.Instrument{Token: tok, Symbol: symbol, Exchange: exchange}, true
}

func testEngine(t *testing.T) *paper.Engine {
	t.Helper()
	eng, err := paper.NewEngine(paper.Config{
		PaperTrading:   true,
		InitialCapital: 10_000_000, // ₹1,00,000
		FallbackPrice:  10_000,
		Limits:         paper.Limits{MaxPositions: 10, MaxTradesPerDay: 100, MaxLossPerDay: 10_000_000},
	}, newMemStore(), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng
}

func testBot(t *testing.T, eng *paper.Engine, stream *fakeStream, candles CandleSource, oracle model.PriceOracle) *Bot {
	t.Helper()
	b := New(Config{
		Exchange:       "NSE",
		LoopInterval:   5 * time.Millisecond,
		SquareOffRetry: 3,
		RiskPerTrade:   0.02,
	}, eng, stream, candles, oracle, resolveAll)
	b.marketOpen = func(time.Time) bool { return false }
	return b
}

// ---- Lifecycle ----

func TestLifecycleTransitions(t *testing.T) {
	eng := testEngine(t)
	stream := newFakeStream()
	b := testBot(t, eng, stream, &fakeCandles{}, nil)

	if b.State() != StateStopped {
		t.Fatalf("initial state = %s", b.State())
	}
	if err := b.Start(context.Background(), []string{"RELIANCE"}, "ema_scalping", 1_000_000, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if b.State() != StateRunning {
		t.Fatalf("state after start = %s", b.State())
	}
	if err := b.Start(context.Background(), []string{"INFY"}, "ema_scalping", 1_000_000, nil); err == nil {
		t.Fatal("second start should fail while running")
	}

	if err := b.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if b.State() != StatePaused {
		t.Fatalf("state after pause = %s", b.State())
	}
	if err := b.Pause(); err == nil {
		t.Fatal("pause should fail when already paused")
	}
	if err := b.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if b.State() != StateRunning {
		t.Fatalf("state after resume = %s", b.State())
	}

	if err := b.Stop(context.Background(), false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if b.State() != StateStopped {
		t.Fatalf("state after stop = %s", b.State())
	}
	if len(stream.unsubs) != 1 {
		t.Fatalf("unsubscribes = %d, want 1", len(stream.unsubs))
	}
	if err := b.Stop(context.Background(), false); err == nil {
		t.Fatal("stop should fail when already stopped")
	}
}

func TestStartReservesAndStopReclaims(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, nil)

	if err := b.Start(context.Background(), []string{"RELIANCE", "INFY"}, "ema_scalping", 2_000_000, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	f := eng.Funds()
	if f.Reserved != 4_000_000 {
		t.Fatalf("reserved = %d, want 4000000", f.Reserved)
	}
	if f.Available != 6_000_000 {
		t.Fatalf("available = %d, want 6000000", f.Available)
	}

	if err := b.Stop(context.Background(), false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	f = eng.Funds()
	if f.Reserved != 0 || f.Available != 10_000_000 {
		t.Fatalf("after stop reserved=%d available=%d", f.Reserved, f.Available)
	}
}

func TestStartAllocationFailure(t *testing.T) {
	eng := testEngine(t)
	stream := newFakeStream()
	b := testBot(t, eng, stream, &fakeCandles{}, nil)

	err := b.Start(context.Background(), []string{"RELIANCE", "INFY"}, "ema_scalping", 6_000_000, nil)
	if err == nil {
		t.Fatal("expected allocation failure")
	}
	if b.State() != StateStopped {
		t.Fatalf("state = %s, want STOPPED", b.State())
	}
	if len(stream.subs) != 0 {
		t.Fatalf("subscribed %d symbols despite failed allocation", len(stream.subs))
	}
	if f := eng.Funds(); f.Reserved != 0 {
		t.Fatalf("reserved = %d after failed start", f.Reserved)
	}
}

func TestStartUnknownSymbol(t *testing.T) {
	b := testBot(t, testEngine(t), newFakeStream(), &fakeCandles{}, nil)
	if err := b.Start(context.Background(), []string{"NOSUCH"}, "ema_scalping", 1_000_000, nil); err == nil {
		t.Fatal("expected unknown-instrument error")
	}
	if b.State() != StateStopped {
		t.Fatalf("state = %s, want STOPPED", b.State())
	}
}

func TestStartUnknownStrategy(t *testing.T) {
	b := testBot(t, testEngine(t), newFakeStream(), &fakeCandles{}, nil)
	if err := b.Start(context.Background(), []string{"RELIANCE"}, "nope", 1_000_000, nil); err == nil {
		t.Fatal("expected unknown-strategy error")
	}
}

// ---- Signal execution ----

func TestEntrySignalPlacesOrderPair(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, nil)
	eng.UpdateLTP("RELIANCE", "NSE", 250_000)

	b.execute(context.Background(), &strategy.Signal{
		Symbol:   "RELIANCE",
		Kind:     strategy.KindBuy,
		Price:    250_000,
		Qty:      10,
		StopLoss: 245_000,
		Reason:   "test entry",
	})

	orders := eng.Orders()
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want entry + stop", len(orders))
	}
	var entry, stop *model.Order
	for i := range orders {
		switch orders[i].OrderType {
		case model.OrderTypeMarket:
			entry = &orders[i]
		case model.OrderTypeSLM:
			stop = &orders[i]
		}
	}
	if entry == nil || stop == nil {
		t.Fatal("missing entry or stop order")
	}
	if entry.Status != model.StatusComplete || entry.Tag != "BOT_RELIANCE" {
		t.Fatalf("entry status=%s tag=%s", entry.Status, entry.Tag)
	}
	if stop.Status != model.StatusTriggerPending || stop.Tag != "SL_BOT_RELIANCE" {
		t.Fatalf("stop status=%s tag=%s", stop.Status, stop.Tag)
	}
	if stop.Side != model.SideSell || stop.TriggerPrice != 245_000 {
		t.Fatalf("stop side=%s trigger=%d", stop.Side, stop.TriggerPrice)
	}

	b.mu.Lock()
	pair := b.active["RELIANCE"]
	b.mu.Unlock()
	if pair == nil || pair.SLOrderID != stop.OrderID {
		t.Fatal("active pair not recorded")
	}
}

func TestHoldSignalTrailsStop(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, nil)
	eng.UpdateLTP("RELIANCE", "NSE", 250_000)

	b.execute(context.Background(), &strategy.Signal{
		Symbol: "RELIANCE", Kind: strategy.KindBuy, Price: 250_000, Qty: 10, StopLoss: 245_000,
	})
	b.mu.Lock()
	slID := b.active["RELIANCE"].SLOrderID
	b.mu.Unlock()

	b.execute(context.Background(), &strategy.Signal{
		Symbol:   "RELIANCE",
		Kind:     strategy.KindHold,
		StopLoss: 248_000,
		Metadata: map[string]string{"action": "update_sl"},
	})

	o, ok := eng.Order(slID)
	if !ok {
		t.Fatal("stop order missing")
	}
	if o.TriggerPrice != 248_000 {
		t.Fatalf("trigger = %d, want 248000", o.TriggerPrice)
	}
}

func TestExitSignalFlattens(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, nil)
	eng.UpdateLTP("RELIANCE", "NSE", 250_000)

	b.execute(context.Background(), &strategy.Signal{
		Symbol: "RELIANCE", Kind: strategy.KindBuy, Price: 250_000, Qty: 10, StopLoss: 245_000,
	})
	b.mu.Lock()
	slID := b.active["RELIANCE"].SLOrderID
	b.mu.Unlock()

	eng.UpdateLTP("RELIANCE", "NSE", 252_000)
	b.execute(context.Background(), &strategy.Signal{
		Symbol: "RELIANCE", Kind: strategy.KindExit, Qty: 10, Reason: "test exit",
	})

	if positions := eng.Positions(); len(positions) != 0 {
		t.Fatalf("positions remain after exit: %+v", positions)
	}
	if o, _ := eng.Order(slID); o.Status != model.StatusCancelled {
		t.Fatalf("stop order status = %s, want CANCELLED", o.Status)
	}
	b.mu.Lock()
	_, tracked := b.active["RELIANCE"]
	b.mu.Unlock()
	if tracked {
		t.Fatal("pair still tracked after exit")
	}
}

func TestStatusReportsDailyPnL(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, nil)
	eng.UpdateLTP("RELIANCE", "NSE", 250_000)

	b.execute(context.Background(), &strategy.Signal{
		Symbol: "RELIANCE", Kind: strategy.KindBuy, Price: 250_000, Qty: 10, StopLoss: 245_000,
	})
	eng.UpdateLTP("RELIANCE", "NSE", 252_000)
	b.execute(context.Background(), &strategy.Signal{
		Symbol: "RELIANCE", Kind: strategy.KindExit, Qty: 10,
	})

	if got := b.Status()["pnl_today"].(int64); got != 20_000 {
		t.Fatalf("pnl_today = %d, want 20000", got)
	}

	// A fresh session zeroes the daily figure; all-time realized P&L must
	// not leak back into it.
	eng.ResetDailyCounters()
	if eng.Stats().RealizedPnL == 0 {
		t.Fatal("all-time realized P&L lost on daily reset")
	}
	if got := b.Status()["pnl_today"].(int64); got != 0 {
		t.Fatalf("pnl_today after daily reset = %d, want 0", got)
	}
}

func TestEvaluatePassExecutesStrategy(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{
		candles: []model.Candle{{Token: 2953217, Close: 300_000, Closed: true}},
	}, nil)
	eng.UpdateLTP("TCS", "NSE", 300_000)

	stub := &stubStrategy{sig: &strategy.Signal{
		Symbol: "TCS", Kind: strategy.KindBuy, Price: 300_000, Qty: 5, StopLoss: 295_000,
	}}
	b.mu.Lock()
	b.strategies["TCS"] = stub
	b.tokens["TCS"] = 2953217
	b.lastPrices["TCS"] = 300_000
	b.mu.Unlock()

	b.evaluateAll(context.Background())

	if len(eng.Orders()) != 2 {
		t.Fatalf("orders = %d, want entry + stop", len(eng.Orders()))
	}
	b.evaluateAll(context.Background())
	if len(eng.Orders()) != 2 {
		t.Fatal("exhausted strategy placed more orders")
	}
}

// ---- Square-off ----

func TestSquareOffFlattensBothSides(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, nil)
	ctx := context.Background()

	eng.UpdateLTP("RELIANCE", "NSE", 250_000)
	eng.UpdateLTP("INFY", "NSE", 150_000)

	if _, err := eng.PlaceOrder(ctx, paper.OrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.SideBuy, Qty: 10,
		OrderType: model.OrderTypeMarket, Product: model.ProductMIS,
	}); err != nil {
		t.Fatalf("long entry: %v", err)
	}
	if _, err := eng.PlaceOrder(ctx, paper.OrderRequest{
		Symbol: "INFY", Exchange: "NSE", Side: model.SideSell, Qty: 5,
		OrderType: model.OrderTypeMarket, Product: model.ProductMIS,
	}); err != nil {
		t.Fatalf("short entry: %v", err)
	}
	limitID, err := eng.PlaceOrder(ctx, paper.OrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.SideBuy, Qty: 1,
		OrderType: model.OrderTypeLimit, Price: 240_000, Product: model.ProductMIS,
	})
	if err != nil {
		t.Fatalf("resting limit: %v", err)
	}

	b.SquareOff(ctx)

	if positions := eng.Positions(); len(positions) != 0 {
		t.Fatalf("positions remain: %+v", positions)
	}
	if o, _ := eng.Order(limitID); o.Status != model.StatusCancelled {
		t.Fatalf("resting order status = %s, want CANCELLED", o.Status)
	}

	var sellQty, buyQty int64
	for _, tr := range eng.Trades() {
		if tr.Tag != tagSquareOff {
			continue
		}
		switch {
		case tr.Symbol == "RELIANCE" && tr.Side == model.SideSell:
			sellQty += tr.Qty
		case tr.Symbol == "INFY" && tr.Side == model.SideBuy:
			buyQty += tr.Qty
		}
	}
	if sellQty != 10 || buyQty != 5 {
		t.Fatalf("square-off trades sell=%d buy=%d, want 10/5", sellQty, buyQty)
	}
}

func TestIterateSquaresOffAtCutoff(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, nil)
	b.marketOpen = func(time.Time) bool { return true }
	b.now = func() time.Time {
		return time.Date(2026, 8, 26, 15, 20, 0, 0, markethours.IST)
	}

	eng.UpdateLTP("RELIANCE", "NSE", 250_000)
	if _, err := eng.PlaceOrder(context.Background(), paper.OrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.SideBuy, Qty: 10,
		OrderType: model.OrderTypeMarket, Product: model.ProductMIS,
	}); err != nil {
		t.Fatalf("entry: %v", err)
	}

	b.setState(StateRunning)
	b.iterate(context.Background())

	if b.State() != StateStopped {
		t.Fatalf("state = %s, want STOPPED after cutoff", b.State())
	}
	if positions := eng.Positions(); len(positions) != 0 {
		t.Fatalf("positions remain after cutoff: %+v", positions)
	}
}

func TestCutoffStopReleasesBotResources(t *testing.T) {
	eng := testEngine(t)
	stream := newFakeStream()
	b := testBot(t, eng, stream, &fakeCandles{}, nil)
	b.marketOpen = func(time.Time) bool { return true }
	b.now = func() time.Time {
		return time.Date(2026, 8, 26, 15, 20, 0, 0, markethours.IST)
	}

	if err := eng.Allocate(5_000_000); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b.mu.Lock()
	b.strategies["RELIANCE"] = &stubStrategy{}
	b.tokens["RELIANCE"] = 738561
	b.mu.Unlock()

	eng.UpdateLTP("RELIANCE", "NSE", 250_000)
	b.execute(context.Background(), &strategy.Signal{
		Symbol: "RELIANCE", Kind: strategy.KindBuy, Price: 250_000, Qty: 10, StopLoss: 245_000,
	})

	b.setState(StateRunning)
	b.iterate(context.Background())

	if b.State() != StateStopped {
		t.Fatalf("state = %s, want STOPPED", b.State())
	}
	if len(stream.unsubs) != 1 || stream.unsubs[0] != 738561 {
		t.Fatalf("unsubscribes = %v", stream.unsubs)
	}
	b.mu.Lock()
	nStrategies, nActive := len(b.strategies), len(b.active)
	b.mu.Unlock()
	if nStrategies != 0 || nActive != 0 {
		t.Fatalf("strategies=%d active=%d after cutoff stop", nStrategies, nActive)
	}
	if f := eng.Funds(); f.Reserved != 0 {
		t.Fatalf("reserved = %d after cutoff stop", f.Reserved)
	}
}

func TestIterateSkipsWhenMarketClosed(t *testing.T) {
	eng := testEngine(t)
	candles := &fakeCandles{candles: []model.Candle{{Close: 300_000}}}
	b := testBot(t, eng, newFakeStream(), candles, nil)

	stub := &stubStrategy{sig: &strategy.Signal{
		Symbol: "TCS", Kind: strategy.KindBuy, Price: 300_000, Qty: 5, StopLoss: 295_000,
	}}
	b.mu.Lock()
	b.strategies["TCS"] = stub
	b.tokens["TCS"] = 2953217
	b.lastPrices["TCS"] = 300_000
	b.state = StateRunning
	b.mu.Unlock()

	b.iterate(context.Background())

	if len(eng.Orders()) != 0 {
		t.Fatal("orders placed while market closed")
	}
}

func TestLTPRefreshRunsWhileClosed(t *testing.T) {
	eng := testEngine(t)
	oracle := &fakeOracle{prices: map[string]int64{"NSE:TCS": 310_000}}
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, oracle)

	b.mu.Lock()
	b.strategies["TCS"] = &stubStrategy{}
	b.tokens["TCS"] = 2953217
	b.mu.Unlock()

	b.iterate(context.Background())

	b.mu.Lock()
	got := b.lastPrices["TCS"]
	b.mu.Unlock()
	if got != 310_000 {
		t.Fatalf("lastPrices[TCS] = %d, want 310000", got)
	}
}

// ---- Tick path ----

type stubTickStrategy struct {
	stubStrategy
	tickSig *strategy.Signal
}

func (s *stubTickStrategy) ProcessTick(t model.Tick) *strategy.Signal {
	sig := s.tickSig
	s.tickSig = nil
	return sig
}

func TestConsumeTicksUpdatesLTPAndFires(t *testing.T) {
	eng := testEngine(t)
	stream := newFakeStream()
	b := testBot(t, eng, stream, &fakeCandles{}, nil)

	stub := &stubTickStrategy{tickSig: &strategy.Signal{
		Symbol: "TCS", Kind: strategy.KindBuy, Price: 300_000, Qty: 5, StopLoss: 295_000,
	}}
	b.mu.Lock()
	b.strategies["TCS"] = stub
	b.state = StateRunning
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.consumeTicks(ctx, stream.ticks)

	stream.ticks <- model.Tick{Token: 2953217, Symbol: "TCS", Exchange: "NSE", LastPrice: 300_000}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(eng.Orders()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(eng.Orders()) != 2 {
		t.Fatalf("orders = %d, want entry + stop from tick signal", len(eng.Orders()))
	}
	if p, ok := eng.Position("TCS", "NSE", model.ProductMIS); !ok || p.NetQty != 5 {
		t.Fatalf("position after tick fill: %+v ok=%v", p, ok)
	}
}

func TestResetStateClearsPairs(t *testing.T) {
	eng := testEngine(t)
	b := testBot(t, eng, newFakeStream(), &fakeCandles{}, nil)
	eng.UpdateLTP("RELIANCE", "NSE", 250_000)

	b.execute(context.Background(), &strategy.Signal{
		Symbol: "RELIANCE", Kind: strategy.KindBuy, Price: 250_000, Qty: 10, StopLoss: 245_000,
	})
	b.ResetState()

	b.mu.Lock()
	n := len(b.active)
	b.mu.Unlock()
	if n != 0 {
		t.Fatalf("active pairs = %d after reset", n)
	}
}
