package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"smart-algo-trade/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "paper.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFreshStoreLoadsEmpty(t *testing.T) {
	s := openTestStore(t)
	funds, orders, positions, trades, err := s.LoadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if funds != nil || orders != nil || positions != nil || trades != nil {
		t.Fatal("fresh store should load all-nil state")
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Unix(1756179900, 0)

	funds := model.Funds{
		Capital: 10_000_000, Available: 7_400_000, Invested: 2_500_000,
		Reserved: 100_000, RealizedPnL: 10_000, DailyPnL: 10_000,
		TotalPnL: 10_000, TradesToday: 2, UpdatedAt: now,
	}
	if err := s.SaveFunds(funds); err != nil {
		t.Fatalf("save funds: %v", err)
	}

	order := model.Order{
		OrderID: "PAPER_1A2B3C4D", Symbol: "RELIANCE", Exchange: "NSE",
		Side: model.SideBuy, Qty: 10, OrderType: model.OrderTypeMarket,
		Product: model.ProductMIS, Status: model.StatusComplete,
		AvgPrice: 250_000, FilledQty: 10, Tag: "BOT_RELIANCE", PlacedAt: now,
	}
	if err := s.SaveOrder(order); err != nil {
		t.Fatalf("save order: %v", err)
	}

	pos := model.Position{
		Symbol: "RELIANCE", Exchange: "NSE", Product: model.ProductMIS,
		NetQty: 10, AvgPrice: 250_000, LastPrice: 251_000,
		BuyQty: 10, BuyValue: 2_500_000, UnrealizedPnL: 10_000,
		OpenedAt: now, UpdatedAt: now,
	}
	if err := s.SavePosition(pos); err != nil {
		t.Fatalf("save position: %v", err)
	}

	trade := model.TradeEntry{
		TS: now, OrderID: order.OrderID, Symbol: "RELIANCE",
		Side: model.SideBuy, Qty: 10, Price: 250_000, Tag: "BOT_RELIANCE",
	}
	if err := s.AppendTrade(trade); err != nil {
		t.Fatalf("append trade: %v", err)
	}

	gotFunds, gotOrders, gotPositions, gotTrades, err := s.LoadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotFunds == nil || *gotFunds != funds {
		t.Fatalf("funds = %+v, want %+v", gotFunds, funds)
	}
	if len(gotOrders) != 1 || gotOrders[0] != order {
		t.Fatalf("orders = %+v", gotOrders)
	}
	if len(gotPositions) != 1 || gotPositions[0] != pos {
		t.Fatalf("positions = %+v", gotPositions)
	}
	if len(gotTrades) != 1 || gotTrades[0] != trade {
		t.Fatalf("trades = %+v", gotTrades)
	}
}

func TestOrderUpsertKeepsLatestStatus(t *testing.T) {
	s := openTestStore(t)
	now := time.Unix(1756179900, 0)

	o := model.Order{
		OrderID: "PAPER_AABBCCDD", Symbol: "INFY", Exchange: "NSE",
		Side: model.SideSell, Qty: 5, OrderType: model.OrderTypeSLM,
		Product: model.ProductMIS, Status: model.StatusTriggerPending,
		TriggerPrice: 145_000, PendingQty: 5, PlacedAt: now,
	}
	if err := s.SaveOrder(o); err != nil {
		t.Fatalf("save: %v", err)
	}
	o.Status = model.StatusComplete
	o.AvgPrice = 144_900
	o.FilledQty = 5
	o.PendingQty = 0
	if err := s.SaveOrder(o); err != nil {
		t.Fatalf("resave: %v", err)
	}

	_, orders, _, _, err := s.LoadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want upsert not insert", len(orders))
	}
	if orders[0].Status != model.StatusComplete || orders[0].AvgPrice != 144_900 {
		t.Fatalf("order = %+v", orders[0])
	}
}

func TestDeletePosition(t *testing.T) {
	s := openTestStore(t)
	now := time.Unix(1756179900, 0)

	p := model.Position{
		Symbol: "TCS", Exchange: "NSE", Product: model.ProductMIS,
		NetQty: 3, AvgPrice: 300_000, OpenedAt: now, UpdatedAt: now,
	}
	if err := s.SavePosition(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeletePosition("TCS", "NSE", model.ProductMIS); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, _, positions, _, err := s.LoadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("positions = %+v after delete", positions)
	}
}

func TestResetDropsEverything(t *testing.T) {
	s := openTestStore(t)
	now := time.Unix(1756179900, 0)

	s.SaveFunds(model.Funds{Capital: 1, Available: 1, UpdatedAt: now})
	s.SaveOrder(model.Order{OrderID: "PAPER_X", Symbol: "X", Exchange: "NSE",
		Side: model.SideBuy, Qty: 1, OrderType: model.OrderTypeMarket,
		Product: model.ProductMIS, Status: model.StatusComplete, PlacedAt: now})
	s.AppendTrade(model.TradeEntry{TS: now, OrderID: "PAPER_X", Symbol: "X",
		Side: model.SideBuy, Qty: 1, Price: 1})

	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	funds, orders, _, trades, err := s.LoadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if funds != nil || len(orders) != 0 || len(trades) != 0 {
		t.Fatal("state survived reset")
	}
}
