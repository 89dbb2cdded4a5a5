// cmd/backtest replays historical candles through a strategy against a
// fresh paper engine, so strategy changes can be evaluated without live
// market data or persistence.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=RELIANCE --strategy=sma_crossover --days=30
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"smart-algo-trade/config"
	"smart-algo-trade/internal/history"
	"smart-algo-trade/internal/instruments"
	"smart-algo-trade/internal/logger"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/paper"
	"smart-algo-trade/internal/strategy"
	"smart-algo-trade/pkg/kiteconnect"
)

// warmup candles are fed to the strategy before trading starts so the
// longest lookback indicators have real values.
const warmup = 50

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	symbol := flag.String("symbol", "", "trading symbol, e.g. RELIANCE")
	exchange := flag.String("exchange", "NSE", "exchange")
	strategyName := flag.String("strategy", "sma_crossover", "strategy name (see strategy.Names)")
	interval := flag.String("interval", "5minute", "candle interval")
	days := flag.Int("days", 30, "days of history to replay")
	capitalRupees := flag.Float64("capital", 100_000, "virtual capital in rupees")
	params := flag.String("params", "", "strategy params: key=value,key=value")
	flag.Parse()

	if *symbol == "" {
		log.Fatal("[backtest] --symbol is required")
	}

	cfg := config.Load()
	cfg.RequireCredentials()
	logger.Init("backtest", slog.LevelWarn)

	kite := kiteconnect.New(kiteconnect.Config{
		APIKey:      cfg.KiteAPIKey,
		APISecret:   cfg.KiteAPISecret,
		TOTPSecret:  cfg.KiteTOTPSecret,
		SessionFile: cfg.SessionFile,
	})
	if !kite.Authenticated() {
		log.Fatalf("[backtest] no valid session; login at %s first", kite.LoginURL())
	}

	ctx := context.Background()

	registry := instruments.New(kite, "data")
	if err := registry.Ensure(ctx, *exchange); err != nil {
		log.Fatalf("[backtest] instrument catalog: %v", err)
	}
	inst, ok := registry.Resolve(*exchange, *symbol)
	if !ok {
		log.Fatalf("[backtest] unknown instrument %s:%s", *exchange, *symbol)
	}

	candles, err := history.New(kite).FetchDaysBack(ctx, inst.Token, *interval, *days)
	if err != nil {
		log.Fatalf("[backtest] history fetch: %v", err)
	}
	if len(candles) <= warmup {
		log.Fatalf("[backtest] only %d candles fetched, need more than %d", len(candles), warmup)
	}

	capital := int64(*capitalRupees * 100)
	engine, err := paper.NewEngine(paper.Config{
		PaperTrading:   true,
		InitialCapital: capital,
		FallbackPrice:  candles[0].Close,
	}, discardStore{}, nil)
	if err != nil {
		log.Fatalf("[backtest] engine: %v", err)
	}

	strat, err := strategy.New(*strategyName, strategy.Config{
		Symbol:       inst.Symbol,
		Exchange:     inst.Exchange,
		Capital:      capital,
		RiskPerTrade: cfg.RiskPerTrade,
		Params:       parseParams(*params),
	})
	if err != nil {
		log.Fatalf("[backtest] strategy: %v", err)
	}

	run(ctx, engine, strat, inst, candles)
	report(engine, strat, candles)
}

func run(ctx context.Context, engine *paper.Engine, strat strategy.Strategy,
	inst model.Instrument, candles []model.Candle) {

	var openSide string
	var openQty int64

	for i := warmup; i < len(candles); i++ {
		c := candles[i]
		engine.UpdateLTP(inst.Symbol, inst.Exchange, c.Close)

		sig := strat.GenerateSignal(candles[:i+1], c.Close)
		if sig == nil {
			continue
		}

		switch sig.Kind {
		case strategy.KindBuy, strategy.KindSell:
			if openQty > 0 || sig.Qty <= 0 {
				continue
			}
			_, err := engine.PlaceOrder(ctx, paper.OrderRequest{
				Symbol: inst.Symbol, Exchange: inst.Exchange,
				Side: sig.Kind, Qty: sig.Qty,
				OrderType: model.OrderTypeMarket, Product: model.ProductMIS,
				Tag: "BACKTEST",
			})
			if err != nil {
				log.Printf("[backtest] entry at %s: %v", c.Start.Format("2006-01-02 15:04"), err)
				continue
			}
			openSide, openQty = sig.Kind, sig.Qty

		case strategy.KindExit:
			if openQty == 0 {
				continue
			}
			side := model.SideSell
			if openSide == strategy.KindSell {
				side = model.SideBuy
			}
			if _, err := engine.PlaceOrder(ctx, paper.OrderRequest{
				Symbol: inst.Symbol, Exchange: inst.Exchange,
				Side: side, Qty: openQty,
				OrderType: model.OrderTypeMarket, Product: model.ProductMIS,
				Tag: "BACKTEST",
			}); err != nil {
				log.Printf("[backtest] exit at %s: %v", c.Start.Format("2006-01-02 15:04"), err)
				continue
			}
			openSide, openQty = "", 0
		}
	}

	// Flatten anything still open at the final close.
	if openQty > 0 {
		side := model.SideSell
		if openSide == strategy.KindSell {
			side = model.SideBuy
		}
		engine.PlaceOrder(ctx, paper.OrderRequest{
			Symbol: inst.Symbol, Exchange: inst.Exchange,
			Side: side, Qty: openQty,
			OrderType: model.OrderTypeMarket, Product: model.ProductMIS,
			Tag: "BACKTEST",
		})
	}
}

func report(engine *paper.Engine, strat strategy.Strategy, candles []model.Candle) {
	stats := engine.Stats()
	funds := engine.Funds()

	fmt.Printf("\n==== backtest: %s over %d candles (%s .. %s) ====\n",
		strat.Name(), len(candles),
		candles[0].Start.Format("2006-01-02"),
		candles[len(candles)-1].Start.Format("2006-01-02"))
	fmt.Printf("trades:        %d (%d buys / %d sells)\n",
		stats.TotalTrades, stats.BuyTrades, stats.SellTrades)
	fmt.Printf("wins / losses: %d / %d  (win rate %.1f%%)\n",
		stats.WinTrades, stats.LossTrades, stats.WinRate*100)
	fmt.Printf("realized pnl:  ₹%.2f\n", float64(stats.RealizedPnL)/100)
	fmt.Printf("final equity:  ₹%.2f (started ₹%.2f)\n",
		float64(funds.Available+funds.Invested)/100, float64(funds.Capital)/100)
}

func parseParams(s string) map[string]float64 {
	out := make(map[string]float64)
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			log.Fatalf("[backtest] bad param %q, want key=value", kv)
		}
		var v float64
		if _, err := fmt.Sscanf(parts[1], "%g", &v); err != nil {
			log.Fatalf("[backtest] bad param value %q: %v", kv, err)
		}
		out[parts[0]] = v
	}
	return out
}

// discardStore satisfies model.EngineStore without persisting anything;
// a backtest's state is disposable.
type discardStore struct{}

func (discardStore) SaveFunds(model.Funds) error                { return nil }
func (discardStore) SaveOrder(model.Order) error                { return nil }
func (discardStore) SavePosition(model.Position) error          { return nil }
func (discardStore) DeletePosition(_, _, _ string) error        { return nil }
func (discardStore) AppendTrade(model.TradeEntry) error         { return nil }
func (discardStore) Reset() error                               { return nil }
func (discardStore) Close() error                               { return nil }
func (discardStore) LoadState() (*model.Funds, []model.Order, []model.Position, []model.TradeEntry, error) {
	return nil, nil, nil, nil, nil
}
