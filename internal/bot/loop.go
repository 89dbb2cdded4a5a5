package bot

import (
	"context"
	"log"
	"time"

	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/notification"
	"smart-algo-trade/internal/paper"
	"smart-algo-trade/internal/strategy"
)

// consumeTicks feeds live ticks into the engine's LTP path and into
// tick-driven strategies.
func (b *Bot) consumeTicks(ctx context.Context, ticks <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			b.engine.UpdateLTP(t.Symbol, t.Exchange, t.LastPrice)

			b.mu.Lock()
			b.lastPrices[t.Symbol] = t.LastPrice
			s := b.strategies[t.Symbol]
			running := b.state == StateRunning
			b.mu.Unlock()

			if !running || s == nil {
				continue
			}
			if tp, ok := s.(strategy.TickProcessor); ok {
				if sig := tp.ProcessTick(t); sig != nil {
					b.execute(ctx, sig)
				}
			}
		}
	}
}

// monitorLoop is the periodic scheduler: LTP refresh, market gate, auto
// square-off, and the per-strategy evaluation pass.
func (b *Bot) monitorLoop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		b.iterate(ctx)
		if b.State() == StateStopped {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) iterate(ctx context.Context) {
	// LTP refresh runs even when the market is closed so dashboards and
	// unrealized P&L stay current.
	b.refreshLTPs(ctx)

	now := b.now()
	if !b.marketOpen(now) {
		return
	}

	if b.pastSquareOff(now) {
		log.Printf("[bot] square-off time reached")
		b.SquareOff(ctx)
		b.mu.Lock()
		cancel := b.cancel
		b.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		b.teardown()
		return
	}

	if b.State() != StateRunning {
		return
	}
	b.evaluateAll(ctx)
}

func (b *Bot) pastSquareOff(now time.Time) bool {
	ist := now.In(markethours.IST)
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= b.cfg.SquareOffHour*60+b.cfg.SquareOffMinute
}

// refreshLTPs pulls quotes for every bot symbol and pushes them through the
// engine so positions get re-marked.
func (b *Bot) refreshLTPs(ctx context.Context) {
	if b.oracle == nil {
		return
	}
	b.mu.Lock()
	instruments := make([]string, 0, len(b.strategies))
	for sym := range b.strategies {
		instruments = append(instruments, b.cfg.Exchange+":"+sym)
	}
	b.mu.Unlock()
	if len(instruments) == 0 {
		return
	}

	quotes, err := b.oracle.LTP(ctx, instruments)
	if err != nil {
		log.Printf("[bot] LTP refresh: %v", err)
		return
	}
	for inst, price := range quotes {
		sym := inst[len(b.cfg.Exchange)+1:]
		b.engine.UpdateLTP(sym, b.cfg.Exchange, price)
		b.mu.Lock()
		b.lastPrices[sym] = price
		b.mu.Unlock()
	}
}

// evaluateAll runs one generate-signal pass over every strategy.
func (b *Bot) evaluateAll(ctx context.Context) {
	b.mu.Lock()
	type entry struct {
		sym   string
		token uint32
		strat strategy.Strategy
		price int64
	}
	entries := make([]entry, 0, len(b.strategies))
	for sym, s := range b.strategies {
		entries = append(entries, entry{sym, b.tokens[sym], s, b.lastPrices[sym]})
	}
	b.mu.Unlock()

	for _, e := range entries {
		candles, err := b.candles.FetchDaysBack(ctx, e.token, b.cfg.CandleInterval, b.cfg.HistoryDays)
		if err != nil {
			log.Printf("[bot] history %s: %v", e.sym, err)
			continue
		}
		if e.price == 0 && len(candles) > 0 {
			e.price = candles[len(candles)-1].Close
		}
		if e.price == 0 {
			continue
		}
		if sig := e.strat.GenerateSignal(candles, e.price); sig != nil {
			b.mu.Lock()
			b.signalsGenerated++
			b.mu.Unlock()
			b.execute(ctx, sig)
		}
	}
}

// execute maps a strategy signal onto paper-engine orders.
func (b *Bot) execute(ctx context.Context, sig *strategy.Signal) {
	switch sig.Kind {
	case strategy.KindBuy, strategy.KindSell:
		b.enter(ctx, sig)
	case strategy.KindHold:
		if sig.Metadata["action"] == "update_sl" {
			b.updateStopOrder(sig)
		}
	case strategy.KindExit:
		b.exitPosition(ctx, sig)
	}
}

// enter places the market entry and its protective stop as a pair.
func (b *Bot) enter(ctx context.Context, sig *strategy.Signal) {
	entryID, err := b.engine.PlaceOrder(ctx, orderFor(sig, b.cfg, sig.Kind, tagBot+sig.Symbol))
	if err != nil {
		log.Printf("[bot] entry %s %s: %v", sig.Kind, sig.Symbol, err)
		return
	}

	pair := &activePair{
		Symbol:       sig.Symbol,
		Side:         sig.Kind,
		Qty:          sig.Qty,
		EntryOrderID: entryID,
	}

	if sig.StopLoss > 0 {
		slID, err := b.engine.PlaceOrder(ctx, stopOrderFor(sig, b.cfg))
		if err != nil {
			log.Printf("[bot] stop order %s: %v", sig.Symbol, err)
		} else {
			pair.SLOrderID = slID
		}
	}

	b.mu.Lock()
	b.active[sig.Symbol] = pair
	b.ordersPlaced++
	if pair.SLOrderID != "" {
		b.ordersPlaced++
	}
	b.mu.Unlock()
	log.Printf("[bot] %s %d %s @ %d stop=%d reason=%q",
		sig.Kind, sig.Qty, sig.Symbol, sig.Price, sig.StopLoss, sig.Reason)
	b.notify(notification.AlertInfo, "entry",
		"%s %d %s @ ₹%.2f, stop ₹%.2f (%s)",
		sig.Kind, sig.Qty, sig.Symbol, float64(sig.Price)/100, float64(sig.StopLoss)/100, sig.Reason)
}

// updateStopOrder moves the resting stop order's trigger to the new level.
func (b *Bot) updateStopOrder(sig *strategy.Signal) {
	b.mu.Lock()
	pair := b.active[sig.Symbol]
	b.mu.Unlock()
	if pair == nil || pair.SLOrderID == "" {
		return
	}
	if err := b.engine.ModifyOrder(pair.SLOrderID, 0, 0, sig.StopLoss); err != nil {
		log.Printf("[bot] trail stop %s: %v", sig.Symbol, err)
		return
	}
	log.Printf("[bot] trailed stop %s -> %d", sig.Symbol, sig.StopLoss)
}

// exitPosition flattens with a reverse market order and cancels the stop.
func (b *Bot) exitPosition(ctx context.Context, sig *strategy.Signal) {
	b.mu.Lock()
	pair := b.active[sig.Symbol]
	delete(b.active, sig.Symbol)
	b.mu.Unlock()

	side := model.SideSell
	qty := sig.Qty
	if pair != nil {
		qty = pair.Qty
		if pair.Side == strategy.KindSell {
			side = model.SideBuy
		}
	}
	if qty <= 0 {
		return
	}

	if pair != nil && pair.SLOrderID != "" {
		if err := b.engine.CancelOrder(pair.SLOrderID); err != nil {
			// Already-filled stops are expected here.
			log.Printf("[bot] cancel stop %s: %v", sig.Symbol, err)
		}
	}

	_, err := b.engine.PlaceOrder(ctx, paperRequest(sig.Symbol, b.cfg, side, qty,
		model.OrderTypeMarket, 0, tagBot+sig.Symbol))
	if err != nil {
		log.Printf("[bot] exit %s: %v", sig.Symbol, err)
		return
	}
	b.mu.Lock()
	b.ordersPlaced++
	b.mu.Unlock()
	log.Printf("[bot] exited %s (%s)", sig.Symbol, sig.Reason)
	b.notify(notification.AlertInfo, "exit", "flattened %d %s (%s)", qty, sig.Symbol, sig.Reason)
}

// SquareOff flattens every open position and cancels every resting order.
// Order placement and cancellation retry up to SquareOffRetry times each.
func (b *Bot) SquareOff(ctx context.Context) {
	var flattened int
	for _, p := range b.engine.Positions() {
		if p.NetQty == 0 {
			continue
		}
		side := model.SideSell
		qty := p.NetQty
		if qty < 0 {
			side = model.SideBuy
			qty = -qty
		}
		req := paperRequest(p.Symbol, b.cfg, side, qty, model.OrderTypeMarket, 0, tagSquareOff)
		req.Product = p.Product

		var err error
		for attempt := 1; attempt <= b.cfg.SquareOffRetry; attempt++ {
			if _, err = b.engine.PlaceOrder(ctx, req); err == nil {
				break
			}
			log.Printf("[bot] square-off %s attempt %d/%d: %v",
				p.Symbol, attempt, b.cfg.SquareOffRetry, err)
		}
		if err != nil {
			log.Printf("[bot] square-off %s failed permanently: %v", p.Symbol, err)
			continue
		}
		flattened++
	}

	for _, o := range b.engine.Orders() {
		if o.Status != model.StatusOpen && o.Status != model.StatusTriggerPending {
			continue
		}
		var err error
		for attempt := 1; attempt <= b.cfg.SquareOffRetry; attempt++ {
			if err = b.engine.CancelOrder(o.OrderID); err == nil {
				break
			}
		}
		if err != nil {
			log.Printf("[bot] cancel %s failed permanently: %v", o.OrderID, err)
		}
	}

	b.mu.Lock()
	b.active = make(map[string]*activePair)
	b.mu.Unlock()

	if flattened > 0 {
		b.notify(notification.AlertWarning, "square-off", "flattened %d positions", flattened)
	}
}

// ---- Request builders ----

func paperRequest(symbol string, cfg Config, side string, qty int64,
	orderType string, trigger int64, tag string) paper.OrderRequest {
	return paper.OrderRequest{
		Symbol:       symbol,
		Exchange:     cfg.Exchange,
		Side:         side,
		Qty:          qty,
		OrderType:    orderType,
		Product:      cfg.Product,
		TriggerPrice: trigger,
		Tag:          tag,
	}
}

func orderFor(sig *strategy.Signal, cfg Config, side, tag string) paper.OrderRequest {
	return paperRequest(sig.Symbol, cfg, side, sig.Qty, model.OrderTypeMarket, 0, tag)
}

// stopOrderFor builds the protective stop: opposite side, trigger at the
// signalled stop level.
func stopOrderFor(sig *strategy.Signal, cfg Config) paper.OrderRequest {
	side := model.SideSell
	if sig.Kind == strategy.KindSell {
		side = model.SideBuy
	}
	return paperRequest(sig.Symbol, cfg, side, sig.Qty, model.OrderTypeSLM,
		sig.StopLoss, tagStopLoss+sig.Symbol)
}
