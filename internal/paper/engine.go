// Package paper simulates order execution against live market prices with a
// virtual-fund ledger. The engine is a pure state object: one mutex
// serializes every public operation, each mutation is written through to the
// store before returning, and callers read via snapshot methods.
package paper

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smart-algo-trade/internal/model"
)

// botTagPrefix marks orders placed by a running strategy; their buys draw
// from the reserved bucket first and their sells credit it back.
const botTagPrefix = "BOT_"

// Limits are the per-day risk limits checked on every order.
type Limits struct {
	MaxLossPerDay   int64 // paise
	MaxPositions    int
	MaxTradesPerDay int
}

// Config for one engine instance.
type Config struct {
	// PaperTrading must be true. The engine is the simulation-only path
	// and refuses to run when the process is configured for live orders.
	PaperTrading bool

	InitialCapital int64 // paise, used when the store holds no prior funds
	FallbackPrice  int64 // last-resort market fill price in paise
	Limits         Limits
}

// OrderRequest is the input to PlaceOrder.
type OrderRequest struct {
	Symbol       string `json:"symbol"`
	Exchange     string `json:"exchange"`
	Side         string `json:"side"`
	Qty          int64  `json:"qty"`
	OrderType    string `json:"order_type"`
	Product      string `json:"product"`
	Price        int64  `json:"price,omitempty"`
	TriggerPrice int64  `json:"trigger_price,omitempty"`
	Tag          string `json:"tag,omitempty"`
}

// Snapshot is a consistent copy of the whole portfolio.
type Snapshot struct {
	Funds         model.Funds      `json:"funds"`
	Positions     []model.Position `json:"positions"`
	UnrealizedPnL int64            `json:"unrealized_pnl"`
	TotalValue    int64            `json:"total_value"` // available + reserved + invested + unrealized
	TS            time.Time        `json:"ts"`
}

// Stats summarizes the trade log.
type Stats struct {
	TotalTrades int     `json:"total_trades"`
	BuyTrades   int     `json:"buy_trades"`
	SellTrades  int     `json:"sell_trades"`
	WinTrades   int     `json:"win_trades"`
	LossTrades  int     `json:"loss_trades"`
	WinRate     float64 `json:"win_rate"`
	RealizedPnL int64   `json:"realized_pnl"`
	DailyPnL    int64   `json:"daily_pnl"`
}

// Engine is the paper-trading execution engine.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	store  model.EngineStore
	oracle model.PriceOracle

	funds     model.Funds
	orders    map[string]*model.Order
	positions map[string]*model.Position
	trades    []model.TradeEntry
	ltp       map[string]int64 // "EXCHANGE:SYMBOL" -> paise
}

// NewEngine builds an engine and reconstructs prior state from the store.
func NewEngine(cfg Config, store model.EngineStore, oracle model.PriceOracle) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		store:     store,
		oracle:    oracle,
		orders:    make(map[string]*model.Order),
		positions: make(map[string]*model.Position),
		ltp:       make(map[string]int64),
	}

	funds, orders, positions, trades, err := store.LoadState()
	if err != nil {
		return nil, err
	}
	if funds != nil {
		e.funds = *funds
	} else {
		e.funds = model.Funds{
			Capital:   cfg.InitialCapital,
			Available: cfg.InitialCapital,
			UpdatedAt: time.Now(),
		}
		if err := store.SaveFunds(e.funds); err != nil {
			return nil, err
		}
	}
	for i := range orders {
		o := orders[i]
		e.orders[o.OrderID] = &o
	}
	for i := range positions {
		p := positions[i]
		e.positions[p.Key()] = &p
	}
	e.trades = trades

	log.Printf("[paper] loaded state: orders=%d positions=%d trades=%d available=%d",
		len(e.orders), len(e.positions), len(e.trades), e.funds.Available)
	return e, nil
}

// ---- Fund reservation ----

// Allocate moves amount from available to reserved for a starting bot.
func (e *Engine) Allocate(amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return reject(KindValidation, "", "allocation amount must be positive, got %d", amount)
	}
	if amount > e.funds.Available {
		return reject(KindFunds, "available_funds",
			"cannot reserve %d, only %d available", amount, e.funds.Available)
	}
	e.funds.Available -= amount
	e.funds.Reserved += amount
	e.persistFunds()
	return nil
}

// Reclaim returns all reserved funds to available; called on bot stop.
func (e *Engine) Reclaim() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	amount := e.funds.Reserved
	e.funds.Available += amount
	e.funds.Reserved = 0
	e.persistFunds()
	return amount
}

// ---- Orders ----

// PlaceOrder validates, risk-checks, and accepts one order. MARKET orders
// fill immediately; LIMIT rests as OPEN and SL/SL-M as TRIGGER PENDING until
// an LTP update crosses them.
func (e *Engine) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validate(req); err != nil {
		return "", err
	}
	if err := e.checkRiskLimits(req); err != nil {
		return "", err
	}

	isBot := strings.HasPrefix(req.Tag, botTagPrefix)
	if req.Side == model.SideBuy {
		est := req.Qty * e.estimatePrice(ctx, req)
		budget := e.funds.Available
		if isBot {
			budget += e.funds.Reserved
		}
		if est > budget {
			return "", reject(KindFunds, "available_funds",
				"order value %d exceeds usable funds %d", est, budget)
		}
	}

	o := &model.Order{
		OrderID:      newOrderID(),
		Symbol:       req.Symbol,
		Exchange:     req.Exchange,
		Side:         req.Side,
		Qty:          req.Qty,
		OrderType:    req.OrderType,
		Product:      req.Product,
		Status:       model.StatusPending,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		PendingQty:   req.Qty,
		Tag:          req.Tag,
		PlacedAt:     time.Now(),
	}
	e.orders[o.OrderID] = o
	e.persistOrder(o)

	switch o.OrderType {
	case model.OrderTypeMarket:
		e.fill(o, e.marketFillPrice(ctx, o))
	case model.OrderTypeLimit:
		o.Status = model.StatusOpen
		e.persistOrder(o)
	case model.OrderTypeSL, model.OrderTypeSLM:
		o.Status = model.StatusTriggerPending
		e.persistOrder(o)
	}
	return o.OrderID, nil
}

// ModifyOrder changes qty/price/trigger on a resting order.
func (e *Engine) ModifyOrder(id string, qty, price, triggerPrice int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return reject(KindNotFound, "", "order %s not found", id)
	}
	if o.Terminal() {
		return reject(KindOrderState, "", "order %s is %s, cannot modify", id, o.Status)
	}
	if qty < 0 || price < 0 || triggerPrice < 0 {
		return reject(KindValidation, "", "negative modification values")
	}
	if qty > 0 {
		if qty-o.FilledQty-o.CancelledQty < 0 {
			return reject(KindValidation, "", "qty %d below already-filled %d", qty, o.FilledQty)
		}
		o.Qty = qty
		o.PendingQty = qty - o.FilledQty - o.CancelledQty
	}
	if price > 0 {
		o.Price = price
	}
	if triggerPrice > 0 {
		o.TriggerPrice = triggerPrice
	}
	e.persistOrder(o)
	return nil
}

// CancelOrder cancels the remaining quantity of a resting order.
func (e *Engine) CancelOrder(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return reject(KindNotFound, "", "order %s not found", id)
	}
	if o.Terminal() {
		return reject(KindOrderState, "", "order %s is %s, cannot cancel", id, o.Status)
	}
	o.CancelledQty += o.PendingQty
	o.PendingQty = 0
	o.Status = model.StatusCancelled
	e.persistOrder(o)
	return nil
}

// ---- LTP ----

// UpdateLTP refreshes the price cache, re-marks every position on the
// instrument, and fills any resting order the new price crosses.
func (e *Engine) UpdateLTP(symbol, exchange string, price int64) {
	if price <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ltp[exchange+":"+symbol] = price

	touched := false
	for _, p := range e.positions {
		if p.Symbol != symbol || p.Exchange != exchange {
			continue
		}
		p.LastPrice = price
		p.UnrealizedPnL = p.ComputeUnrealized(price)
		p.UpdatedAt = time.Now()
		e.persistPosition(p)
		touched = true
	}
	if touched {
		e.persistFunds()
	}

	// Resting orders on this instrument.
	for _, o := range e.orders {
		if o.Symbol != symbol || o.Exchange != exchange {
			continue
		}
		switch o.Status {
		case model.StatusOpen:
			if o.OrderType == model.OrderTypeLimit && limitCrossed(o, price) {
				e.fill(o, o.Price)
			}
		case model.StatusTriggerPending:
			if triggerCrossed(o, price) {
				e.fill(o, o.TriggerPrice)
			}
		}
	}
}

// limitCrossed: a BUY limit fills when the market trades at or below the
// limit, a SELL limit at or above.
func limitCrossed(o *model.Order, price int64) bool {
	if o.Side == model.SideBuy {
		return price <= o.Price
	}
	return price >= o.Price
}

// triggerCrossed: stop orders trigger on adverse movement: a SELL stop when
// price falls to the trigger, a BUY stop when it rises to it.
func triggerCrossed(o *model.Order, price int64) bool {
	if o.Side == model.SideSell {
		return price <= o.TriggerPrice
	}
	return price >= o.TriggerPrice
}

// ---- Fill & fund math ----

// fill completes an order at price and applies position and fund math.
// Caller holds e.mu.
func (e *Engine) fill(o *model.Order, price int64) {
	now := time.Now()
	qty := o.PendingQty

	o.Status = model.StatusComplete
	o.FilledQty += qty
	o.PendingQty = 0
	o.AvgPrice = price
	o.ExchangeTS = now

	value := qty * price
	isBot := strings.HasPrefix(o.Tag, botTagPrefix)

	key := model.PositionKey(o.Symbol, o.Exchange, o.Product)
	p, ok := e.positions[key]
	if !ok {
		p = &model.Position{
			Symbol:   o.Symbol,
			Exchange: o.Exchange,
			Product:  o.Product,
			OpenedAt: now,
		}
		e.positions[key] = p
	}

	if o.Side == model.SideBuy {
		if isBot && e.funds.Reserved > 0 {
			fromReserved := min64(e.funds.Reserved, value)
			e.funds.Reserved -= fromReserved
			e.funds.Available -= value - fromReserved
		} else {
			e.funds.Available -= value
		}
		e.funds.Invested += value

		p.BuyQty += qty
		p.BuyValue += value
		p.NetQty += qty
	} else {
		p.SellQty += qty
		p.SellValue += value
		p.NetQty -= qty

		// Cost basis of the shares sold; a full close takes whatever
		// buy_value remains so rounding never strands invested paise.
		var costOfSold int64
		if p.BuyQty > 0 {
			avgCost := p.BuyValue / p.BuyQty
			costOfSold = qty * avgCost
			if p.NetQty == 0 {
				costOfSold = p.BuyValue - (p.SellQty-qty)*avgCost
			}
		}

		deltaRealized := value - costOfSold
		e.funds.Invested -= costOfSold
		if isBot {
			e.funds.Reserved += value
		} else {
			e.funds.Available += value
		}
		e.funds.RealizedPnL += deltaRealized
		e.funds.DailyPnL += deltaRealized
		e.funds.TotalPnL += deltaRealized

		p.RealizedPnL += deltaRealized
	}

	p.LastPrice = price
	p.UpdatedAt = now

	if p.NetQty == 0 {
		delete(e.positions, key)
		if err := e.store.DeletePosition(p.Symbol, p.Exchange, p.Product); err != nil {
			log.Printf("[paper] delete position %s: %v (engine state kept)", p.Key(), err)
		}
	} else {
		p.AvgPrice = abs64(p.BuyValue-p.SellValue) / abs64(p.NetQty)
		p.UnrealizedPnL = p.ComputeUnrealized(p.LastPrice)
		e.persistPosition(p)
	}

	e.funds.TradesToday++
	e.persistOrder(o)

	entry := model.TradeEntry{
		TS:      now,
		OrderID: o.OrderID,
		Symbol:  o.Symbol,
		Side:    o.Side,
		Qty:     qty,
		Price:   price,
		Tag:     o.Tag,
	}
	e.trades = append(e.trades, entry)
	if err := e.store.AppendTrade(entry); err != nil {
		log.Printf("[paper] append trade %s: %v (engine state kept)", o.OrderID, err)
	}
	e.persistFunds()

	log.Printf("[paper] filled %s %s %d %s @ %d tag=%s", o.OrderID, o.Side, qty, o.Symbol, price, o.Tag)
}

// marketFillPrice resolves the execution price for a market order:
// cached LTP, then a synchronous oracle fetch, then the configured fallback.
// Caller holds e.mu.
func (e *Engine) marketFillPrice(ctx context.Context, o *model.Order) int64 {
	key := o.Exchange + ":" + o.Symbol
	if p, ok := e.ltp[key]; ok && p > 0 {
		return p
	}
	if e.oracle != nil {
		if quotes, err := e.oracle.LTP(ctx, []string{key}); err == nil {
			if p := quotes[key]; p > 0 {
				e.ltp[key] = p
				return p
			}
		} else {
			log.Printf("[paper] LTP fetch %s: %v", key, err)
		}
	}
	log.Printf("[paper] no market price for %s, using fallback %d", key, e.cfg.FallbackPrice)
	return e.cfg.FallbackPrice
}

// estimatePrice is the pre-trade cost estimate for the funds check.
// Caller holds e.mu.
func (e *Engine) estimatePrice(ctx context.Context, req OrderRequest) int64 {
	if req.Price > 0 {
		return req.Price
	}
	if p, ok := e.ltp[req.Exchange+":"+req.Symbol]; ok && p > 0 {
		return p
	}
	return e.marketFillPrice(ctx, &model.Order{Symbol: req.Symbol, Exchange: req.Exchange})
}

// ---- Checks ----

func (e *Engine) validate(req OrderRequest) error {
	if !e.cfg.PaperTrading {
		return reject(KindSafetyGuard, "paper_trading",
			"process configured for live orders; paper engine refuses to simulate")
	}
	if req.Symbol == "" || req.Exchange == "" {
		return reject(KindValidation, "", "symbol and exchange are required")
	}
	if req.Qty <= 0 {
		return reject(KindValidation, "", "qty must be positive, got %d", req.Qty)
	}
	switch req.Side {
	case model.SideBuy, model.SideSell:
	default:
		return reject(KindValidation, "", "invalid side %q", req.Side)
	}
	switch req.OrderType {
	case model.OrderTypeMarket:
	case model.OrderTypeLimit:
		if req.Price <= 0 {
			return reject(KindValidation, "", "limit order requires a positive price")
		}
	case model.OrderTypeSL, model.OrderTypeSLM:
		if req.TriggerPrice <= 0 {
			return reject(KindValidation, "", "stop order requires a positive trigger price")
		}
	default:
		return reject(KindValidation, "", "invalid order type %q", req.OrderType)
	}
	switch req.Product {
	case model.ProductMIS, model.ProductCNC, model.ProductNRML:
	default:
		return reject(KindValidation, "", "invalid product %q", req.Product)
	}
	return nil
}

// checkRiskLimits enforces the daily limits. The position-count rule applies
// only to orders that would open a new position key; exits stay allowed.
func (e *Engine) checkRiskLimits(req OrderRequest) error {
	l := e.cfg.Limits
	if l.MaxLossPerDay > 0 && abs64(e.funds.DailyPnL) >= l.MaxLossPerDay {
		return reject(KindRiskLimit, "max_loss_per_day",
			"daily P&L %d has hit the limit %d", e.funds.DailyPnL, l.MaxLossPerDay)
	}
	if l.MaxTradesPerDay > 0 && e.funds.TradesToday >= l.MaxTradesPerDay {
		return reject(KindRiskLimit, "max_trades_per_day",
			"%d trades today, limit %d", e.funds.TradesToday, l.MaxTradesPerDay)
	}
	if l.MaxPositions > 0 {
		key := model.PositionKey(req.Symbol, req.Exchange, req.Product)
		if _, exists := e.positions[key]; !exists && len(e.positions) >= l.MaxPositions {
			return reject(KindRiskLimit, "max_positions",
				"%d open positions, limit %d", len(e.positions), l.MaxPositions)
		}
	}
	return nil
}

// ---- Snapshots ----

// Funds returns a copy of the fund record.
func (e *Engine) Funds() model.Funds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.funds
}

// Positions returns copies of all open positions.
func (e *Engine) Positions() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// Position returns one position by key.
func (e *Engine) Position(symbol, exchange, product string) (model.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[model.PositionKey(symbol, exchange, product)]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// Order returns one order by id.
func (e *Engine) Order(id string) (model.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Orders returns copies of all orders.
func (e *Engine) Orders() []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}

// Trades returns a copy of the trade log.
func (e *Engine) Trades() []model.TradeEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.TradeEntry, len(e.trades))
	copy(out, e.trades)
	return out
}

// Portfolio returns a consistent snapshot of funds, positions, and totals.
func (e *Engine) Portfolio() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var unrealized int64
	positions := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		unrealized += p.UnrealizedPnL
		positions = append(positions, *p)
	}
	return Snapshot{
		Funds:         e.funds,
		Positions:     positions,
		UnrealizedPnL: unrealized,
		TotalValue:    e.funds.Available + e.funds.Reserved + e.funds.Invested + unrealized,
		TS:            time.Now(),
	}
}

// Stats summarizes the trade log. Win/loss is judged per SELL trade by the
// realized delta it produced, approximated from the recorded avg cost.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		TotalTrades: len(e.trades),
		RealizedPnL: e.funds.RealizedPnL,
		DailyPnL:    e.funds.DailyPnL,
	}
	// Pair sells against preceding buys per symbol, FIFO on average cost.
	avgCost := make(map[string]int64)
	qtyHeld := make(map[string]int64)
	for _, t := range e.trades {
		if t.Side == model.SideBuy {
			s.BuyTrades++
			held := qtyHeld[t.Symbol]
			avgCost[t.Symbol] = (avgCost[t.Symbol]*held + t.Price*t.Qty) / (held + t.Qty)
			qtyHeld[t.Symbol] = held + t.Qty
			continue
		}
		s.SellTrades++
		if t.Price >= avgCost[t.Symbol] {
			s.WinTrades++
		} else {
			s.LossTrades++
		}
		if qtyHeld[t.Symbol] > t.Qty {
			qtyHeld[t.Symbol] -= t.Qty
		} else {
			qtyHeld[t.Symbol] = 0
			delete(avgCost, t.Symbol)
		}
	}
	if s.SellTrades > 0 {
		s.WinRate = float64(s.WinTrades) / float64(s.SellTrades)
	}
	return s
}

// ---- Maintenance ----

// ResetDailyCounters zeroes daily P&L and the trade counter (new session).
func (e *Engine) ResetDailyCounters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funds.DailyPnL = 0
	e.funds.TradesToday = 0
	e.persistFunds()
}

// Reset wipes the whole portfolio back to initial capital.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Reset(); err != nil {
		return err
	}
	e.orders = make(map[string]*model.Order)
	e.positions = make(map[string]*model.Position)
	e.trades = nil
	e.funds = model.Funds{
		Capital:   e.cfg.InitialCapital,
		Available: e.cfg.InitialCapital,
		UpdatedAt: time.Now(),
	}
	e.persistFunds()
	log.Printf("[paper] portfolio reset to capital %d", e.cfg.InitialCapital)
	return nil
}

// ---- Persistence helpers (caller holds e.mu) ----

// Persistence failures are logged, never rolled back: the in-process engine
// stays authoritative until the next full resync.

func (e *Engine) persistFunds() {
	e.funds.UpdatedAt = time.Now()
	if err := e.store.SaveFunds(e.funds); err != nil {
		log.Printf("[paper] persist funds: %v (engine state kept)", err)
	}
}

func (e *Engine) persistOrder(o *model.Order) {
	if err := e.store.SaveOrder(*o); err != nil {
		log.Printf("[paper] persist order %s: %v (engine state kept)", o.OrderID, err)
	}
}

func (e *Engine) persistPosition(p *model.Position) {
	if err := e.store.SavePosition(*p); err != nil {
		log.Printf("[paper] persist position %s: %v (engine state kept)", p.Key(), err)
	}
}

func newOrderID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "PAPER_" + strings.ToUpper(raw[:8])
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
