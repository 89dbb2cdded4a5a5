package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/paper"
	"smart-algo-trade/internal/strategy"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	writeSuccess(w, map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"ws_clients":     s.ws.ClientCount(),
		"ts":             time.Now().In(markethours.IST).Format(time.RFC3339),
	})
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	now := time.Now()
	writeSuccess(w, map[string]interface{}{
		"status":        string(markethours.StatusAt(now)),
		"description":   markethours.StatusString(now),
		"is_open":       markethours.IsMarketOpen(now),
		"should_stream": markethours.ShouldStreamData(now),
		"next_open":     markethours.NextOpen(now).Format(time.RFC3339),
		"ist_time":      now.In(markethours.IST).Format("15:04:05"),
	})
}

// --- stream control ---

type streamRequest struct {
	Symbols  []string `json:"symbols"`
	Exchange string   `json:"exchange"`
	Mode     string   `json:"mode"`
}

func (s *Server) handleStreamSubscribe(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols is required")
		return
	}
	if req.Exchange == "" {
		req.Exchange = "NSE"
	}
	mode := model.StreamMode(req.Mode)
	switch mode {
	case model.ModeLTP, model.ModeQuote, model.ModeFull:
	case "":
		mode = model.ModeFull
	default:
		writeError(w, http.StatusBadRequest, "mode must be ltp, quote or full")
		return
	}

	subscribed := make([]string, 0, len(req.Symbols))
	for _, sym := range req.Symbols {
		inst, ok := s.deps.Resolve(req.Exchange, sym)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown instrument "+req.Exchange+":"+sym)
			return
		}
		if err := s.deps.Ticks.Subscribe(inst.Token, inst.Symbol, inst.Exchange, mode); err != nil {
			writeError(w, http.StatusBadGateway, "subscribe failed: "+err.Error())
			return
		}
		subscribed = append(subscribed, inst.Key())
	}
	writeSuccess(w, map[string]interface{}{"subscribed": subscribed, "mode": string(mode)})
}

func (s *Server) handleStreamUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Exchange == "" {
		req.Exchange = "NSE"
	}

	removed := make([]string, 0, len(req.Symbols))
	for _, sym := range req.Symbols {
		inst, ok := s.deps.Resolve(req.Exchange, sym)
		if !ok {
			continue
		}
		if err := s.deps.Ticks.Unsubscribe(inst.Token); err != nil {
			writeError(w, http.StatusBadGateway, "unsubscribe failed: "+err.Error())
			return
		}
		removed = append(removed, inst.Key())
	}
	writeSuccess(w, map[string]interface{}{"unsubscribed": removed})
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	tokens := s.deps.Ticks.Tokens()
	ltps := make(map[string]int64, len(tokens))
	for _, tok := range tokens {
		if price, ok := s.deps.Ticks.LTP(tok); ok {
			ltps[strconv.FormatUint(uint64(tok), 10)] = price
		}
	}
	writeSuccess(w, map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
		"ltp":    ltps,
	})
}

// handleLTP serves last prices for ?i=EX:SYMBOL instruments, preferring the
// live stream cache and falling back to the upstream quote endpoint.
func (s *Server) handleLTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	instruments := r.URL.Query()["i"]
	if len(instruments) == 0 {
		writeError(w, http.StatusBadRequest, "at least one i=EXCHANGE:SYMBOL is required")
		return
	}

	out := make(map[string]int64, len(instruments))
	var missing []string
	for _, inst := range instruments {
		if price, ok := s.deps.Ticks.LTPBySymbol(inst); ok {
			out[inst] = price
		} else {
			missing = append(missing, inst)
		}
	}
	if len(missing) > 0 && s.deps.Oracle != nil {
		fetched, err := s.deps.Oracle.LTP(r.Context(), missing)
		if err != nil {
			writeError(w, http.StatusBadGateway, "ltp fetch failed: "+err.Error())
			return
		}
		for k, v := range fetched {
			out[k] = v
		}
	}
	writeSuccess(w, out)
}

// --- paper trading ---

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, eng.Portfolio())
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, eng.Funds())
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if id := r.URL.Query().Get("order_id"); id != "" {
		o, ok := eng.Order(id)
		if !ok {
			writeError(w, http.StatusNotFound, "order "+id+" not found")
			return
		}
		writeSuccess(w, o)
		return
	}
	writeSuccess(w, eng.Orders())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, eng.Positions())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, eng.Trades())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, eng.Stats())
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req paper.OrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Exchange == "" {
		req.Exchange = "NSE"
	}
	if req.Tag == "" {
		req.Tag = "MANUAL"
	}

	id, err := eng.PlaceOrder(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	order, _ := eng.Order(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"message":  "order placed",
		"order_id": id,
		"data":     order,
	})
}

type modifyRequest struct {
	OrderID      string `json:"order_id"`
	Qty          int64  `json:"qty"`
	Price        int64  `json:"price"`
	TriggerPrice int64  `json:"trigger_price"`
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req modifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if err := eng.ModifyOrder(req.OrderID, req.Qty, req.Price, req.TriggerPrice); err != nil {
		writeEngineError(w, err)
		return
	}
	order, _ := eng.Order(req.OrderID)
	writeSuccess(w, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req struct {
		OrderID string `json:"order_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if err := eng.CancelOrder(req.OrderID); err != nil {
		writeEngineError(w, err)
		return
	}
	order, _ := eng.Order(req.OrderID)
	writeSuccess(w, order)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := eng.Reset(); err != nil {
		writeEngineError(w, err)
		return
	}
	// The bot's tracked pairs and daily strategy state refer to the wiped
	// portfolio; clear them too when the default account resets.
	if userFrom(r) == defaultUser && s.deps.Bot != nil {
		s.deps.Bot.ResetState()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "paper account reset",
		"data":    eng.Funds(),
	})
}

// --- bot control ---

type botStartRequest struct {
	Symbols          []string           `json:"symbols"`
	Strategy         string             `json:"strategy"`
	CapitalPerSymbol int64              `json:"capital_per_symbol"` // paise
	Params           map[string]float64 `json:"params,omitempty"`
}

func (s *Server) handleBotStart(w http.ResponseWriter, r *http.Request) {
	var req botStartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Symbols) == 0 || req.Strategy == "" {
		writeError(w, http.StatusBadRequest, "symbols and strategy are required")
		return
	}
	if err := s.deps.Bot.Start(r.Context(), req.Symbols, req.Strategy,
		req.CapitalPerSymbol, req.Params); err != nil {
		var re *paper.RejectError
		if errors.As(err, &re) {
			writeEngineError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "bot started",
		"data":    s.deps.Bot.Status(),
	})
}

func (s *Server) handleBotStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SquareOff bool `json:"square_off"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Bot.Stop(r.Context(), req.SquareOff); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "bot stopped",
	})
}

func (s *Server) handleBotPause(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bot.Pause(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "bot paused",
	})
}

func (s *Server) handleBotResume(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bot.Resume(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "bot resumed",
	})
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	writeSuccess(w, s.deps.Bot.Status())
}

// handleBotPositions reports open positions carrying bot tags together with
// the bot's entry/stop order pairing.
func (s *Server) handleBotPositions(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	eng, err := s.engine(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := s.deps.Bot.Status()
	writeSuccess(w, map[string]interface{}{
		"positions":    eng.Positions(),
		"active_pairs": status["active_positions"],
	})
}

func (s *Server) handleBotStrategies(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	writeSuccess(w, strategy.Names())
}

func (s *Server) handleInstrumentSearch(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if s.deps.Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "instrument catalog not loaded")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	exchange := r.URL.Query().Get("exchange")
	hits := s.deps.Registry.Search(q, exchange, 20)
	writeSuccess(w, map[string]interface{}{
		"instruments": hits,
		"count":       len(hits),
	})
}

// handleLiveCandles serves the in-memory series the candle builder has
// accumulated from the live stream, including the forming candle.
func (s *Server) handleLiveCandles(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	exchange := q.Get("exchange")
	if exchange == "" {
		exchange = "NSE"
	}
	interval := 5
	if v := q.Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "interval must be a positive integer (minutes)")
			return
		}
		interval = n
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	inst, ok := s.deps.Resolve(exchange, symbol)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown instrument "+exchange+":"+symbol)
		return
	}

	series := s.deps.Builder.History(inst.Token, interval, limit)
	payload := map[string]interface{}{
		"candles": series,
		"count":   len(series),
	}
	if current, ok := s.deps.Builder.Current(inst.Token, interval); ok {
		payload["current"] = current
	}
	writeSuccess(w, payload)
}

// --- historical data and indicators ---

func (s *Server) fetchCandles(w http.ResponseWriter, r *http.Request) ([]model.Candle, bool) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return nil, false
	}
	exchange := q.Get("exchange")
	if exchange == "" {
		exchange = "NSE"
	}
	interval := q.Get("interval")
	if interval == "" {
		interval = "5minute"
	}
	days := 5
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return nil, false
		}
		days = n
	}

	inst, ok := s.deps.Resolve(exchange, symbol)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown instrument "+exchange+":"+symbol)
		return nil, false
	}

	candles, err := s.deps.Fetcher.FetchDaysBack(r.Context(), inst.Token, interval, days)
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}
	return candles, true
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	candles, ok := s.fetchCandles(w, r)
	if !ok {
		return
	}
	writeSuccess(w, map[string]interface{}{
		"candles": candles,
		"count":   len(candles),
	})
}

// handleIndicators computes the requested indicators over fetched history
// and returns the latest value of each series.
func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	candles, ok := s.fetchCandles(w, r)
	if !ok {
		return
	}
	if len(candles) == 0 {
		writeError(w, http.StatusBadRequest, "insufficient history")
		return
	}

	names := strings.Split(r.URL.Query().Get("indicators"), ",")
	if len(names) == 1 && names[0] == "" {
		names = []string{"sma", "ema", "rsi", "macd"}
	}
	period := 14
	if v := r.URL.Query().Get("period"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "period must be a positive integer")
			return
		}
		period = n
	}

	closes := indicator.Closes(candles)
	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "sma":
			out["sma"] = indicator.Last(indicator.SMA(closes, period))
		case "ema":
			out["ema"] = indicator.Last(indicator.EMA(closes, period))
		case "rsi":
			out["rsi"] = indicator.Last(indicator.RSI(closes, period))
		case "macd":
			macd, signal, hist := indicator.MACD(closes, 12, 26, 9)
			out["macd"] = map[string]float64{
				"macd":      indicator.Last(macd),
				"signal":    indicator.Last(signal),
				"histogram": indicator.Last(hist),
			}
		case "atr":
			out["atr"] = indicator.Last(indicator.ATR(candles, period))
		case "bollinger":
			middle, upper, lower := indicator.Bollinger(closes, 20, 2)
			out["bollinger"] = map[string]float64{
				"middle": indicator.Last(middle),
				"upper":  indicator.Last(upper),
				"lower":  indicator.Last(lower),
			}
		case "supertrend":
			line, dir := indicator.Supertrend(candles, 10, 3)
			direction := 0
			if len(dir) > 0 {
				direction = dir[len(dir)-1]
			}
			out["supertrend"] = map[string]interface{}{
				"line":      indicator.Last(line),
				"direction": direction,
			}
		case "vwap":
			out["vwap"] = indicator.Last(indicator.VWAP(candles))
		case "adx":
			adx, plusDI, minusDI := indicator.ADX(candles, period)
			out["adx"] = map[string]float64{
				"adx":      indicator.Last(adx),
				"plus_di":  indicator.Last(plusDI),
				"minus_di": indicator.Last(minusDI),
			}
		default:
			writeError(w, http.StatusBadRequest, "unknown indicator "+name)
			return
		}
	}

	last := candles[len(candles)-1]
	writeSuccess(w, map[string]interface{}{
		"symbol":     last.Symbol,
		"indicators": out,
		"candles":    len(candles),
		"as_of":      last.Start.Format(time.RFC3339),
	})
}
