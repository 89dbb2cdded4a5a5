// Package api exposes the engine over HTTP: stream control, the paper
// trading surface, bot control, historical and indicator pass-throughs,
// and a WebSocket push channel for ticks and closed candles.
//
// Responses carry a uniform {status, message, ...} shape. Engine
// rejections surface the rule that fired with a 4xx class; upstream
// faults map to 5xx.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"smart-algo-trade/internal/bot"
	"smart-algo-trade/internal/candles"
	"smart-algo-trade/internal/history"
	"smart-algo-trade/internal/instruments"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/paper"
	"smart-algo-trade/internal/tickhub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// setCORS sets CORS headers for REST endpoints.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Deps are the engine components the API serves. Fields left nil disable
// their endpoints with a 503.
type Deps struct {
	Manager *paper.Manager
	Bot     *bot.Bot
	Ticks   *tickhub.Hub
	Builder *candles.Builder
	Fetcher *history.Fetcher
	Oracle   model.PriceOracle
	Resolve  bot.InstrumentResolver
	Registry *instruments.Registry
}

// Server is the HTTP boundary of the engine.
type Server struct {
	deps    Deps
	ws      *WSHub
	addr    string
	srv     *http.Server
	started time.Time
}

// NewServer builds the server and registers all routes.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		deps:    deps,
		ws:      NewWSHub(),
		addr:    addr,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Hub returns the WebSocket fan-out hub so the process wiring can feed it
// ticks and closed candles.
func (s *Server) Hub() *WSHub { return s.ws }

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[api] ws upgrade error: %v", err)
			return
		}
		s.ws.HandleConn(conn)
	})

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/market/status", s.handleMarketStatus)

	mux.HandleFunc("/api/stream/subscribe", s.post(s.handleStreamSubscribe))
	mux.HandleFunc("/api/stream/unsubscribe", s.post(s.handleStreamUnsubscribe))
	mux.HandleFunc("/api/stream/status", s.handleStreamStatus)
	mux.HandleFunc("/api/ltp", s.handleLTP)

	mux.HandleFunc("/api/paper/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/paper/funds", s.handleFunds)
	mux.HandleFunc("/api/paper/orders", s.handleOrders)
	mux.HandleFunc("/api/paper/positions", s.handlePositions)
	mux.HandleFunc("/api/paper/trades", s.handleTrades)
	mux.HandleFunc("/api/paper/stats", s.handleStats)
	mux.HandleFunc("/api/paper/order", s.post(s.handlePlaceOrder))
	mux.HandleFunc("/api/paper/order/modify", s.post(s.handleModifyOrder))
	mux.HandleFunc("/api/paper/order/cancel", s.post(s.handleCancelOrder))
	mux.HandleFunc("/api/paper/reset", s.post(s.handleReset))

	mux.HandleFunc("/api/bot/start", s.post(s.handleBotStart))
	mux.HandleFunc("/api/bot/stop", s.post(s.handleBotStop))
	mux.HandleFunc("/api/bot/pause", s.post(s.handleBotPause))
	mux.HandleFunc("/api/bot/resume", s.post(s.handleBotResume))
	mux.HandleFunc("/api/bot/status", s.handleBotStatus)
	mux.HandleFunc("/api/bot/positions", s.handleBotPositions)
	mux.HandleFunc("/api/bot/strategies", s.handleBotStrategies)

	mux.HandleFunc("/api/instruments/search", s.handleInstrumentSearch)
	mux.HandleFunc("/api/candles/live", s.handleLiveCandles)
	mux.HandleFunc("/api/historical", s.handleHistorical)
	mux.HandleFunc("/api/indicators", s.handleIndicators)
}

// post wraps a handler so it only answers POST (and CORS preflight).
func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[api] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server and disconnects WS clients.
func (s *Server) Stop(ctx context.Context) {
	s.ws.Close()
	s.srv.Shutdown(ctx)
}

const defaultUser = "default"

// userFrom reads the paper-account user from the query string.
func userFrom(r *http.Request) string {
	if user := r.URL.Query().Get("user"); user != "" {
		return user
	}
	return defaultUser
}

// engine resolves the paper engine for the request's user.
func (s *Server) engine(r *http.Request) (*paper.Engine, error) {
	return s.deps.Manager.Engine(userFrom(r))
}

func writeJSON(w http.ResponseWriter, code int, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]interface{}{
		"status":  "error",
		"message": message,
	})
}

// writeEngineError maps engine rejections onto HTTP classes and surfaces
// the rule that fired.
func writeEngineError(w http.ResponseWriter, err error) {
	var re *paper.RejectError
	if !errors.As(err, &re) {
		var ce *history.ChunkError
		if errors.As(err, &ce) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	code := http.StatusBadRequest
	switch re.Kind {
	case paper.KindNotFound:
		code = http.StatusNotFound
	case paper.KindSafetyGuard:
		code = http.StatusForbidden
	case paper.KindUpstream:
		code = http.StatusBadGateway
	}

	payload := map[string]interface{}{
		"status":  "error",
		"message": re.Message,
		"kind":    string(re.Kind),
	}
	if re.Rule != "" {
		payload["rule"] = re.Rule
	}
	writeJSON(w, code, payload)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
