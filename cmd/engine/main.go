package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"smart-algo-trade/config"
	"smart-algo-trade/internal/api"
	"smart-algo-trade/internal/bot"
	"smart-algo-trade/internal/candles"
	"smart-algo-trade/internal/history"
	"smart-algo-trade/internal/instruments"
	"smart-algo-trade/internal/logger"
	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/metrics"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/notification"
	"smart-algo-trade/internal/paper"
	redisstore "smart-algo-trade/internal/store/redis"
	sqlitestore "smart-algo-trade/internal/store/sqlite"
	"smart-algo-trade/internal/tickhub"
	"smart-algo-trade/pkg/kiteconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[engine] starting...")

	cfg := config.Load()
	logger.Init("engine", slog.LevelInfo)

	if !cfg.PaperTrading {
		// The live-order path is intentionally not implemented; refuse to
		// start rather than pretend.
		log.Fatal("[engine] PAPER_TRADING=false is not supported by this build")
	}

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Kite Connect client (REST: LTP, history, instruments) ----
	cfg.RequireCredentials()
	kite := kiteconnect.New(kiteconnect.Config{
		APIKey:      cfg.KiteAPIKey,
		APISecret:   cfg.KiteAPISecret,
		TOTPSecret:  cfg.KiteTOTPSecret,
		SessionFile: cfg.SessionFile,
	})
	if !kite.Authenticated() {
		if reqToken := os.Getenv("KITE_REQUEST_TOKEN"); reqToken != "" {
			if _, err := kite.GenerateSession(reqToken); err != nil {
				log.Fatalf("[engine] session exchange failed: %v", err)
			}
		} else {
			log.Printf("[engine] no valid session; complete login at %s and restart with KITE_REQUEST_TOKEN set", kite.LoginURL())
			log.Fatal("[engine] cannot stream without an access token")
		}
	}
	kite.SessionExpiryHook = func() {
		log.Println("[engine] access token expired; upstream calls will fail until re-login")
	}

	// ---- SQLite stores (one file per paper-trading user) ----
	os.MkdirAll("data", 0o755)
	var stores []*sqlitestore.Store
	factory := func(userID string) (model.EngineStore, error) {
		path := cfg.SQLitePath
		if userID != "default" {
			path = userPath(cfg.SQLitePath, userID)
		}
		st, err := sqlitestore.New(sqlitestore.Config{DBPath: path})
		if err != nil {
			return nil, err
		}
		stores = append(stores, st)
		return st, nil
	}

	// ---- Redis publisher (optional; engine runs without it) ----
	var publisher *redisstore.Publisher
	publisher, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("[engine] WARNING: redis init failed: %v (continuing without redis)", err)
		publisher = nil
	}

	// ---- Paper trading engines ----
	manager := paper.NewManager(paper.Config{
		PaperTrading:   cfg.PaperTrading,
		InitialCapital: cfg.InitialCapital,
		FallbackPrice:  cfg.FallbackPrice,
		Limits: paper.Limits{
			MaxLossPerDay:   cfg.MaxLossPerDay,
			MaxPositions:    cfg.MaxPositions,
			MaxTradesPerDay: cfg.MaxTradesPerDay,
		},
	}, factory, kite)

	engine, err := manager.Engine("default")
	if err != nil {
		log.Fatalf("[engine] paper engine init failed: %v", err)
	}
	log.Printf("[engine] paper engine ready, funds: available=%d reserved=%d",
		engine.Funds().Available, engine.Funds().Reserved)

	// ---- Instrument catalog ----
	registry := instruments.New(kite, "data")
	if err := registry.Ensure(ctx, cfg.DefaultExchange); err != nil {
		log.Printf("[engine] WARNING: instrument catalog load failed: %v", err)
	}
	resolve := bot.InstrumentResolver(registry.Resolve)

	// ---- Tick hub over the Kite ticker ----
	ticker := kiteconnect.NewTicker(kiteconnect.TickerConfig{
		APIKey:      cfg.KiteAPIKey,
		AccessToken: kite.AccessToken(),
	})
	hub := tickhub.New(ticker, 1024)
	hub.OnTick = prom.TicksTotal.Inc
	hub.OnDrop = func(idx int) {
		prom.DroppedTicks.WithLabelValues(strconv.Itoa(idx)).Inc()
	}
	hub.OnReconnect = func() {
		prom.WSReconnects.Inc()
		health.SetWSConnected(true)
	}
	hub.OnDisconnect = func() {
		health.SetWSConnected(false)
	}

	// ---- Candle builder ----
	builder := candles.New()
	builder.OnLateTick = prom.LateTicks.Inc
	for _, interval := range candles.Intervals {
		iv := interval
		builder.OnCandleClose(iv, func(token uint32, c model.Candle) {
			prom.CandlesClosed.WithLabelValues(strconv.Itoa(iv)).Inc()
			if publisher != nil {
				publisher.PublishCandle(ctx, c)
			}
		})
	}

	// ---- Alert dispatcher ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	dispatcher := notification.NewDispatcher(notification.NewMulti(backends...))

	// ---- History fetcher + bot ----
	fetcher := history.New(kite)
	trbot := bot.New(bot.Config{
		Exchange:        cfg.DefaultExchange,
		Product:         cfg.DefaultProduct,
		CandleInterval:  cfg.CandleInterval,
		HistoryDays:     cfg.HistoryDays,
		LoopInterval:    cfg.BotLoopInterval,
		SquareOffHour:   cfg.SquareOffHour,
		SquareOffMinute: cfg.SquareOffMinute,
		RiskPerTrade:    cfg.RiskPerTrade,
		MaxLossPerDay:   cfg.MaxLossPerDay,
		MaxTradesPerDay: cfg.MaxTradesPerDay,
		Notifier:        dispatcher,
	}, engine, hub, fetcher, kite, resolve)

	// ---- HTTP API ----
	apiSrv := api.NewServer(cfg.APIAddr, api.Deps{
		Manager:  manager,
		Bot:      trbot,
		Ticks:    hub,
		Builder:  builder,
		Fetcher:  fetcher,
		Oracle:   kite,
		Resolve:  resolve,
		Registry: registry,
	})
	wsHub := apiSrv.Hub()

	// WS hub also mirrors closed candles to dashboards.
	for _, interval := range candles.Intervals {
		builder.OnCandleClose(interval, func(token uint32, c model.Candle) {
			wsHub.PublishCandle(c)
		})
	}

	// ---- Tick fan-out (hot path) ----
	ticks := hub.SubscribeTick()
	go func() {
		for tick := range ticks {
			health.SetLastTickTime(tick.ReceivedAt)
			prom.TickAgeSeconds.Set(time.Since(tick.TS).Seconds())

			builder.ProcessTick(tick)
			manager.UpdateLTP(tick.Symbol, tick.Exchange, tick.LastPrice)
			wsHub.PublishTick(tick)
			if publisher != nil {
				publisher.PublishTick(ctx, tick)
			}
		}
	}()

	// ---- Stream lifecycle ----
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Printf("[engine] tick hub stopped: %v", err)
			health.SetWSConnected(false)
		}
	}()
	health.SetWSConnected(true)

	for _, sym := range cfg.SubscribeSymbols {
		inst, ok := registry.Resolve(cfg.DefaultExchange, sym)
		if !ok {
			log.Printf("[engine] WARNING: unknown subscribe symbol %s:%s", cfg.DefaultExchange, sym)
			continue
		}
		if err := hub.Subscribe(inst.Token, inst.Symbol, inst.Exchange, model.ModeFull); err != nil {
			log.Printf("[engine] subscribe %s failed: %v", inst.Key(), err)
		}
	}
	prom.Subscriptions.Set(float64(len(hub.Tokens())))

	// ---- Periodic liveness + state gauges ----
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), stores[0].DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, stores[0].DB(), 10*time.Second)
	}

	go func() {
		tickerC := time.NewTicker(30 * time.Second)
		defer tickerC.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tickerC.C:
				if markethours.IsMarketOpen(now) {
					prom.MarketState.Set(1)
				} else {
					prom.MarketState.Set(0)
				}
				state := trbot.State()
				health.SetBotState(string(state))
				prom.BotState.Set(botStateGauge(state))
				prom.Subscriptions.Set(float64(len(hub.Tokens())))

				if publisher != nil {
					prom.RedisCircuitState.Set(float64(publisher.CircuitState()))
					for _, user := range manager.Users() {
						eng, err := manager.Engine(user)
						if err != nil {
							continue
						}
						snap, err := json.Marshal(eng.Portfolio())
						if err != nil {
							continue
						}
						publisher.PublishPortfolio(ctx, user, snap)
					}
				}
			}
		}
	}()

	apiSrv.Start()
	log.Printf("[engine] ready: api=%s metrics=%s market=%s",
		cfg.APIAddr, cfg.MetricsAddr, markethours.StatusAt(time.Now()))

	// ---- Wait for shutdown signal ----
	sig := <-sigCh
	log.Printf("[engine] received %v, shutting down...", sig)

	if st := trbot.State(); st == bot.StateRunning || st == bot.StatePaused {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := trbot.Stop(stopCtx, false); err != nil {
			log.Printf("[engine] bot stop: %v", err)
		}
		stopCancel()
	}

	cancel()
	builder.Flush()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	apiSrv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if publisher != nil {
		publisher.Close()
	}
	for _, st := range stores {
		st.Close()
	}
	dispatcher.Close()
	log.Println("[engine] shutdown complete")
}

func botStateGauge(s bot.State) float64 {
	switch s {
	case bot.StateRunning:
		return 1
	case bot.StatePaused:
		return 2
	case bot.StateError:
		return 3
	default:
		return 0
	}
}

// userPath derives a per-user database path from the configured one:
// "data/engine.db" + "alice" -> "data/engine_alice.db".
func userPath(base, userID string) string {
	if i := len(base) - len(".db"); i > 0 && base[i:] == ".db" {
		return base[:i] + "_" + userID + ".db"
	}
	return base + "_" + userID
}
