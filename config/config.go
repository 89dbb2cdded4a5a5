package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment
// variables. Monetary limits are given in rupees in the environment and
// converted to paise here.
type Config struct {
	// Zerodha Kite credentials
	KiteAPIKey     string
	KiteAPISecret  string
	KiteTOTPSecret string
	SessionFile    string

	// Trading mode. The paper engine refuses to run when this is false.
	PaperTrading bool

	// Risk limits
	InitialCapital  int64 // paise
	FallbackPrice   int64 // paise
	MaxLossPerDay   int64 // paise
	MaxPositions    int
	MaxTradesPerDay int
	RiskPerTrade    float64

	// Bot defaults
	DefaultProduct   string
	DefaultStrategy  string
	CandleInterval   string
	HistoryDays      int
	SquareOffHour    int
	SquareOffMinute  int
	BotLoopInterval  time.Duration
	DefaultExchange  string
	SubscribeSymbols []string

	// Alerts
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	APIAddr       string
	MetricsAddr   string
}

// Load reads configuration from the environment (and an optional .env file)
// with sensible defaults. Credentials are required only when paper trading
// is driven by the live upstream.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env file")
	}

	return &Config{
		KiteAPIKey:     getEnv("KITE_API_KEY", ""),
		KiteAPISecret:  getEnv("KITE_API_SECRET", ""),
		KiteTOTPSecret: getEnv("KITE_TOTP_SECRET", ""),
		SessionFile:    getEnv("KITE_SESSION_FILE", "data/kite_session.json"),

		PaperTrading: getBool("PAPER_TRADING", true),

		InitialCapital:  getRupees("DEFAULT_CAPITAL", 100_000),
		FallbackPrice:   getRupees("FALLBACK_PRICE", 100),
		MaxLossPerDay:   getRupees("MAX_LOSS_PER_DAY", 5_000),
		MaxPositions:    getInt("MAX_POSITIONS", 5),
		MaxTradesPerDay: getInt("MAX_TRADES_PER_DAY", 20),
		RiskPerTrade:    getFloat("RISK_PER_TRADE", 0.02),

		DefaultProduct:   getEnv("DEFAULT_PRODUCT", "MIS"),
		DefaultStrategy:  getEnv("DEFAULT_STRATEGY", "sma_crossover"),
		CandleInterval:   getEnv("CANDLE_INTERVAL", "5minute"),
		HistoryDays:      getInt("HISTORY_DAYS", 5),
		SquareOffHour:    getInt("AUTO_SQUARE_OFF_HOUR", 15),
		SquareOffMinute:  getInt("AUTO_SQUARE_OFF_MINUTE", 15),
		BotLoopInterval:  getDuration("BOT_LOOP_INTERVAL", 60*time.Second),
		DefaultExchange:  getEnv("DEFAULT_EXCHANGE", "NSE"),
		SubscribeSymbols: splitList(getEnv("SUBSCRIBE_SYMBOLS", "")),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/engine.db"),
		APIAddr:       getEnv("API_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
	}
}

// RequireCredentials exits the process when the Kite credentials needed for
// live market data are missing.
func (c *Config) RequireCredentials() {
	if c.KiteAPIKey == "" || c.KiteAPISecret == "" {
		log.Fatal("[config] KITE_API_KEY and KITE_API_SECRET must be set")
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

// getRupees reads a rupee amount from the environment and returns paise.
func getRupees(key string, fallbackRupees float64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return int64(fallbackRupees * 100)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallbackRupees)
		return int64(fallbackRupees * 100)
	}
	return int64(f * 100)
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
