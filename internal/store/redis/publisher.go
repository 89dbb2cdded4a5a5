// Package redis pushes live engine output to downstream consumers over
// pubsub. Publishes are best-effort: a circuit breaker sheds them while the
// server is unreachable so the hot path never blocks on Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"smart-algo-trade/internal/model"
)

const (
	ltpHashKey    = "ltp"
	ltpHashTTL    = 30 * time.Minute
	breakerTrips  = 5
	breakerWindow = 10 * time.Second
)

// Config configures the publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher is a Redis-backed model.Publisher.
type Publisher struct {
	client  *goredis.Client
	breaker *Breaker
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// CircuitState exposes the breaker state for the metrics gauge.
func (p *Publisher) CircuitState() State { return p.breaker.State() }

// New connects and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	breaker := NewBreaker(breakerTrips, breakerWindow)
	breaker.OnTransition = func(from, to State) {
		log.Printf("[redis] circuit %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, breaker: breaker}, nil
}

// PublishTick publishes one tick on "tick:{EX}:{SYMBOL}" and refreshes the
// LTP hash entry.
func (p *Publisher) PublishTick(ctx context.Context, t model.Tick) {
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	key := t.Key()
	p.publish(ctx, "tick:"+key, payload, func(pipe goredis.Pipeliner) {
		pipe.HSet(ctx, ltpHashKey, key, t.LastPrice)
		pipe.Expire(ctx, ltpHashKey, ltpHashTTL)
	})
}

// PublishCandle publishes one closed candle on its interval channel.
func (p *Publisher) PublishCandle(ctx context.Context, c model.Candle) {
	p.publish(ctx, c.ChannelKey(), c.JSON(), nil)
}

// PublishPortfolio publishes a pre-marshalled portfolio snapshot on
// "portfolio:{user}".
func (p *Publisher) PublishPortfolio(ctx context.Context, user string, snapshot []byte) {
	p.publish(ctx, "portfolio:"+user, snapshot, nil)
}

func (p *Publisher) publish(ctx context.Context, channel string, payload []byte, extra func(goredis.Pipeliner)) {
	err := p.breaker.Do(func() error {
		pipe := p.client.Pipeline()
		pipe.Publish(ctx, channel, payload)
		if extra != nil {
			extra(pipe)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] publish %s: %v", channel, err)
	}
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
