// Package history fetches historical candles over arbitrary windows by
// walking the upstream's per-request day limits in chunks.
package history

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"smart-algo-trade/internal/model"
)

// chunkDays is the maximum window, in days, the upstream accepts per
// historical request for each interval.
var chunkDays = map[string]int{
	"minute":   60,
	"3minute":  60,
	"5minute":  60,
	"15minute": 100,
	"30minute": 100,
	"60minute": 200,
	"day":      2000,
}

// intervalMinutes maps upstream interval names to candle minutes; "day" is
// stored as 1440.
var intervalMinutes = map[string]int{
	"minute":   1,
	"3minute":  3,
	"5minute":  5,
	"15minute": 15,
	"30minute": 30,
	"60minute": 60,
	"day":      1440,
}

// ChunkError reports the exact failed window so a caller can retry or narrow
// it. Candles fetched before the failed chunk are discarded: a partial series
// with a hole would silently corrupt every indicator built on top of it.
type ChunkError struct {
	From, To time.Time
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("history chunk %s..%s: %v",
		e.From.Format("2006-01-02"), e.To.Format("2006-01-02"), e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Fetcher pulls multi-chunk candle series from a HistoricalSource.
type Fetcher struct {
	src model.HistoricalSource
}

func New(src model.HistoricalSource) *Fetcher {
	return &Fetcher{src: src}
}

// Fetch returns all candles for [from, to], splitting the window into chunks
// the upstream accepts. Results are sorted by start time with duplicates at
// chunk seams removed (first occurrence wins).
func (f *Fetcher) Fetch(ctx context.Context, token uint32, interval string, from, to time.Time) ([]model.Candle, error) {
	days, ok := chunkDays[interval]
	if !ok {
		return nil, fmt.Errorf("history: unknown interval %q", interval)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("history: from %v not before to %v", from, to)
	}

	chunk := time.Duration(days) * 24 * time.Hour
	var all []model.Candle
	seen := make(map[int64]struct{})

	for start := from; start.Before(to); {
		end := start.Add(chunk)
		if end.After(to) {
			end = to
		}

		candles, err := f.src.Candles(ctx, token, interval, start, end)
		if err != nil {
			return nil, &ChunkError{From: start, To: end, Err: err}
		}

		for _, c := range candles {
			k := c.Start.Unix()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			c.Token = token
			c.Interval = intervalMinutes[interval]
			c.Closed = true
			all = append(all, c)
		}

		start = end
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })

	log.Printf("[history] token=%d interval=%s window=%s..%s candles=%d",
		token, interval, from.Format("2006-01-02"), to.Format("2006-01-02"), len(all))
	return all, nil
}

// FetchDaysBack fetches the trailing n days of candles ending now.
func (f *Fetcher) FetchDaysBack(ctx context.Context, token uint32, interval string, days int) ([]model.Candle, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -days)
	return f.Fetch(ctx, token, interval, from, to)
}
