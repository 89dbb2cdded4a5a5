// Package instruments maintains the tradable-instrument catalog: an
// in-memory index over the upstream instruments master, refreshed daily
// and mirrored to disk so symbol resolution survives upstream outages.
package instruments

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"smart-algo-trade/internal/model"
)

const cacheTTL = 24 * time.Hour

// Source downloads the instruments master for one exchange.
type Source interface {
	Instruments(ctx context.Context, exchange string) ([]model.Instrument, error)
}

// Registry resolves "EXCHANGE:SYMBOL" to instruments.
type Registry struct {
	src      Source
	cacheDir string

	mu       sync.RWMutex
	byKey    map[string]model.Instrument // "EXCHANGE:SYMBOL"
	byExch   map[string][]model.Instrument
	loadedAt map[string]time.Time
}

func New(src Source, cacheDir string) *Registry {
	return &Registry{
		src:      src,
		cacheDir: cacheDir,
		byKey:    make(map[string]model.Instrument),
		byExch:   make(map[string][]model.Instrument),
		loadedAt: make(map[string]time.Time),
	}
}

// Ensure loads the catalog for an exchange if it is missing or older than a
// day. When the upstream fetch fails it falls back to the disk mirror.
func (r *Registry) Ensure(ctx context.Context, exchange string) error {
	exchange = strings.ToUpper(exchange)

	r.mu.RLock()
	at, ok := r.loadedAt[exchange]
	r.mu.RUnlock()
	if ok && time.Since(at) < cacheTTL {
		return nil
	}

	list, err := r.src.Instruments(ctx, exchange)
	if err != nil {
		cached, cerr := r.loadCacheFile(exchange)
		if cerr != nil {
			return fmt.Errorf("instruments: fetch %s failed (%v) and no cache: %w", exchange, err, cerr)
		}
		log.Printf("[instruments] upstream fetch for %s failed (%v), using disk cache (%d instruments)",
			exchange, err, len(cached))
		r.index(exchange, cached)
		return nil
	}

	r.index(exchange, list)
	r.saveCacheFile(exchange, list)
	log.Printf("[instruments] loaded %d instruments for %s", len(list), exchange)
	return nil
}

func (r *Registry) index(exchange string, list []model.Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Drop the previous generation for this exchange before re-indexing.
	for key, inst := range r.byKey {
		if inst.Exchange == exchange {
			delete(r.byKey, key)
		}
	}
	for _, inst := range list {
		r.byKey[inst.Key()] = inst
	}
	r.byExch[exchange] = list
	r.loadedAt[exchange] = time.Now()
}

// Resolve looks up one instrument. It never hits the network; call Ensure
// for the exchange first.
func (r *Registry) Resolve(exchange, symbol string) (model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byKey[strings.ToUpper(exchange)+":"+strings.ToUpper(symbol)]
	return inst, ok
}

// Count reports how many instruments are indexed for an exchange.
func (r *Registry) Count(exchange string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byExch[strings.ToUpper(exchange)])
}

// Search returns up to limit instruments matching the query, exact symbol
// matches first, then symbol prefixes, then substring hits on symbol or name.
func (r *Registry) Search(query, exchange string, limit int) []model.Instrument {
	query = strings.ToUpper(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return nil
	}
	exchange = strings.ToUpper(exchange)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var pool []model.Instrument
	if exchange == "" || exchange == "ALL" {
		for _, list := range r.byExch {
			pool = append(pool, list...)
		}
	} else {
		pool = r.byExch[exchange]
	}

	type scored struct {
		inst model.Instrument
		rank int
	}
	var hits []scored
	for _, inst := range pool {
		sym := strings.ToUpper(inst.Symbol)
		name := strings.ToUpper(inst.Name)
		switch {
		case sym == query:
			hits = append(hits, scored{inst, 0})
		case strings.HasPrefix(sym, query):
			hits = append(hits, scored{inst, 1})
		case strings.Contains(sym, query) || strings.Contains(name, query):
			hits = append(hits, scored{inst, 2})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].inst.Symbol < hits[j].inst.Symbol
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]model.Instrument, len(hits))
	for i, h := range hits {
		out[i] = h.inst
	}
	return out
}

type cacheFile struct {
	Exchange    string             `json:"exchange"`
	FetchedAt   time.Time          `json:"fetched_at"`
	Instruments []model.Instrument `json:"instruments"`
}

func (r *Registry) cachePath(exchange string) string {
	return filepath.Join(r.cacheDir, "instruments_"+strings.ToLower(exchange)+".json")
}

func (r *Registry) saveCacheFile(exchange string, list []model.Instrument) {
	if r.cacheDir == "" {
		return
	}
	data, err := json.Marshal(cacheFile{
		Exchange:    exchange,
		FetchedAt:   time.Now(),
		Instruments: list,
	})
	if err != nil {
		return
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return
	}
	if err := os.WriteFile(r.cachePath(exchange), data, 0o644); err != nil {
		log.Printf("[instruments] cache write for %s failed: %v", exchange, err)
	}
}

func (r *Registry) loadCacheFile(exchange string) ([]model.Instrument, error) {
	if r.cacheDir == "" {
		return nil, fmt.Errorf("no cache directory configured")
	}
	data, err := os.ReadFile(r.cachePath(exchange))
	if err != nil {
		return nil, err
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	if len(cf.Instruments) == 0 {
		return nil, fmt.Errorf("cache file for %s is empty", exchange)
	}
	return cf.Instruments, nil
}
