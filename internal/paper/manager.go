package paper

import (
	"sync"

	"smart-algo-trade/internal/model"
)

// StoreFactory opens an isolated EngineStore for one user.
type StoreFactory func(userID string) (model.EngineStore, error)

// Manager routes paper-trading operations to per-user engines, creating each
// engine lazily on first use. Single-user deployments use the "default" user.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	oracle  model.PriceOracle
	stores  StoreFactory
	engines map[string]*Engine
}

// DefaultUser is the account used when no user id is supplied.
const DefaultUser = "default"

func NewManager(cfg Config, stores StoreFactory, oracle model.PriceOracle) *Manager {
	return &Manager{
		cfg:     cfg,
		oracle:  oracle,
		stores:  stores,
		engines: make(map[string]*Engine),
	}
}

// Engine returns the engine for userID, creating and hydrating it if needed.
func (m *Manager) Engine(userID string) (*Engine, error) {
	if userID == "" {
		userID = DefaultUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.engines[userID]; ok {
		return e, nil
	}
	store, err := m.stores(userID)
	if err != nil {
		return nil, err
	}
	e, err := NewEngine(m.cfg, store, m.oracle)
	if err != nil {
		store.Close()
		return nil, err
	}
	m.engines[userID] = e
	return e, nil
}

// UpdateLTP broadcasts a price to every active engine.
func (m *Manager) UpdateLTP(symbol, exchange string, price int64) {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	for _, e := range engines {
		e.UpdateLTP(symbol, exchange, price)
	}
}

// Users lists the user ids with an active engine.
func (m *Manager) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.engines))
	for id := range m.engines {
		out = append(out, id)
	}
	return out
}
