package circuit

import (
	"sort"
	"sync"

	"advisor/pkg/logx"
)

// HealthSnapshot reports one breaker's state and counters.
type HealthSnapshot struct {
	State   string  `json:"state"`
	Healthy bool    `json:"healthy"`
	Metrics Metrics `json:"metrics"`
}

// Manager is a named registry of circuit breakers, one per backend.
type Manager struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]Breaker
	logger   *logx.Logger
}

// NewManager creates a breaker registry using config for new breakers.
func NewManager(config Config) *Manager {
	return &Manager{
		config:   config,
		breakers: make(map[string]Breaker),
		logger:   logx.NewLogger("circuit"),
	}
}

// Get returns the breaker for a backend, creating it on first use.
func (m *Manager) Get(name string) Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, exists := m.breakers[name]; exists {
		return b
	}
	b := New(name, m.config)
	m.breakers[name] = b
	m.logger.Debug("created breaker for backend %s", name)
	return b
}

// Lookup returns the breaker for a backend without creating one.
func (m *Manager) Lookup(name string) (Breaker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, exists := m.breakers[name]
	return b, exists
}

// Names returns the registered backend names in sorted order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns an aggregate health view across all breakers.
func (m *Manager) Snapshot() map[string]HealthSnapshot {
	m.mu.Lock()
	breakers := make(map[string]Breaker, len(m.breakers))
	for name, b := range m.breakers {
		breakers[name] = b
	}
	m.mu.Unlock()

	// Per-breaker locks are taken outside the registry lock
	snapshot := make(map[string]HealthSnapshot, len(breakers))
	for name, b := range breakers {
		state := b.GetState()
		snapshot[name] = HealthSnapshot{
			State:   state.String(),
			Healthy: state != Open,
			Metrics: b.GetMetrics(),
		}
	}
	return snapshot
}

// ResetAll resets every registered breaker to closed.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	breakers := make([]Breaker, 0, len(m.breakers))
	for _, b := range m.breakers {
		breakers = append(breakers, b)
	}
	m.mu.Unlock()

	for _, b := range breakers {
		b.Reset()
	}
	m.logger.Info("reset %d circuit breakers", len(breakers))
}
