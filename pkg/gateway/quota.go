package gateway

import "sync"

// QuotaStore is the persistence seam beneath QuotaManager. It is
// interchangeable without changing the manager's reserve/rollback/check
// contract — only durability is delegated to it.
type QuotaStore interface {
	// Load returns the persisted provider -> used_units map. A missing or
	// malformed store must return an empty map and a nil error, never fail
	// startup.
	Load() (map[string]int, error)

	// Save persists the full counter map. Implementations that can fail
	// (network backends) should make failures non-fatal to the caller.
	Save(counters map[string]int) error
}

// QuotaManager tracks monthly usage counters with atomic reserve/rollback,
// persisting every mutation through a QuotaStore. A single mutex serializes
// mutation and the store write; Check is read-only but observes the same
// map under the same lock.
type QuotaManager struct {
	mu      sync.Mutex
	used    map[string]int
	store   QuotaStore
	logger  Logger
	metrics Metrics
}

// NewQuotaManager constructs a manager backed by store, loading any
// previously persisted counters. A nil store behaves as pure in-memory
// accounting with no durability.
func NewQuotaManager(store QuotaStore, logger Logger, metrics Metrics) *QuotaManager {
	if logger == nil {
		logger = NoopLogger{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	m := &QuotaManager{
		used:    make(map[string]int),
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
	if store != nil {
		if loaded, err := store.Load(); err != nil {
			logger.Warn("quota: failed to load persisted counters, starting empty",
				Field{"error", err.Error()})
		} else {
			for k, v := range loaded {
				m.used[k] = v
			}
		}
	}
	return m
}

// Check reports whether cost more units would still fit under limit for
// provider, without mutating anything. limit <= 0 means unlimited.
func (m *QuotaManager) Check(provider string, limit, cost int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked(provider, limit, cost)
}

func (m *QuotaManager) checkLocked(provider string, limit, cost int) bool {
	if limit <= 0 {
		return true
	}
	return m.used[providerKey(provider)]+cost <= limit
}

// TryReserve atomically increments provider's usage by cost iff Check would
// succeed, persisting the result. It returns false and mutates nothing
// otherwise.
func (m *QuotaManager) TryReserve(provider string, cost, limit int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.checkLocked(provider, limit, cost) {
		m.metrics.RecordReservation(provider, cost, false)
		return false
	}

	key := providerKey(provider)
	m.used[key] += cost
	m.persistLocked()
	m.metrics.RecordReservation(provider, cost, true)
	return true
}

// Rollback decrements provider's usage by cost, clamped at zero, and
// persists the result.
func (m *QuotaManager) Rollback(provider string, cost int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := providerKey(provider)
	m.used[key] -= cost
	if m.used[key] < 0 {
		m.used[key] = 0
	}
	m.persistLocked()
	m.metrics.RecordRollback(provider, cost)
}

// Usage returns the current usage for provider.
func (m *QuotaManager) Usage(provider string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[providerKey(provider)]
}

// Reset zeroes provider's usage. It is the only rollover mechanism; monthly
// counters never expire automatically.
func (m *QuotaManager) Reset(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.used, providerKey(provider))
	m.persistLocked()
}

// persistLocked must be called with mu held. A persistence failure is
// logged and never propagated: callers must still honor the in-memory
// state.
func (m *QuotaManager) persistLocked() {
	if m.store == nil {
		return
	}
	snapshot := make(map[string]int, len(m.used))
	for k, v := range m.used {
		snapshot[k] = v
	}
	if err := m.store.Save(snapshot); err != nil {
		m.logger.Error("quota: failed to persist counters",
			Field{"error", err.Error()})
	}
}
