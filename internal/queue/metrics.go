package queue

import (
	"sort"
	"sync"
	"time"
)

// ActionMetrics are the counters of one action name.
type ActionMetrics struct {
	Action        string
	Attempts      int64
	Successes     int64
	Failures      int64
	LastRunAt     time.Time
	LastSuccessAt time.Time
	LastFailureAt time.Time
}

// Metrics tracks dispatched actions per action name.
type Metrics struct {
	mu      sync.RWMutex
	actions map[string]*ActionMetrics
}

// NewMetrics creates empty metrics.
func NewMetrics() *Metrics {
	return &Metrics{actions: make(map[string]*ActionMetrics)}
}

func (m *Metrics) getOrCreate(action string) *ActionMetrics {
	if am, ok := m.actions[action]; ok {
		return am
	}
	am := &ActionMetrics{Action: action}
	m.actions[action] = am
	return am
}

func (m *Metrics) recordStart(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	am := m.getOrCreate(action)
	am.Attempts++
	am.LastRunAt = time.Now()
}

func (m *Metrics) recordSuccess(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	am := m.getOrCreate(action)
	am.Successes++
	am.LastSuccessAt = time.Now()
}

func (m *Metrics) recordFailure(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	am := m.getOrCreate(action)
	am.Failures++
	am.LastFailureAt = time.Now()
}

// Get returns a copy of the counters of one action.
func (m *Metrics) Get(action string) (ActionMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	am, ok := m.actions[action]
	if !ok {
		return ActionMetrics{}, false
	}
	return *am, true
}

// Snapshot returns copies of all counters sorted by action name.
func (m *Metrics) Snapshot() []ActionMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ActionMetrics, 0, len(m.actions))
	for _, am := range m.actions {
		out = append(out, *am)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}
