package mock

import (
	"sync"
	"time"
)

// MockClock is a controllable wall clock. Its Now method matches the
// func() time.Time hooks taken by the backup scheduler and the orchestrator,
// so tests can move time past a save interval or an expiration date.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMockClock returns a clock stopped at t, or at the current time when t is
// zero.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Now()
	}
	return &MockClock{current: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// AdvanceDays moves the clock forward by whole calendar days, the unit save
// expirations are expressed in.
func (m *MockClock) AdvanceDays(days int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.AddDate(0, 0, days)
}

// Set stops the clock at t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}
