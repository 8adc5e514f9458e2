package mock

import (
	"sync"
	"testing"
	"time"
)

func TestMockClock_Now(t *testing.T) {
	fixed := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := NewMockClock(fixed)

	if !clock.Now().Equal(fixed) {
		t.Errorf("Expected time %v, got %v", fixed, clock.Now())
	}
	if !clock.Now().Equal(fixed) {
		t.Errorf("Expected time to remain stable at %v, got %v", fixed, clock.Now())
	}
}

func TestMockClock_ZeroTime(t *testing.T) {
	before := time.Now()
	clock := NewMockClock(time.Time{})
	after := time.Now()

	if clock.Now().Before(before) || clock.Now().After(after) {
		t.Errorf("Expected zero-initialized clock to start near now, got %v", clock.Now())
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(time.Hour)
	clock.Advance(30 * time.Minute)

	if want := start.Add(90 * time.Minute); !clock.Now().Equal(want) {
		t.Errorf("Expected %v after advance, got %v", want, clock.Now())
	}
}

func TestMockClock_AdvanceDays(t *testing.T) {
	// Crosses a month boundary.
	clock := NewMockClock(time.Date(2024, 1, 30, 8, 0, 0, 0, time.UTC))
	clock.AdvanceDays(5)

	if want := time.Date(2024, 2, 4, 8, 0, 0, 0, time.UTC); !clock.Now().Equal(want) {
		t.Errorf("Expected %v, got %v", want, clock.Now())
	}
}

func TestMockClock_Set(t *testing.T) {
	clock := NewMockClock(time.Time{})
	want := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	clock.Set(want)

	if !clock.Now().Equal(want) {
		t.Errorf("Expected %v after Set, got %v", want, clock.Now())
	}
}

func TestMockClock_AsNowFunc(t *testing.T) {
	clock := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var now func() time.Time = clock.Now

	clock.Advance(time.Minute)
	if !now().Equal(clock.Now()) {
		t.Errorf("Expected method value to follow the clock")
	}
}

func TestMockClock_Concurrent(t *testing.T) {
	clock := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = clock.Now()
		}()
	}
	wg.Wait()

	if want := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC); !clock.Now().Equal(want) {
		t.Errorf("Expected %v, got %v", want, clock.Now())
	}
}
