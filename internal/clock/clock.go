// Package clock abstracts the wall clock so ETA labels and timetable lookups
// can be tested against a fixed instant.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
}

// RealClock reads the system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// MockClock is a settable, goroutine-safe Clock for tests.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
}

// NewMockClock creates a MockClock frozen at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *MockClock) NowUnixMilli() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime.UnixMilli()
}

// Set moves the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the clock by d; negative values move it backwards.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// InLocation wraps a Clock so Now reports times in loc. Timetable lookups use
// it to compare against service-local departure times.
type InLocation struct {
	Clock    Clock
	Location *time.Location
}

func (c InLocation) Now() time.Time {
	now := c.Clock.Now()
	if c.Location == nil {
		return now
	}
	return now.In(c.Location)
}

func (c InLocation) NowUnixMilli() int64 {
	return c.Clock.NowUnixMilli()
}
