package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	result := c.Now()
	after := time.Now()

	assert.False(t, result.Before(before))
	assert.False(t, result.After(after))
}

func TestRealClock_NowUnixMilli(t *testing.T) {
	c := RealClock{}
	before := time.Now().UnixMilli()
	result := c.NowUnixMilli()
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, result, before)
	assert.LessOrEqual(t, result, after)
}

func TestMockClock(t *testing.T) {
	fixed := time.Date(2025, 12, 4, 14, 30, 0, 0, time.UTC)
	c := NewMockClock(fixed)

	assert.Equal(t, fixed, c.Now())
	assert.Equal(t, fixed.UnixMilli(), c.NowUnixMilli())

	c.Advance(90 * time.Second)
	assert.Equal(t, fixed.Add(90*time.Second), c.Now())

	c.Advance(-30 * time.Second)
	assert.Equal(t, fixed.Add(time.Minute), c.Now())

	later := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestMockClock_ConcurrentAccess(t *testing.T) {
	c := NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 50, 0, time.UTC), c.Now())
}

func TestInLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	base := NewMockClock(time.Date(2025, 12, 4, 5, 0, 0, 0, time.UTC))

	c := InLocation{Clock: base, Location: seoul}
	assert.Equal(t, 14, c.Now().Hour())
	assert.Equal(t, base.NowUnixMilli(), c.NowUnixMilli())

	plain := InLocation{Clock: base}
	assert.Equal(t, 5, plain.Now().Hour())
}
