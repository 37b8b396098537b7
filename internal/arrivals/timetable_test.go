package arrivals

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dreaming-Lion/Re-Route/internal/clock"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// fakeSchedule serves departures per service date (YYYYMMDD).
type fakeSchedule struct {
	mu     sync.Mutex
	byDate map[string][]models.ScheduledDeparture
	errs   map[string]error
	dates  []string
}

func (f *fakeSchedule) DeparturesAt(_ context.Context, _ string, serviceDate time.Time) ([]models.ScheduledDeparture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := serviceDate.Format("20060102")
	f.dates = append(f.dates, day)
	if err := f.errs[day]; err != nil {
		return nil, err
	}
	return f.byDate[day], nil
}

func hms(h, m, s int) int { return h*3600 + m*60 + s }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func TestTimetableArrivals(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	mc := clock.NewMockClock(time.Date(2026, 3, 2, 8, 0, 30, 0, kst))
	weekday := []models.ScheduledDeparture{
		{RouteID: "R710", RouteLabel: "710", SecondsOfDay: hms(8, 5, 0)},
		{RouteID: "R710", RouteLabel: "710", SecondsOfDay: hms(8, 5, 0)},
		{RouteID: "R710", RouteLabel: "710", SecondsOfDay: hms(8, 20, 0)},
		{RouteID: "R710", RouteLabel: "710", SecondsOfDay: hms(9, 0, 0)},
		{RouteID: "R100", RouteLabel: "100", SecondsOfDay: hms(7, 59, 0)},
		{RouteID: "R100", RouteLabel: "100", SecondsOfDay: hms(8, 0, 30)},
	}
	src := &fakeSchedule{byDate: map[string][]models.ScheduledDeparture{
		"20260302": weekday,
		"20260303": weekday,
	}}
	tt := NewTimetable(src, mc, 2, quiet(), nil)

	preds := tt.Arrivals(context.Background(), "S1")

	assert.Equal(t, []models.ArrivalPrediction{
		{RouteID: "R100", RouteLabel: "100", ETAMinutes: 0, StopsRemaining: -1},
		{RouteID: "R710", RouteLabel: "710", ETAMinutes: 5, StopsRemaining: -1},
		{RouteID: "R710", RouteLabel: "710", ETAMinutes: 20, StopsRemaining: -1},
		// 07:59 already left today; tomorrow's 07:59 is next
		{RouteID: "R100", RouteLabel: "100", ETAMinutes: 1439, StopsRemaining: -1},
	}, preds)
	assert.ElementsMatch(t, []string{"20260301", "20260302", "20260303"}, src.dates)
}

func TestTimetableServiceDays(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		byDate   map[string][]models.ScheduledDeparture
		expected []int
	}{
		{
			name: "yesterday's trip running past midnight",
			now:  time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC),
			byDate: map[string][]models.ScheduledDeparture{
				"20260301": {{RouteID: "N1", SecondsOfDay: hms(24, 40, 0)}},
			},
			expected: []int{10},
		},
		{
			name: "today's trip past midnight is tomorrow morning",
			now:  time.Date(2026, 3, 2, 23, 50, 0, 0, time.UTC),
			byDate: map[string][]models.ScheduledDeparture{
				"20260302": {{RouteID: "N1", SecondsOfDay: hms(24, 10, 0)}},
			},
			expected: []int{20},
		},
		{
			name: "tomorrow only runs if its calendar has service",
			now:  time.Date(2026, 3, 6, 23, 0, 0, 0, time.UTC),
			byDate: map[string][]models.ScheduledDeparture{
				"20260306": {{RouteID: "W1", SecondsOfDay: hms(6, 0, 0)}},
			},
			expected: nil,
		},
		{
			name: "departures a full day away are excluded",
			now:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
			byDate: map[string][]models.ScheduledDeparture{
				"20260303": {{RouteID: "R1", SecondsOfDay: hms(8, 0, 0)}, {RouteID: "R1", SecondsOfDay: hms(7, 0, 0)}},
			},
			expected: []int{1380},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSchedule{byDate: tt.byDate}
			preds := NewTimetable(src, clock.NewMockClock(tt.now), 3, quiet(), nil).Arrivals(context.Background(), "S1")

			var etas []int
			for _, p := range preds {
				etas = append(etas, p.ETAMinutes)
				assert.Equal(t, p.RouteID, p.RouteLabel, "label falls back to the route id")
			}
			assert.Equal(t, tt.expected, etas)
		})
	}
}

func TestTimetableFailureIsNoData(t *testing.T) {
	src := &fakeSchedule{errs: map[string]error{}}
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for _, d := range []string{"20260301", "20260302", "20260303"} {
		src.errs[d] = errors.New("no such table")
	}
	preds := NewTimetable(src, clock.NewMockClock(now), 3, quiet(), nil).Arrivals(context.Background(), "S1")
	assert.Empty(t, preds)
}

func TestTimetablePartialFailureKeepsOtherDays(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	src := &fakeSchedule{
		byDate: map[string][]models.ScheduledDeparture{
			"20260302": {{RouteID: "R1", RouteLabel: "1", SecondsOfDay: hms(8, 10, 0)}},
		},
		errs: map[string]error{"20260301": errors.New("locked")},
	}
	preds := NewTimetable(src, clock.NewMockClock(now), 3, quiet(), nil).Arrivals(context.Background(), "S1")
	require.Len(t, preds, 1)
	assert.Equal(t, 10, preds[0].ETAMinutes)
}

type fixedProvider struct {
	preds []models.ArrivalPrediction
	delay time.Duration
	calls *atomic.Int32
}

func (f fixedProvider) Arrivals(context.Context, string) []models.ArrivalPrediction {
	if f.calls != nil {
		f.calls.Add(1)
	}
	time.Sleep(f.delay)
	return f.preds
}

func TestMergedConcatenatesAndSorts(t *testing.T) {
	var calls atomic.Int32
	live := fixedProvider{calls: &calls, delay: 200 * time.Millisecond, preds: []models.ArrivalPrediction{
		{RouteID: "R1", RouteLabel: "1", ETAMinutes: 9, StopsRemaining: 4},
	}}
	table := fixedProvider{calls: &calls, delay: 200 * time.Millisecond, preds: []models.ArrivalPrediction{
		{RouteID: "R2", RouteLabel: "2", ETAMinutes: 3, StopsRemaining: -1},
		{RouteID: "R1", RouteLabel: "1", ETAMinutes: 12, StopsRemaining: -1},
	}}

	start := time.Now()
	preds := NewMerged(live, nil, table).Arrivals(context.Background(), "S1")
	elapsed := time.Since(start)

	assert.Equal(t, int32(2), calls.Load())
	assert.Less(t, elapsed, 380*time.Millisecond, "providers should run concurrently")
	require.Len(t, preds, 3)
	assert.Equal(t, []int{3, 9, 12}, []int{preds[0].ETAMinutes, preds[1].ETAMinutes, preds[2].ETAMinutes})
}

func TestMergedWithoutProviders(t *testing.T) {
	assert.Empty(t, NewMerged().Arrivals(context.Background(), "S1"))
}

func TestEarliestByRoute(t *testing.T) {
	got := EarliestByRoute([]models.ArrivalPrediction{
		{RouteID: "R1", ETAMinutes: 9},
		{RouteID: "R1", ETAMinutes: 4},
		{RouteID: "R2", ETAMinutes: 0},
		{RouteID: "", ETAMinutes: 1},
		{RouteID: "R3", ETAMinutes: -1},
	})
	assert.Equal(t, map[string]int{"R1": 4, "R2": 0}, got)
}
