package arrivals

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Dreaming-Lion/Re-Route/internal/clock"
	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

const secondsPerDay = 24 * 60 * 60

// ScheduleSource lists the timetabled departures of a stop on a service date.
type ScheduleSource interface {
	DeparturesAt(ctx context.Context, stopID string, serviceDate time.Time) ([]models.ScheduledDeparture, error)
}

// Timetable predicts arrivals from the static schedule. It looks at the
// service days of yesterday, today and tomorrow, so trips running past
// midnight and tomorrow's first departures both count, and reports the
// departures of the next 24 hours. Timetable predictions never know how
// many stops away a bus is.
type Timetable struct {
	source  ScheduleSource
	clock   clock.Clock
	limit   int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTimetable returns a timetable provider that reports at most limit
// departures per route. The clock should already be in the feed's local
// time zone.
func NewTimetable(source ScheduleSource, c clock.Clock, limit int, logger *slog.Logger, m *metrics.Metrics) *Timetable {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 3
	}
	return &Timetable{
		source:  source,
		clock:   c,
		limit:   limit,
		logger:  logger.With(slog.String("component", "timetable_arrivals")),
		metrics: m,
	}
}

// serviceDayOffsets are the service days, relative to today, whose trips
// can depart within the next 24 hours.
var serviceDayOffsets = []int{-1, 0, 1}

type pendingDeparture struct {
	routeID string
	label   string
	wait    int
}

func (t *Timetable) Arrivals(ctx context.Context, stopID string) []models.ArrivalPrediction {
	now := t.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var pending []pendingDeparture
	for _, offset := range serviceDayOffsets {
		day := today.AddDate(0, 0, offset)
		deps, err := t.source.DeparturesAt(ctx, stopID, day)
		if err != nil {
			t.metrics.RecordUpstreamFailure("timetable")
			logging.LogWarn(t.logger, "timetable lookup failed", err,
				slog.String("stop_id", stopID),
				slog.String("service_date", day.Format("20060102")))
			continue
		}
		pending = append(pending, departuresWithin(deps, day, now)...)
	}
	return upcoming(pending, t.limit)
}

// departuresWithin keeps the departures of one service day that leave in
// [now, now+24h).
func departuresWithin(deps []models.ScheduledDeparture, serviceDay, now time.Time) []pendingDeparture {
	var out []pendingDeparture
	for _, d := range deps {
		if d.RouteID == "" || d.SecondsOfDay < 0 {
			continue
		}
		leaves := serviceDay.Add(time.Duration(d.SecondsOfDay) * time.Second)
		wait := int(leaves.Sub(now) / time.Second)
		if wait < 0 || wait >= secondsPerDay {
			continue
		}
		out = append(out, pendingDeparture{routeID: d.RouteID, label: d.RouteLabel, wait: wait})
	}
	return out
}

// upcoming keeps the next limit distinct departures of each route, soonest
// first.
func upcoming(pending []pendingDeparture, limit int) []models.ArrivalPrediction {
	type routeKey struct{ id, label string }
	byRoute := make(map[routeKey]map[int]struct{})
	for _, p := range pending {
		k := routeKey{id: p.routeID, label: p.label}
		if byRoute[k] == nil {
			byRoute[k] = make(map[int]struct{})
		}
		byRoute[k][p.wait] = struct{}{}
	}

	var out []models.ArrivalPrediction
	for k, waits := range byRoute {
		sorted := make([]int, 0, len(waits))
		for w := range waits {
			sorted = append(sorted, w)
		}
		sort.Ints(sorted)
		if len(sorted) > limit {
			sorted = sorted[:limit]
		}

		label := k.label
		if label == "" {
			label = k.id
		}
		for _, w := range sorted {
			out = append(out, models.ArrivalPrediction{
				RouteID:        k.id,
				RouteLabel:     label,
				ETAMinutes:     SecondsToMinutes(w),
				StopsRemaining: models.UnknownStopsRemaining,
			})
		}
	}
	sortPredictions(out)
	return out
}

func sortPredictions(preds []models.ArrivalPrediction) {
	sort.SliceStable(preds, func(i, j int) bool {
		if preds[i].ETAMinutes != preds[j].ETAMinutes {
			return preds[i].ETAMinutes < preds[j].ETAMinutes
		}
		if preds[i].RouteLabel != preds[j].RouteLabel {
			return preds[i].RouteLabel < preds[j].RouteLabel
		}
		return preds[i].RouteID < preds[j].RouteID
	})
}
