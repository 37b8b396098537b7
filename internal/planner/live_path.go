package planner

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Dreaming-Lion/Re-Route/internal/arrivals"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
	"github.com/Dreaming-Lion/Re-Route/internal/topology"
)

// TopologySource returns the stop order of a route.
type TopologySource interface {
	Topology(ctx context.Context, routeID string) topology.Topology
}

// LivePathFinder lists the predicted buses at one stop that continue on to
// another stop.
type LivePathFinder struct {
	arrivals arrivals.Provider
	topology TopologySource
	logger   *slog.Logger
}

func NewLivePathFinder(provider arrivals.Provider, topo TopologySource, logger *slog.Logger) *LivePathFinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LivePathFinder{
		arrivals: provider,
		topology: topo,
		logger:   logger.With(slog.String("component", "live_path")),
	}
}

// Find returns predictions at fromStopID whose route visits toStopID later,
// soonest first.
func (f *LivePathFinder) Find(ctx context.Context, fromStopID, toStopID string) []models.LivePath {
	out := []models.LivePath{}
	if fromStopID == "" || toStopID == "" || fromStopID == toStopID {
		return out
	}

	hops := make(map[string]int)
	for _, pred := range f.arrivals.Arrivals(ctx, fromStopID) {
		if pred.RouteID == "" {
			continue
		}
		hop, seen := hops[pred.RouteID]
		if !seen {
			hop = f.hopCount(ctx, pred.RouteID, fromStopID, toStopID)
			hops[pred.RouteID] = hop
		}
		if hop <= 0 {
			continue
		}
		out = append(out, models.LivePath{
			RouteID:        pred.RouteID,
			RouteLabel:     pred.RouteLabel,
			ETAMinutes:     pred.ETAMinutes,
			StopsRemaining: pred.StopsRemaining,
			HopCount:       hop,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ETAMinutes != out[j].ETAMinutes {
			return out[i].ETAMinutes < out[j].ETAMinutes
		}
		return out[i].RouteID < out[j].RouteID
	})

	f.logger.Debug("live paths found",
		slog.String("from_stop_id", fromStopID),
		slog.String("to_stop_id", toStopID),
		slog.Int("count", len(out)))
	return out
}

// hopCount is zero when the route does not run from one stop to the other.
func (f *LivePathFinder) hopCount(ctx context.Context, routeID, fromStopID, toStopID string) int {
	topo := f.topology.Topology(ctx, routeID)
	from, okFrom := topo.Ordinal(fromStopID)
	to, okTo := topo.Ordinal(toStopID)
	if !okFrom || !okTo || from >= to {
		return 0
	}
	return to - from
}
