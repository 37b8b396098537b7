package topology

import (
	"context"
	"log/slog"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// RouteConnectivitySource lists routes that visit both stops, in any order.
type RouteConnectivitySource interface {
	RoutesServing(ctx context.Context, stopA, stopB string) ([]string, error)
}

// StopLookup resolves stop IDs to stops.
type StopLookup interface {
	StopByID(ctx context.Context, id string) (models.Stop, bool, error)
}

// RouteNamer resolves a route's display name.
type RouteNamer interface {
	RouteName(ctx context.Context, routeID string) (string, bool)
}

// Filter turns "routes that touch both stops" into candidates that travel
// from the boarding stop to the alighting stop.
type Filter struct {
	connectivity RouteConnectivitySource
	cache        *Cache
	stops        StopLookup
	names        RouteNamer
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewFilter wires a filter. stops and names may be nil, in which case
// candidates carry bare IDs.
func NewFilter(connectivity RouteConnectivitySource, cache *Cache, stops StopLookup, names RouteNamer, logger *slog.Logger, m *metrics.Metrics) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		connectivity: connectivity,
		cache:        cache,
		stops:        stops,
		names:        names,
		logger:       logger.With(slog.String("component", "route_filter")),
		metrics:      m,
	}
}

// FilterRoutes returns a candidate for every route that reaches
// alightStopID after boardStopID.
func (f *Filter) FilterRoutes(ctx context.Context, boardStopID, alightStopID string) []models.RouteCandidate {
	return f.FilterBetween(ctx, f.stop(ctx, boardStopID), f.stop(ctx, alightStopID))
}

// FilterBetween is FilterRoutes for callers that already hold both stops.
func (f *Filter) FilterBetween(ctx context.Context, board, alight models.Stop) []models.RouteCandidate {
	if board.ID == "" || alight.ID == "" || board.ID == alight.ID {
		return nil
	}

	routeIDs, err := f.connectivity.RoutesServing(ctx, board.ID, alight.ID)
	if err != nil {
		f.metrics.RecordUpstreamFailure("connectivity")
		logging.LogError(f.logger, "connectivity lookup failed", err,
			slog.String("board_stop_id", board.ID),
			slog.String("alight_stop_id", alight.ID))
		return nil
	}
	if len(routeIDs) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(routeIDs))
	candidates := make([]models.RouteCandidate, 0, len(routeIDs))
	for _, routeID := range routeIDs {
		if _, dup := seen[routeID]; dup {
			logging.LogWarn(f.logger, "connectivity source returned duplicate route", nil,
				slog.String("route_id", routeID),
				slog.String("board_stop_id", board.ID),
				slog.String("alight_stop_id", alight.ID))
			continue
		}
		seen[routeID] = struct{}{}

		topo := f.cache.Topology(ctx, routeID)
		boardOrd, ok := topo.Ordinal(board.ID)
		if !ok {
			continue
		}
		alightOrd, ok := topo.Ordinal(alight.ID)
		if !ok || boardOrd >= alightOrd {
			continue
		}

		candidates = append(candidates, models.RouteCandidate{
			Route:         f.route(ctx, routeID),
			BoardStop:     board,
			AlightStop:    alight,
			BoardOrdinal:  boardOrd,
			AlightOrdinal: alightOrd,
			HopCount:      alightOrd - boardOrd,
		})
	}
	return candidates
}

func (f *Filter) stop(ctx context.Context, id string) models.Stop {
	if f.stops == nil || id == "" {
		return models.Stop{ID: id}
	}
	s, ok, err := f.stops.StopByID(ctx, id)
	if err != nil {
		logging.LogError(f.logger, "stop lookup failed", err, slog.String("stop_id", id))
	}
	if err != nil || !ok {
		return models.Stop{ID: id}
	}
	return s
}

func (f *Filter) route(ctx context.Context, routeID string) models.Route {
	r := models.Route{ID: routeID, Name: routeID}
	if f.names != nil {
		if name, ok := f.names.RouteName(ctx, routeID); ok && name != "" {
			r.Name = name
		}
	}
	return r
}
