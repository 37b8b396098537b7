package app

import (
	"context"
	"log/slog"

	"github.com/Dreaming-Lion/Re-Route/internal/appconf"
	"github.com/Dreaming-Lion/Re-Route/internal/arrivals"
	"github.com/Dreaming-Lion/Re-Route/internal/clock"
	"github.com/Dreaming-Lion/Re-Route/internal/gtfs"
	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
	"github.com/Dreaming-Lion/Re-Route/internal/planner"
	"github.com/Dreaming-Lion/Re-Route/internal/stations"
	"github.com/Dreaming-Lion/Re-Route/internal/topology"
)

// StopSearcher finds stops by name.
type StopSearcher interface {
	SearchStops(ctx context.Context, query string, limit int) ([]models.Stop, error)
}

// BusLocator reports buses on a route approaching a stop.
type BusLocator interface {
	BusLocations(ctx context.Context, routeID, stopID string) ([]models.BusLocation, error)
}

// Application holds the dependencies for the HTTP handlers, helpers and
// middleware.
type Application struct {
	Config     appconf.Config
	GtfsConfig gtfs.Config
	Logger     *slog.Logger
	Clock      clock.Clock
	Metrics    *metrics.Metrics

	GtfsManager *gtfs.Manager
	StopSearch  StopSearcher
	Stations    *stations.Resolver
	Topology    *topology.Cache
	Routes      *topology.Filter
	Arrivals    arrivals.Provider
	Planner     *planner.Planner
	LivePaths   *planner.LivePathFinder
	// BusLocations is nil when the live feed is disabled.
	BusLocations BusLocator
}
