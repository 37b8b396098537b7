package stations

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Dreaming-Lion/Re-Route/internal/geo"
	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

const (
	// NearestRadiusMeters bounds the search for the single closest stop.
	NearestRadiusMeters = 1000.0
	// NearbyRadiusMeters is the default radius for listing nearby stops.
	NearbyRadiusMeters = 500.0
)

// StopIndex answers stop lookups.
type StopIndex interface {
	StopByID(ctx context.Context, id string) (models.Stop, bool, error)
	StopsWithinRadius(ctx context.Context, lat, lon, radiusMeters float64) ([]models.Stop, error)
}

// Resolver finds the stops closest to a coordinate. A lookup that finds
// nothing, or whose index fails, yields no stops rather than an error.
type Resolver struct {
	index  StopIndex
	logger *slog.Logger
}

func NewResolver(index StopIndex, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		index:  index,
		logger: logger.With(slog.String("component", "station_resolver")),
	}
}

// FindNearest returns stops within radiusMeters ordered by ascending
// distance, each annotated with its distance and walking time.
func (r *Resolver) FindNearest(ctx context.Context, lat, lon, radiusMeters float64) []models.NearbyStation {
	if !geo.ValidCoordinate(lat, lon) {
		return nil
	}

	stops, err := r.index.StopsWithinRadius(ctx, lat, lon, radiusMeters)
	if err != nil {
		logging.LogError(r.logger, "stop radius lookup failed", err,
			slog.Float64("lat", lat),
			slog.Float64("lon", lon),
			slog.Float64("radius_m", radiusMeters))
		return nil
	}

	out := make([]models.NearbyStation, 0, len(stops))
	for _, s := range stops {
		d := geo.Distance(lat, lon, s.Lat, s.Lon)
		out = append(out, models.NearbyStation{
			Stop:           s,
			DistanceMeters: d,
			WalkMinutes:    geo.WalkMinutes(d),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].Stop.ID < out[j].Stop.ID
	})
	return out
}

// FindNearest1 returns the closest stop within NearestRadiusMeters.
func (r *Resolver) FindNearest1(ctx context.Context, lat, lon float64) (models.NearbyStation, bool) {
	found := r.FindNearest(ctx, lat, lon, NearestRadiusMeters)
	if len(found) == 0 {
		return models.NearbyStation{}, false
	}
	return found[0], true
}

// FindNearby lists stops within radiusMeters, falling back to
// NearbyRadiusMeters when the radius is not positive.
func (r *Resolver) FindNearby(ctx context.Context, lat, lon, radiusMeters float64) []models.NearbyStation {
	if radiusMeters <= 0 {
		radiusMeters = NearbyRadiusMeters
	}
	return r.FindNearest(ctx, lat, lon, radiusMeters)
}

// Stop resolves a stop by ID.
func (r *Resolver) Stop(ctx context.Context, id string) (models.Stop, bool) {
	s, ok, err := r.index.StopByID(ctx, id)
	if err != nil {
		logging.LogError(r.logger, "stop lookup failed", err, slog.String("stop_id", id))
		return models.Stop{}, false
	}
	return s, ok
}
