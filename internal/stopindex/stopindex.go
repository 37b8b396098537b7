// Package stopindex keeps every known stop in memory behind an R-tree so
// radius queries do not touch the database.
package stopindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidwall/rtree"

	"github.com/Dreaming-Lion/Re-Route/internal/geo"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// StopLister is implemented by stores that can enumerate all stops.
type StopLister interface {
	AllStops(ctx context.Context) ([]models.Stop, error)
}

// Index is an immutable spatial index of stops. It is safe for concurrent use.
type Index struct {
	tree rtree.RTreeG[models.Stop]
	byID map[string]models.Stop
}

// New indexes the given stops. Stops with invalid coordinates are skipped,
// and a later duplicate ID replaces an earlier one in the ID lookup only.
func New(stops []models.Stop) *Index {
	idx := &Index{byID: make(map[string]models.Stop, len(stops))}
	for _, s := range stops {
		if s.ID == "" || !geo.ValidCoordinate(s.Lat, s.Lon) {
			continue
		}
		if _, dup := idx.byID[s.ID]; dup {
			idx.byID[s.ID] = s
			continue
		}
		idx.byID[s.ID] = s
		pt := [2]float64{s.Lon, s.Lat}
		idx.tree.Insert(pt, pt, s)
	}
	return idx
}

// Load builds an index from every stop the lister returns.
func Load(ctx context.Context, lister StopLister) (*Index, error) {
	stops, err := lister.AllStops(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stops for spatial index: %w", err)
	}
	return New(stops), nil
}

// Len returns the number of indexed stops.
func (idx *Index) Len() int {
	return len(idx.byID)
}

// StopByID looks up a stop by its identifier.
func (idx *Index) StopByID(_ context.Context, id string) (models.Stop, bool, error) {
	s, ok := idx.byID[id]
	return s, ok, nil
}

// StopsWithinRadius returns every stop within radiusMeters of (lat, lon),
// closest first. Ties are broken by stop ID.
func (idx *Index) StopsWithinRadius(ctx context.Context, lat, lon, radiusMeters float64) ([]models.Stop, error) {
	if radiusMeters <= 0 || !geo.ValidCoordinate(lat, lon) {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := geo.CalculateBounds(lat, lon, radiusMeters)

	type hit struct {
		stop models.Stop
		dist float64
	}
	var hits []hit
	idx.tree.Search(
		[2]float64{b.MinLon, b.MinLat},
		[2]float64{b.MaxLon, b.MaxLat},
		func(_, _ [2]float64, s models.Stop) bool {
			d := geo.Distance(lat, lon, s.Lat, s.Lon)
			if d <= radiusMeters {
				hits = append(hits, hit{stop: s, dist: d})
			}
			return true
		},
	)

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].stop.ID < hits[j].stop.ID
	})

	out := make([]models.Stop, len(hits))
	for i, h := range hits {
		out[i] = h.stop
	}
	return out, nil
}
