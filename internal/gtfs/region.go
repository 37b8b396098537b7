package gtfs

import "github.com/Dreaming-Lion/Re-Route/internal/models"

// RegionBounds is the center and span of the area the feed covers.
type RegionBounds struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	LatSpan float64 `json:"latSpan"`
	LonSpan float64 `json:"lonSpan"`
}

// ComputeRegionBounds returns nil when there are no stops.
func ComputeRegionBounds(stops []models.Stop) *RegionBounds {
	if len(stops) == 0 {
		return nil
	}

	minLat, maxLat := stops[0].Lat, stops[0].Lat
	minLon, maxLon := stops[0].Lon, stops[0].Lon
	for _, s := range stops[1:] {
		minLat = min(minLat, s.Lat)
		maxLat = max(maxLat, s.Lat)
		minLon = min(minLon, s.Lon)
		maxLon = max(maxLon, s.Lon)
	}

	return &RegionBounds{
		Lat:     (minLat + maxLat) / 2,
		Lon:     (minLon + maxLon) / 2,
		LatSpan: maxLat - minLat,
		LonSpan: maxLon - minLon,
	}
}
