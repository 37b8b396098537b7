// Package planner picks the best single-bus itinerary between two points.
//
// An itinerary is either walk, bus, walk through one boarding stop and one
// alighting stop, or a single walking step when no usable bus exists.
// Candidates are ranked by total minutes, then waiting minutes, then the
// number of stops ridden.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/Dreaming-Lion/Re-Route/internal/arrivals"
	"github.com/Dreaming-Lion/Re-Route/internal/clock"
	"github.com/Dreaming-Lion/Re-Route/internal/geo"
	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

const (
	// MinutesPerStop estimates riding time between consecutive stops.
	MinutesPerStop = 2
	// NoETAPenaltyMinutes is the assumed wait when no prediction exists.
	NoETAPenaltyMinutes = 30
	// ETALayout formats the arrival label.
	ETALayout = "15:04"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// StationFinder resolves the closest stop to a point.
type StationFinder interface {
	FindNearest1(ctx context.Context, lat, lon float64) (models.NearbyStation, bool)
}

// RouteFilter lists routes running from board to alight.
type RouteFilter interface {
	FilterBetween(ctx context.Context, board, alight models.Stop) []models.RouteCandidate
}

type Planner struct {
	stations StationFinder
	routes   RouteFilter
	arrivals arrivals.Provider
	clock    clock.Clock
	strict   bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Config struct {
	// Strict makes a reversed candidate reaching the scorer panic instead of
	// being logged and skipped.
	Strict  bool
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func New(stations StationFinder, routes RouteFilter, provider arrivals.Provider, cfg Config) *Planner {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Planner{
		stations: stations,
		routes:   routes,
		arrivals: provider,
		clock:    cfg.Clock,
		strict:   cfg.Strict,
		logger:   cfg.Logger.With(slog.String("component", "planner")),
		metrics:  cfg.Metrics,
	}
}

// scored is a candidate with its computed times.
type scored struct {
	candidate models.RouteCandidate
	label     string
	wait      int
	ride      int
	total     int
}

// better reports whether a ranks ahead of b.
func better(a, b scored) bool {
	if a.total != b.total {
		return a.total < b.total
	}
	if a.wait != b.wait {
		return a.wait < b.wait
	}
	if a.candidate.HopCount != b.candidate.HopCount {
		return a.candidate.HopCount < b.candidate.HopCount
	}
	return a.candidate.Route.ID < b.candidate.Route.ID
}

// RideMinutes estimates time on the bus for hops stops, at least one stop.
func RideMinutes(hops int) int {
	return max(1, hops) * MinutesPerStop
}

// ComputeBestItinerary always returns a usable itinerary. Missing stops,
// missing routes and missing predictions degrade the result rather than
// failing it.
func (p *Planner) ComputeBestItinerary(ctx context.Context, origin, destination Point) models.Itinerary {
	now := p.clock.Now()
	path := []Point{origin}

	board, okBoard := p.stations.FindNearest1(ctx, origin.Lat, origin.Lon)
	alight, okAlight := p.stations.FindNearest1(ctx, destination.Lat, destination.Lon)
	if !okBoard || !okAlight {
		p.metrics.RecordItineraryOutcome(metrics.OutcomeNoStop)
		logging.LogOperation(p.logger, "itinerary_no_stop",
			slog.Bool("origin_resolved", okBoard),
			slog.Bool("destination_resolved", okAlight))
		return p.walkOnly(now, origin, 0, append(path, destination))
	}

	walkToBoard := board.WalkMinutes
	walkFromAlight := alight.WalkMinutes
	path = append(path, stopPoint(board.Stop), stopPoint(alight.Stop), destination)

	candidates := p.routes.FilterBetween(ctx, board.Stop, alight.Stop)
	if len(candidates) == 0 {
		p.metrics.RecordItineraryOutcome(metrics.OutcomeWalkOnly)
		return p.walkOnly(now, origin, walkToBoard+walkFromAlight, path)
	}

	preds := p.arrivals.Arrivals(ctx, board.Stop.ID)
	earliest := arrivals.EarliestByRoute(preds)
	labels := make(map[string]string, len(preds))
	for _, pr := range preds {
		if pr.RouteLabel != "" {
			labels[pr.RouteID] = pr.RouteLabel
		}
	}

	var best *scored
	for _, c := range candidates {
		if !c.Valid() {
			p.invalidCandidate(c)
			continue
		}

		wait, ok := earliest[c.Route.ID]
		if !ok {
			wait = NoETAPenaltyMinutes
		}
		ride := RideMinutes(c.HopCount)
		s := scored{
			candidate: c,
			label:     routeLabel(c.Route, labels),
			wait:      wait,
			ride:      ride,
			total:     walkToBoard + wait + ride + walkFromAlight,
		}
		if best == nil || better(s, *best) {
			best = &s
		}
	}

	if best == nil {
		p.metrics.RecordItineraryOutcome(metrics.OutcomeWalkOnly)
		return p.walkOnly(now, origin, walkToBoard+walkFromAlight, path)
	}

	p.metrics.RecordItineraryOutcome(metrics.OutcomeBus)
	boardName := stopLabel(board.Stop)
	alightName := stopLabel(alight.Stop)
	return models.Itinerary{
		TotalMinutes: best.total,
		Steps: []models.ItineraryStep{
			models.WalkStep(walkToBoard, models.OriginLabel, boardName),
			models.BusStep(best.label, best.ride, best.wait, boardName, alightName),
			models.WalkStep(walkFromAlight, alightName, models.DestinationLabel),
		},
		ETALabel:     etaLabel(now, best.total),
		OriginMarker: originMarker(origin),
		Polyline:     encodePath(path),
	}
}

func (p *Planner) walkOnly(now time.Time, origin Point, minutes int, path []Point) models.Itinerary {
	return models.Itinerary{
		TotalMinutes: minutes,
		Steps:        []models.ItineraryStep{models.WalkStep(minutes, models.OriginLabel, models.DestinationLabel)},
		ETALabel:     etaLabel(now, minutes),
		OriginMarker: originMarker(origin),
		Polyline:     encodePath(path),
	}
}

func (p *Planner) invalidCandidate(c models.RouteCandidate) {
	msg := fmt.Sprintf("route candidate %s does not travel forward: board ordinal %d, alight ordinal %d",
		c.Route.ID, c.BoardOrdinal, c.AlightOrdinal)
	if p.strict {
		panic(msg)
	}
	p.logger.Error(msg,
		slog.String("route_id", c.Route.ID),
		slog.String("board_stop_id", c.BoardStop.ID),
		slog.String("alight_stop_id", c.AlightStop.ID))
}

func originMarker(origin Point) models.OriginMarker {
	return models.OriginMarker{Lat: origin.Lat, Lng: origin.Lon, Label: models.OriginLabel}
}

func etaLabel(now time.Time, minutes int) string {
	return now.Add(time.Duration(minutes) * time.Minute).Format(ETALayout)
}

func routeLabel(r models.Route, fromFeed map[string]string) string {
	if r.Name != "" && r.Name != r.ID {
		return r.Name
	}
	if l, ok := fromFeed[r.ID]; ok {
		return l
	}
	return r.ID
}

func stopLabel(s models.Stop) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func stopPoint(s models.Stop) Point {
	return Point{Lat: s.Lat, Lon: s.Lon}
}

// encodePath drops points with invalid coordinates before encoding.
func encodePath(points []Point) string {
	coords := make([][]float64, 0, len(points))
	for _, pt := range points {
		if !geo.ValidCoordinate(pt.Lat, pt.Lon) {
			continue
		}
		coords = append(coords, []float64{pt.Lat, pt.Lon})
	}
	if len(coords) < 2 {
		return ""
	}
	return string(polyline.EncodeCoords(coords))
}
