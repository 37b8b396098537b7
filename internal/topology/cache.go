// Package topology holds the per-route stop order used to decide whether a
// route can carry a rider from one stop to another.
package topology

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// RouteDetailSource returns the ordered stops of a route.
type RouteDetailSource interface {
	StopsOf(ctx context.Context, routeID string) ([]models.RouteStop, error)
}

// Topology maps stop ID to ordinal for a single route. Values handed out by
// Cache are shared and must not be modified.
type Topology map[string]int

// Ordinal returns the position of stopID on the route.
func (t Topology) Ordinal(stopID string) (int, bool) {
	ord, ok := t[stopID]
	return ord, ok
}

const defaultFetchTimeout = 3 * time.Second

// Cache lazily loads route topologies and keeps them for the lifetime of the
// process. There is no expiry and no invalidation.
//
// A failed or empty fetch stores an empty topology so the upstream is not
// asked again for that route. Two concurrent misses for the same route may
// both fetch; the later store wins and, since the data is deterministic,
// both results are equal. Entries are only ever replaced whole.
type Cache struct {
	source  RouteDetailSource
	entries sync.Map // routeID -> Topology
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type CacheOption func(*Cache)

// WithFetchTimeout bounds each upstream route-detail fetch.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCache(source RouteDetailSource, opts ...CacheOption) *Cache {
	c := &Cache{
		source:  source,
		timeout: defaultFetchTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "topology_cache"))
	return c
}

// Topology returns the stop order of routeID, fetching it on first use.
func (c *Cache) Topology(ctx context.Context, routeID string) Topology {
	if v, ok := c.entries.Load(routeID); ok {
		c.metrics.RecordTopologyLookup(true)
		return v.(Topology)
	}
	c.metrics.RecordTopologyLookup(false)

	topo, err := c.fetch(ctx, routeID)
	if err != nil && ctx.Err() != nil {
		// The caller went away; the next request fetches again.
		c.logger.Debug("topology fetch abandoned by caller",
			slog.String("route_id", routeID),
			slog.String("error", err.Error()))
		return topo
	}
	c.entries.Store(routeID, topo)

	logging.LogOperation(c.logger, "topology_cache_miss",
		slog.String("route_id", routeID),
		slog.Int("stops", len(topo)))

	return topo
}

func (c *Cache) fetch(ctx context.Context, routeID string) (Topology, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stops, err := c.source.StopsOf(fetchCtx, routeID)
	if err != nil {
		if ctx.Err() != nil {
			return Topology{}, err
		}
		c.metrics.RecordUpstreamFailure("route_detail")
		logging.LogWarn(c.logger, "route detail fetch failed, caching empty topology", err,
			slog.String("route_id", routeID))
		return Topology{}, err
	}
	return c.build(routeID, stops), nil
}

// build keeps the first ordinal seen for a stop that appears twice on a
// route, and ignores non-positive ordinals.
func (c *Cache) build(routeID string, stops []models.RouteStop) Topology {
	topo := make(Topology, len(stops))
	for _, rs := range stops {
		if rs.StopID == "" || rs.Ordinal <= 0 {
			continue
		}
		if prev, dup := topo[rs.StopID]; dup {
			c.logger.Debug("stop appears twice on route",
				slog.String("route_id", routeID),
				slog.String("stop_id", rs.StopID),
				slog.Int("kept_ordinal", prev),
				slog.Int("ignored_ordinal", rs.Ordinal))
			continue
		}
		topo[rs.StopID] = rs.Ordinal
	}
	return topo
}

// Cached reports whether routeID has an entry, without fetching.
func (c *Cache) Cached(routeID string) bool {
	_, ok := c.entries.Load(routeID)
	return ok
}

// Warm loads the given routes concurrently. Routes already cached are skipped.
func (c *Cache) Warm(ctx context.Context, routeIDs []string, maxConcurrent int) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	p := pool.New().WithMaxGoroutines(maxConcurrent)
	for _, id := range routeIDs {
		if c.Cached(id) {
			continue
		}
		p.Go(func() {
			c.Topology(ctx, id)
		})
	}
	p.Wait()
}

// Snapshot copies the route IDs and stop counts of every cached entry,
// ordered by route ID.
func (c *Cache) Snapshot() []EntrySummary {
	var out []EntrySummary
	c.entries.Range(func(k, v any) bool {
		out = append(out, EntrySummary{RouteID: k.(string), Stops: len(v.(Topology))})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RouteID < out[j].RouteID })
	return out
}

type EntrySummary struct {
	RouteID string
	Stops   int
}
