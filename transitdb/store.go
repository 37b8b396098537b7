package transitdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// AllStops lists every stored stop.
func (c *Client) AllStops(ctx context.Context) ([]models.Stop, error) {
	rows, err := c.Queries.ListStops(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stops: %w", err)
	}
	out := make([]models.Stop, 0, len(rows))
	for _, r := range rows {
		out = append(out, stopFromRow(r))
	}
	return out, nil
}

func (c *Client) StopByID(ctx context.Context, id string) (models.Stop, bool, error) {
	row, err := c.Queries.GetStop(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Stop{}, false, nil
	}
	if err != nil {
		return models.Stop{}, false, fmt.Errorf("failed to get stop %s: %w", id, err)
	}
	return stopFromRow(row), true, nil
}

// RoutesServing lists routes that visit both stops, in either order.
func (c *Client) RoutesServing(ctx context.Context, stopA, stopB string) ([]string, error) {
	ids, err := c.Queries.ListRoutesServingBoth(ctx, stopA, stopB)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes serving %s and %s: %w", stopA, stopB, err)
	}
	return ids, nil
}

// RouteIDs lists every route that has a stop order.
func (c *Client) RouteIDs(ctx context.Context) ([]string, error) {
	ids, err := c.Queries.ListRouteIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	return ids, nil
}

// StopsOf returns the route's stops in travel order.
func (c *Client) StopsOf(ctx context.Context, routeID string) ([]models.RouteStop, error) {
	rows, err := c.Queries.ListRouteStops(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stops of route %s: %w", routeID, err)
	}
	out := make([]models.RouteStop, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RouteStop{RouteID: r.RouteID, StopID: r.StopID, Ordinal: int(r.Ordinal)})
	}
	return out, nil
}

// RouteName returns the short name, else the long name, of a route. Names
// are cached until the next import.
func (c *Client) RouteName(ctx context.Context, routeID string) (string, bool) {
	if v, err := c.routeNames.Get(routeID); err == nil {
		if name, ok := v.(string); ok {
			return name, name != ""
		}
	}

	row, err := c.Queries.GetRoute(ctx, routeID)
	if errors.Is(err, sql.ErrNoRows) {
		_ = c.routeNames.Set(routeID, "")
		return "", false
	}
	if err != nil {
		logging.LogError(c.logger, "route name lookup failed", err, slog.String("route_id", routeID))
		return "", false
	}

	name := pickFirstAvailable(row.ShortName.String, row.LongName.String)
	_ = c.routeNames.Set(routeID, name)
	return name, name != ""
}

// DeparturesAt lists scheduled departures from a stop for services running
// on serviceDate's calendar day.
func (c *Client) DeparturesAt(ctx context.Context, stopID string, serviceDate time.Time) ([]models.ScheduledDeparture, error) {
	rows, err := c.Queries.ListDeparturesForStop(ctx, ListDeparturesForStopParams{
		StopID:  stopID,
		Date:    serviceDate.Format(serviceDateLayout),
		Weekday: int64(serviceDate.Weekday()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list departures for stop %s: %w", stopID, err)
	}
	out := make([]models.ScheduledDeparture, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ScheduledDeparture{
			RouteID:      r.RouteID,
			RouteLabel:   r.RouteLabel,
			SecondsOfDay: int(r.DepartureTime),
		})
	}
	return out, nil
}

// SearchStops matches stop names containing query.
func (c *Client) SearchStops(ctx context.Context, query string, limit int) ([]models.Stop, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := c.Queries.SearchStopsByName(ctx, SearchStopsByNameParams{
		SearchQuery: escapeLike(query),
		Limit:       int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search stops: %w", err)
	}
	out := make([]models.Stop, 0, len(rows))
	for _, r := range rows {
		out = append(out, stopFromRow(r))
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func stopFromRow(r Stop) models.Stop {
	return models.Stop{
		ID:   r.ID,
		Name: r.Name.String,
		Lat:  r.Lat,
		Lon:  r.Lon,
	}
}
