package transitdb

import (
	"fmt"
	"log/slog"

	"github.com/OneBusAway/go-gtfs"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
)

func (c *Client) staticDataCounts(staticData *gtfs.Static) map[string]int {
	return map[string]int{
		"routes":   len(staticData.Routes),
		"stops":    len(staticData.Stops),
		"agencies": len(staticData.Agencies),
		"trips":    len(staticData.Trips),
		"calendar": len(staticData.Services),
	}
}

var tableCountQueries = map[string]string{
	"routes":          "SELECT COUNT(*) FROM routes",
	"stops":           "SELECT COUNT(*) FROM stops",
	"route_stops":     "SELECT COUNT(*) FROM route_stops",
	"trips":           "SELECT COUNT(*) FROM trips",
	"stop_times":      "SELECT COUNT(*) FROM stop_times",
	"calendar":        "SELECT COUNT(*) FROM calendar",
	"calendar_dates":  "SELECT COUNT(*) FROM calendar_dates",
	"import_metadata": "SELECT COUNT(*) FROM import_metadata",
}

// TableCounts returns row counts for the known tables that exist.
func (c *Client) TableCounts() (map[string]int, error) {
	rows, err := c.DB.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("failed to query table names: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "debugging")),
		"database_rows")

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, table := range tables {
		query, ok := tableCountQueries[table]
		if !ok {
			continue
		}
		var count int
		if err := c.DB.QueryRow(query).Scan(&count); err != nil {
			return nil, err
		}
		counts[table] = count
	}
	return counts, nil
}
