package transitdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"github.com/Dreaming-Lion/Re-Route/internal/appconf"
	"github.com/Dreaming-Lion/Re-Route/internal/logging"
)

//go:embed schema.sql
var ddl string

// createDB opens the SQLite database and brings the schema up to date.
func createDB(config Config) (*sql.DB, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got path: %s", config.DBPath)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, err
	}

	// Pool settings first so an in-memory database is pinned to one connection
	// before the schema is created on it.
	configureConnectionPool(db, config)

	ctx := context.Background()
	if err := configureSQLitePerformance(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error configuring SQLite performance: %w", err)
	}

	if err := performDatabaseMigration(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	return db, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmed); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmed, err)
		}
	}
	return nil
}

func configureSQLitePerformance(ctx context.Context, db *sql.DB) error {
	pragmas := []struct {
		name        string
		description string
	}{
		// Negative means KB, so 64MB.
		{"PRAGMA cache_size=-64000", "Set cache size to 64MB"},
		{"PRAGMA temp_store=MEMORY", "Store temporary data in memory"},
	}

	logger := slog.Default().With(slog.String("component", "sqlite_performance"))

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma.name); err != nil {
			logging.LogError(logger, fmt.Sprintf("Failed to set %s", pragma.description), err)
			return fmt.Errorf("failed to execute %s: %w", pragma.name, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	logging.LogOperation(logger, "sqlite_performance_settings_applied",
		slog.Int("pragma_count", len(pragmas)))
	return nil
}

// configureConnectionPool limits :memory: databases to a single connection,
// since every connection to one opens a separate database.
func configureConnectionPool(db *sql.DB, config Config) {
	if config.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}

func (c *Client) processAndStoreGTFSDataWithSource(ctx context.Context, b []byte, source string) error {
	logger := c.logger.With(slog.String("source", source))

	startTime := time.Now()
	defer func() {
		c.importRuntime = time.Since(startTime)
		logging.LogOperation(logger, "gtfs_data_import_completed",
			slog.Duration("duration", c.importRuntime))
	}()

	hash := sha256.Sum256(b)
	hashStr := hex.EncodeToString(hash[:])

	existing, err := c.Queries.GetImportMetadata(ctx)
	switch {
	case err == nil:
		if existing.FileHash == hashStr && existing.FileSource == source {
			logging.LogOperation(logger, "gtfs_data_unchanged_skipping_import",
				slog.String("hash", hashStr[:8]))
			return nil
		}
		logging.LogOperation(logger, "gtfs_data_changed_reimporting",
			slog.String("old_hash", shortHash(existing.FileHash)),
			slog.String("new_hash", hashStr[:8]))
		if err := c.clearAllGTFSData(ctx); err != nil {
			return fmt.Errorf("error clearing existing GTFS data: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// first import
	default:
		return fmt.Errorf("error checking import metadata: %w", err)
	}

	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return fmt.Errorf("failed to parse GTFS: %w", err)
	}

	staticCounts := c.staticDataCounts(staticData)
	logging.LogOperation(logger, "gtfs_static_data_parsed",
		slog.Int("warnings", len(staticData.Warnings)),
		slog.Any("counts", staticCounts))

	if err := c.insertRoutes(ctx, staticData); err != nil {
		return fmt.Errorf("unable to create routes: %w", err)
	}
	if err := c.insertStops(ctx, staticData); err != nil {
		return fmt.Errorf("unable to create stops: %w", err)
	}
	if err := c.insertCalendar(ctx, staticData); err != nil {
		return fmt.Errorf("unable to create calendar: %w", err)
	}
	if err := c.insertTrips(ctx, staticData); err != nil {
		return fmt.Errorf("unable to create trips: %w", err)
	}
	if err := c.bulkInsertStopTimes(ctx, stopTimeParams(staticData)); err != nil {
		return fmt.Errorf("unable to create stop times: %w", err)
	}
	if err := c.insertRouteStops(ctx, routeStopsFromTrips(staticData.Trips)); err != nil {
		return fmt.Errorf("unable to create route stops: %w", err)
	}

	counts, err := c.TableCounts()
	if err != nil {
		logging.LogError(logger, "Error getting table counts", err)
		return fmt.Errorf("failed to get table counts: %w", err)
	}
	logging.LogOperation(logger, "gtfs_tables_loaded", slog.Any("counts", counts))

	err = c.Queries.UpsertImportMetadata(ctx, ImportMetadata{
		FileHash:   hashStr,
		ImportTime: time.Now().Unix(),
		FileSource: source,
	})
	if err != nil {
		logging.LogError(logger, "Error updating import metadata", err)
		return fmt.Errorf("error updating import metadata: %w", err)
	}

	c.routeNames.Purge()
	return nil
}

func (c *Client) clearAllGTFSData(ctx context.Context) error {
	for _, table := range clearOrder {
		if err := c.Queries.ClearTable(ctx, table); err != nil {
			return fmt.Errorf("error clearing %s: %w", table, err)
		}
	}
	c.routeNames.Purge()
	return nil
}

// inTx runs fn inside a transaction that is rolled back unless fn succeeds.
func (c *Client) inTx(ctx context.Context, operation string, fn func(q *Queries) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, c.logger, operation)

	if err := fn(c.Queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Client) insertRoutes(ctx context.Context, staticData *gtfs.Static) error {
	singleAgencyID := ""
	if len(staticData.Agencies) == 1 {
		singleAgencyID = staticData.Agencies[0].Id
	}

	return c.inTx(ctx, "insert_routes", func(q *Queries) error {
		for _, r := range staticData.Routes {
			agencyID := ""
			if r.Agency != nil {
				agencyID = r.Agency.Id
			}
			err := q.CreateRoute(ctx, CreateRouteParams{
				ID:        r.Id,
				AgencyID:  pickFirstAvailable(agencyID, singleAgencyID),
				ShortName: toNullString(r.ShortName),
				LongName:  toNullString(r.LongName),
				Type:      int64(r.Type),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Client) insertStops(ctx context.Context, staticData *gtfs.Static) error {
	skipped := 0
	err := c.inTx(ctx, "insert_stops", func(q *Queries) error {
		for _, s := range staticData.Stops {
			// Generic nodes and boarding areas may omit coordinates; they
			// cannot be walked to, so they are left out of the store.
			if s.Latitude == nil || s.Longitude == nil {
				skipped++
				continue
			}
			err := q.CreateStop(ctx, CreateStopParams{
				ID:   s.Id,
				Code: toNullString(s.Code),
				Name: toNullString(s.Name),
				Lat:  *s.Latitude,
				Lon:  *s.Longitude,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		logging.LogOperation(c.logger, "stops_inserted",
			slog.Int("count", len(staticData.Stops)-skipped),
			slog.Int("skipped_without_coordinates", skipped))
	}
	return err
}

func (c *Client) insertCalendar(ctx context.Context, staticData *gtfs.Static) error {
	return c.inTx(ctx, "insert_calendar", func(q *Queries) error {
		for _, s := range staticData.Services {
			err := q.CreateCalendar(ctx, CreateCalendarParams{
				ID:        s.Id,
				Monday:    boolToInt(s.Monday),
				Tuesday:   boolToInt(s.Tuesday),
				Wednesday: boolToInt(s.Wednesday),
				Thursday:  boolToInt(s.Thursday),
				Friday:    boolToInt(s.Friday),
				Saturday:  boolToInt(s.Saturday),
				Sunday:    boolToInt(s.Sunday),
				StartDate: s.StartDate.Format(serviceDateLayout),
				EndDate:   s.EndDate.Format(serviceDateLayout),
			})
			if err != nil {
				return err
			}
			for _, d := range s.AddedDates {
				if err := q.CreateCalendarDate(ctx, CreateCalendarDateParams{
					ServiceID: s.Id, Date: d.Format(serviceDateLayout), ExceptionType: 1,
				}); err != nil {
					return err
				}
			}
			for _, d := range s.RemovedDates {
				if err := q.CreateCalendarDate(ctx, CreateCalendarDateParams{
					ServiceID: s.Id, Date: d.Format(serviceDateLayout), ExceptionType: 2,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (c *Client) insertTrips(ctx context.Context, staticData *gtfs.Static) error {
	return c.inTx(ctx, "insert_trips", func(q *Queries) error {
		for _, t := range staticData.Trips {
			if t.Route == nil || t.Service == nil {
				continue
			}
			err := q.CreateTrip(ctx, CreateTripParams{
				ID:          t.ID,
				RouteID:     t.Route.Id,
				ServiceID:   t.Service.Id,
				DirectionID: toNullInt64(int64(t.DirectionId)),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func stopTimeParams(staticData *gtfs.Static) []CreateStopTimeParams {
	var out []CreateStopTimeParams
	for _, t := range staticData.Trips {
		if t.Route == nil || t.Service == nil {
			continue
		}
		for _, st := range t.StopTimes {
			if st.Stop == nil {
				continue
			}
			out = append(out, CreateStopTimeParams{
				TripID:        t.ID,
				StopID:        st.Stop.Id,
				StopSequence:  int64(st.StopSequence),
				ArrivalTime:   int64(st.ArrivalTime / time.Second),
				DepartureTime: int64(st.DepartureTime / time.Second),
			})
		}
	}
	return out
}

func (c *Client) bulkInsertStopTimes(ctx context.Context, stopTimes []CreateStopTimeParams) error {
	const baseQuery = `INSERT INTO stop_times (
		trip_id, stop_id, stop_sequence, arrival_time, departure_time
	) VALUES `

	logging.LogOperation(c.logger, "inserting_stop_times", slog.Int("count", len(stopTimes)))

	batchSize := c.config.GetBulkInsertBatchSize()
	return c.inTx(ctx, "bulk_insert_stop_times", func(q *Queries) error {
		for start := 0; start < len(stopTimes); start += batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+batchSize, len(stopTimes))
			batch := stopTimes[start:end]

			// Values only ever go through placeholders.
			var query strings.Builder
			query.WriteString(baseQuery)
			args := make([]interface{}, 0, len(batch)*5)
			for j, p := range batch {
				if j > 0 {
					query.WriteString(", ")
				}
				query.WriteString("(?, ?, ?, ?, ?)")
				args = append(args, p.TripID, p.StopID, p.StopSequence, p.ArrivalTime, p.DepartureTime)
			}
			if _, err := q.exec(ctx, query.String(), args...); err != nil {
				return fmt.Errorf("batch starting at %d: %w", start, err)
			}
		}
		return nil
	})
}

// routeStopsFromTrips orders each route's stops by its longest trip. Ties go
// to the lowest trip ID so imports are repeatable.
func routeStopsFromTrips(trips []gtfs.ScheduledTrip) []RouteStop {
	longest := make(map[string]*gtfs.ScheduledTrip)
	for i := range trips {
		t := &trips[i]
		if t.Route == nil {
			continue
		}
		cur, ok := longest[t.Route.Id]
		if !ok || len(t.StopTimes) > len(cur.StopTimes) ||
			(len(t.StopTimes) == len(cur.StopTimes) && t.ID < cur.ID) {
			longest[t.Route.Id] = t
		}
	}

	routeIDs := make([]string, 0, len(longest))
	for id := range longest {
		routeIDs = append(routeIDs, id)
	}
	sort.Strings(routeIDs)

	var out []RouteStop
	for _, routeID := range routeIDs {
		stopTimes := append([]gtfs.ScheduledStopTime(nil), longest[routeID].StopTimes...)
		sort.SliceStable(stopTimes, func(i, j int) bool {
			return stopTimes[i].StopSequence < stopTimes[j].StopSequence
		})
		ordinal := int64(0)
		for _, st := range stopTimes {
			if st.Stop == nil {
				continue
			}
			ordinal++
			out = append(out, RouteStop{RouteID: routeID, StopID: st.Stop.Id, Ordinal: ordinal})
		}
	}
	return out
}

func (c *Client) insertRouteStops(ctx context.Context, routeStops []RouteStop) error {
	return c.inTx(ctx, "insert_route_stops", func(q *Queries) error {
		for _, rs := range routeStops {
			if err := q.CreateRouteStop(ctx, rs); err != nil {
				return err
			}
		}
		return nil
	})
}

const serviceDateLayout = "20060102"

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func toNullInt64(i int64) sql.NullInt64 {
	if i != 0 {
		return sql.NullInt64{Int64: i, Valid: true}
	}
	return sql.NullInt64{}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func pickFirstAvailable(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
