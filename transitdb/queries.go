package transitdb

import (
	"context"
	"database/sql"
)

type Route struct {
	ID        string
	AgencyID  string
	ShortName sql.NullString
	LongName  sql.NullString
	Type      int64
}

type Stop struct {
	ID   string
	Code sql.NullString
	Name sql.NullString
	Lat  float64
	Lon  float64
}

type RouteStop struct {
	RouteID string
	StopID  string
	Ordinal int64
}

type ImportMetadata struct {
	FileHash   string
	ImportTime int64
	FileSource string
}

const createRoute = `
INSERT INTO routes (id, agency_id, short_name, long_name, type)
VALUES (?, ?, ?, ?, ?)
`

type CreateRouteParams struct {
	ID        string
	AgencyID  string
	ShortName sql.NullString
	LongName  sql.NullString
	Type      int64
}

func (q *Queries) CreateRoute(ctx context.Context, arg CreateRouteParams) error {
	_, err := q.exec(ctx, createRoute, arg.ID, arg.AgencyID, arg.ShortName, arg.LongName, arg.Type)
	return err
}

const createStop = `
INSERT INTO stops (id, code, name, lat, lon)
VALUES (?, ?, ?, ?, ?)
`

type CreateStopParams struct {
	ID   string
	Code sql.NullString
	Name sql.NullString
	Lat  float64
	Lon  float64
}

func (q *Queries) CreateStop(ctx context.Context, arg CreateStopParams) error {
	_, err := q.exec(ctx, createStop, arg.ID, arg.Code, arg.Name, arg.Lat, arg.Lon)
	return err
}

// A stop visited twice by the same route keeps its first ordinal.
const createRouteStop = `
INSERT OR IGNORE INTO route_stops (route_id, stop_id, ordinal)
VALUES (?, ?, ?)
`

func (q *Queries) CreateRouteStop(ctx context.Context, arg RouteStop) error {
	_, err := q.exec(ctx, createRouteStop, arg.RouteID, arg.StopID, arg.Ordinal)
	return err
}

const createCalendar = `
INSERT INTO calendar (
    id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, start_date, end_date
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateCalendarParams struct {
	ID        string
	Monday    int64
	Tuesday   int64
	Wednesday int64
	Thursday  int64
	Friday    int64
	Saturday  int64
	Sunday    int64
	StartDate string
	EndDate   string
}

func (q *Queries) CreateCalendar(ctx context.Context, arg CreateCalendarParams) error {
	_, err := q.exec(ctx, createCalendar,
		arg.ID,
		arg.Monday,
		arg.Tuesday,
		arg.Wednesday,
		arg.Thursday,
		arg.Friday,
		arg.Saturday,
		arg.Sunday,
		arg.StartDate,
		arg.EndDate,
	)
	return err
}

const createCalendarDate = `
INSERT OR REPLACE INTO calendar_dates (service_id, date, exception_type)
VALUES (?, ?, ?)
`

type CreateCalendarDateParams struct {
	ServiceID     string
	Date          string
	ExceptionType int64
}

func (q *Queries) CreateCalendarDate(ctx context.Context, arg CreateCalendarDateParams) error {
	_, err := q.exec(ctx, createCalendarDate, arg.ServiceID, arg.Date, arg.ExceptionType)
	return err
}

const createTrip = `
INSERT INTO trips (id, route_id, service_id, direction_id)
VALUES (?, ?, ?, ?)
`

type CreateTripParams struct {
	ID          string
	RouteID     string
	ServiceID   string
	DirectionID sql.NullInt64
}

func (q *Queries) CreateTrip(ctx context.Context, arg CreateTripParams) error {
	_, err := q.exec(ctx, createTrip, arg.ID, arg.RouteID, arg.ServiceID, arg.DirectionID)
	return err
}

type CreateStopTimeParams struct {
	TripID        string
	StopID        string
	StopSequence  int64
	ArrivalTime   int64
	DepartureTime int64
}

const getImportMetadata = `
SELECT file_hash, import_time, file_source FROM import_metadata WHERE id = 1
`

func (q *Queries) GetImportMetadata(ctx context.Context) (ImportMetadata, error) {
	var i ImportMetadata
	err := q.queryRow(ctx, getImportMetadata).Scan(&i.FileHash, &i.ImportTime, &i.FileSource)
	return i, err
}

const upsertImportMetadata = `
INSERT INTO import_metadata (id, file_hash, import_time, file_source)
VALUES (1, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    file_hash = excluded.file_hash,
    import_time = excluded.import_time,
    file_source = excluded.file_source
`

func (q *Queries) UpsertImportMetadata(ctx context.Context, arg ImportMetadata) error {
	_, err := q.exec(ctx, upsertImportMetadata, arg.FileHash, arg.ImportTime, arg.FileSource)
	return err
}

// clearOrder lists tables children first.
var clearOrder = []string{
	"stop_times",
	"trips",
	"route_stops",
	"calendar_dates",
	"calendar",
	"stops",
	"routes",
}

func (q *Queries) ClearTable(ctx context.Context, table string) error {
	// table only ever comes from clearOrder
	_, err := q.exec(ctx, "DELETE FROM "+table)
	return err
}

const listStops = `
SELECT id, code, name, lat, lon FROM stops ORDER BY id
`

func (q *Queries) ListStops(ctx context.Context) ([]Stop, error) {
	rows, err := q.query(ctx, listStops)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // closing is also checked explicitly below
	var items []Stop
	for rows.Next() {
		var i Stop
		if err := rows.Scan(&i.ID, &i.Code, &i.Name, &i.Lat, &i.Lon); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getStop = `
SELECT id, code, name, lat, lon FROM stops WHERE id = ?
`

func (q *Queries) GetStop(ctx context.Context, id string) (Stop, error) {
	var i Stop
	err := q.queryRow(ctx, getStop, id).Scan(&i.ID, &i.Code, &i.Name, &i.Lat, &i.Lon)
	return i, err
}

const getRoute = `
SELECT id, agency_id, short_name, long_name, type FROM routes WHERE id = ?
`

func (q *Queries) GetRoute(ctx context.Context, id string) (Route, error) {
	var i Route
	err := q.queryRow(ctx, getRoute, id).Scan(&i.ID, &i.AgencyID, &i.ShortName, &i.LongName, &i.Type)
	return i, err
}

const listRouteStops = `
SELECT route_id, stop_id, ordinal
FROM route_stops
WHERE route_id = ?
ORDER BY ordinal
`

func (q *Queries) ListRouteStops(ctx context.Context, routeID string) ([]RouteStop, error) {
	rows, err := q.query(ctx, listRouteStops, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // closing is also checked explicitly below
	var items []RouteStop
	for rows.Next() {
		var i RouteStop
		if err := rows.Scan(&i.RouteID, &i.StopID, &i.Ordinal); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listRoutesServingBoth = `
SELECT DISTINCT a.route_id
FROM route_stops a
JOIN route_stops b ON b.route_id = a.route_id
WHERE a.stop_id = ?1 AND b.stop_id = ?2
ORDER BY a.route_id
`

func (q *Queries) ListRoutesServingBoth(ctx context.Context, stopA, stopB string) ([]string, error) {
	rows, err := q.query(ctx, listRoutesServingBoth, stopA, stopB)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // closing is also checked explicitly below
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listRouteIDs = `
SELECT DISTINCT route_id FROM route_stops ORDER BY route_id
`

func (q *Queries) ListRouteIDs(ctx context.Context) ([]string, error) {
	rows, err := q.query(ctx, listRouteIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // closing is also checked explicitly below
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// listDeparturesForStop returns departures at a stop for services active on
// a date. ?2 is the date as YYYYMMDD and ?3 the weekday, Sunday = 0.
const listDeparturesForStop = `
SELECT
    st.departure_time,
    t.route_id,
    COALESCE(NULLIF(r.short_name, ''), NULLIF(r.long_name, ''), r.id)
FROM stop_times st
JOIN trips t ON t.id = st.trip_id
JOIN routes r ON r.id = t.route_id
WHERE st.stop_id = ?1
  AND (
    t.service_id IN (
        SELECT service_id FROM calendar_dates WHERE date = ?2 AND exception_type = 1
    )
    OR (
        t.service_id IN (
            SELECT id FROM calendar
            WHERE start_date <= ?2 AND end_date >= ?2
              AND CASE ?3
                    WHEN 0 THEN sunday
                    WHEN 1 THEN monday
                    WHEN 2 THEN tuesday
                    WHEN 3 THEN wednesday
                    WHEN 4 THEN thursday
                    WHEN 5 THEN friday
                    ELSE saturday
                  END = 1
        )
        AND t.service_id NOT IN (
            SELECT service_id FROM calendar_dates WHERE date = ?2 AND exception_type = 2
        )
    )
  )
ORDER BY st.departure_time, t.route_id
`

type ListDeparturesForStopParams struct {
	StopID  string
	Date    string
	Weekday int64
}

type ListDeparturesForStopRow struct {
	DepartureTime int64
	RouteID       string
	RouteLabel    string
}

func (q *Queries) ListDeparturesForStop(ctx context.Context, arg ListDeparturesForStopParams) ([]ListDeparturesForStopRow, error) {
	rows, err := q.query(ctx, listDeparturesForStop, arg.StopID, arg.Date, arg.Weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // closing is also checked explicitly below
	var items []ListDeparturesForStopRow
	for rows.Next() {
		var i ListDeparturesForStopRow
		if err := rows.Scan(&i.DepartureTime, &i.RouteID, &i.RouteLabel); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const searchStopsByName = `
SELECT id, code, name, lat, lon
FROM stops
WHERE name LIKE '%' || ? || '%' ESCAPE '\'
ORDER BY name, id
LIMIT ?
`

type SearchStopsByNameParams struct {
	SearchQuery string
	Limit       int64
}

func (q *Queries) SearchStopsByName(ctx context.Context, arg SearchStopsByNameParams) ([]Stop, error) {
	rows, err := q.query(ctx, searchStopsByName, arg.SearchQuery, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // closing is also checked explicitly below
	var items []Stop
	for rows.Next() {
		var i Stop
		if err := rows.Scan(&i.ID, &i.Code, &i.Name, &i.Lat, &i.Lon); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
