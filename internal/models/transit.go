package models

// Stop is a physical bus stop. Identity is ID.
type Stop struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Route is a bus line.
type Route struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RouteStop places a stop on a route. Ordinals are positive and strictly
// increasing in the direction of travel.
type RouteStop struct {
	RouteID string `json:"routeId"`
	StopID  string `json:"stopId"`
	Ordinal int    `json:"ordinal"`
}

// UnknownStopsRemaining marks a prediction whose stop distance is not known.
const UnknownStopsRemaining = -1

// ArrivalPrediction is a single upcoming arrival of a route at a stop.
type ArrivalPrediction struct {
	RouteID        string `json:"routeId"`
	RouteLabel     string `json:"routeLabel"`
	ETAMinutes     int    `json:"etaMinutes"`
	StopsRemaining int    `json:"stopsRemaining"`
}

// RouteCandidate is a route that serves the boarding stop before the
// alighting stop.
type RouteCandidate struct {
	Route         Route `json:"route"`
	BoardStop     Stop  `json:"boardStop"`
	AlightStop    Stop  `json:"alightStop"`
	BoardOrdinal  int   `json:"boardOrdinal"`
	AlightOrdinal int   `json:"alightOrdinal"`
	HopCount      int   `json:"hopCount"`
}

// Valid reports whether the candidate travels forward along the route.
func (c RouteCandidate) Valid() bool {
	return c.BoardOrdinal > 0 && c.BoardOrdinal < c.AlightOrdinal
}

// ScheduledDeparture is a timetabled departure of a route from a stop.
// SecondsOfDay may exceed 86400 for trips that run past midnight.
type ScheduledDeparture struct {
	RouteID      string
	RouteLabel   string
	SecondsOfDay int
}

// BusLocation is the reported position of a bus approaching a stop.
type BusLocation struct {
	RouteNo     string  `json:"routeNo"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	StationName string  `json:"stationName"`
	RouteType   string  `json:"routeType"`
	VehicleNo   string  `json:"vehicleNo,omitempty"`
}

// LivePath is a predicted bus that reaches the destination stop after
// leaving the origin stop.
type LivePath struct {
	RouteID        string `json:"routeId"`
	RouteLabel     string `json:"routeLabel"`
	ETAMinutes     int    `json:"etaMinutes"`
	StopsRemaining int    `json:"stopsRemaining"`
	HopCount       int    `json:"hopCount"`
}
