package models

type StepKind string

const (
	StepWalk StepKind = "walk"
	StepBus  StepKind = "bus"
)

// Labels used for the endpoints of an itinerary.
const (
	OriginLabel      = "origin"
	DestinationLabel = "destination"
)

// ItineraryStep is one leg of an itinerary. RouteLabel and WaitMin are only
// set on bus steps.
type ItineraryStep struct {
	Kind        StepKind `json:"type"`
	RouteLabel  string   `json:"routeLabel,omitempty"`
	DurationMin int      `json:"durationMin"`
	WaitMin     int      `json:"waitMin,omitempty"`
	From        string   `json:"from"`
	To          string   `json:"to"`
}

// WalkStep builds a walking leg.
func WalkStep(minutes int, from, to string) ItineraryStep {
	return ItineraryStep{Kind: StepWalk, DurationMin: minutes, From: from, To: to}
}

// BusStep builds a riding leg.
func BusStep(routeLabel string, minutes, wait int, from, to string) ItineraryStep {
	return ItineraryStep{
		Kind:        StepBus,
		RouteLabel:  routeLabel,
		DurationMin: minutes,
		WaitMin:     wait,
		From:        from,
		To:          to,
	}
}

// Itinerary is the recommendation returned to callers. It is either a
// walk/bus/walk sequence or a single walk step.
type Itinerary struct {
	TotalMinutes int             `json:"totalMinutes"`
	Steps        []ItineraryStep `json:"steps"`
	ETALabel     string          `json:"eta"`
	OriginMarker OriginMarker    `json:"originMarker"`
	Polyline     string          `json:"polyline,omitempty"`
}

// OriginMarker places the trip's starting point on a map.
type OriginMarker struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
}

// HasBus reports whether the itinerary contains a bus leg.
func (it Itinerary) HasBus() bool {
	for _, s := range it.Steps {
		if s.Kind == StepBus {
			return true
		}
	}
	return false
}

// NearbyStation is a stop annotated with its distance from a query point.
type NearbyStation struct {
	Stop           Stop    `json:"stop"`
	DistanceMeters float64 `json:"distanceMeters"`
	WalkMinutes    int     `json:"walkMinutes"`
}

// SearchRequest is the body accepted by the itinerary search endpoint.
// Fields are pointers so a missing coordinate is distinguishable from zero.
type SearchRequest struct {
	OriginLat *float64 `json:"originLat" validate:"required,latitude"`
	OriginLng *float64 `json:"originLng" validate:"required,longitude"`
	DestLat   *float64 `json:"destLat" validate:"required,latitude"`
	DestLng   *float64 `json:"destLng" validate:"required,longitude"`
}
