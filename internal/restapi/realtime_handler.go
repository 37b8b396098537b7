package restapi

import (
	"log/slog"
	"net/http"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// livePathHandler lists predicted buses at "from" that go on to "to".
func (api *RestAPI) livePathHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fieldErrors := map[string][]string{}

	from := requiredString(q, "from", fieldErrors)
	to := requiredString(q, "to", fieldErrors)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	paths := []models.LivePath{}
	if api.LivePaths != nil {
		paths = api.LivePaths.Find(ctx, from, to)
	}
	api.sendResponse(w, r, models.NewListResponse(paths, false, api.Clock))
}

// busLocationsHandler reports buses on routeId approaching stationId. An
// upstream failure or a disabled live feed yields an empty list.
func (api *RestAPI) busLocationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fieldErrors := map[string][]string{}

	routeID := requiredString(q, "routeId", fieldErrors)
	stationID := requiredString(q, "stationId", fieldErrors)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	locations := []models.BusLocation{}
	if api.BusLocations != nil {
		ctx, cancel := api.requestContext(r)
		defer cancel()

		found, err := api.BusLocations.BusLocations(ctx, routeID, stationID)
		if err != nil {
			api.Metrics.RecordUpstreamFailure("bus_location")
			logging.LogWarn(logging.FromContext(r.Context()), "bus location lookup failed", err,
				slog.String("route_id", routeID),
				slog.String("stop_id", stationID))
		} else if found != nil {
			locations = found
		}
	}
	api.sendResponse(w, r, models.NewListResponse(locations, false, api.Clock))
}
