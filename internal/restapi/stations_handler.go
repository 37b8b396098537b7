package restapi

import (
	"net/http"

	"github.com/Dreaming-Lion/Re-Route/internal/geo"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// nearbyStationsHandler lists stops around lat/lon, closest first. radius
// is in meters and defaults to 500.
func (api *RestAPI) nearbyStationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fieldErrors := map[string][]string{}

	lat := requiredFloat(q, "lat", fieldErrors)
	lon := requiredFloat(q, "lon", fieldErrors)
	var radius float64
	if v := optionalFloat(q, "radius", fieldErrors); v != nil {
		radius = *v
	}
	if len(fieldErrors) == 0 && !geo.ValidCoordinate(lat, lon) {
		fieldErrors["location"] = []string{"lat/lon out of range"}
	}
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	found := api.Stations.FindNearby(ctx, lat, lon, radius)
	api.sendResponse(w, r, models.NewListResponse(found, false, api.Clock))
}

// stationSearchHandler matches stops by name.
func (api *RestAPI) stationSearchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fieldErrors := map[string][]string{}

	query := requiredString(q, "q", fieldErrors)
	limit := limitParam(q, fieldErrors)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	// One extra row tells us whether the limit cut the result.
	stops, err := api.StopSearch.SearchStops(ctx, query, limit+1)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	limitExceeded := len(stops) > limit
	if limitExceeded {
		stops = stops[:limit]
	}
	api.sendResponse(w, r, models.NewListResponse(stops, limitExceeded, api.Clock))
}

// routesBetweenHandler lists routes that run from stop "from" to stop "to".
func (api *RestAPI) routesBetweenHandler(w http.ResponseWriter, r *http.Request) {
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

	candidates := api.Routes.FilterRoutes(ctx, from, to)
	api.sendResponse(w, r, models.NewListResponse(candidates, false, api.Clock))
}
