package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/Dreaming-Lion/Re-Route/internal/models"
	"github.com/Dreaming-Lion/Re-Route/internal/planner"
)

const maxSearchBodyBytes = 1 << 16

// searchHandler returns the best itinerary between two coordinates. POST
// reads a JSON body; GET reads the same names from the query string.
func (api *RestAPI) searchHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest

	if r.Method == http.MethodPost {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBodyBytes))
		if err := dec.Decode(&req); err != nil {
			api.validationErrorResponse(w, r, map[string][]string{"body": {"must be a JSON object"}})
			return
		}
	} else {
		q := r.URL.Query()
		fieldErrors := map[string][]string{}
		req.OriginLat = optionalFloat(q, "originLat", fieldErrors)
		req.OriginLng = optionalFloat(q, "originLng", fieldErrors)
		req.DestLat = optionalFloat(q, "destLat", fieldErrors)
		req.DestLng = optionalFloat(q, "destLng", fieldErrors)
		if len(fieldErrors) > 0 {
			api.validationErrorResponse(w, r, fieldErrors)
			return
		}
	}

	if fieldErrors := fieldErrorsFrom(api.validate.Struct(req)); fieldErrors != nil {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	itinerary := api.Planner.ComputeBestItinerary(ctx,
		planner.Point{Lat: *req.OriginLat, Lon: *req.OriginLng},
		planner.Point{Lat: *req.DestLat, Lon: *req.DestLng})

	api.sendResponse(w, r, models.NewEntryResponse(itinerary, api.Clock))
}
