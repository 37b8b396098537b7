package restapi

import (
	"net/http"
	"strings"

	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// arrivalsHandler returns normalized predictions for one stop.
func (api *RestAPI) arrivalsHandler(w http.ResponseWriter, r *http.Request) {
	stopID := strings.TrimSpace(r.PathValue("stopID"))
	if stopID == "" {
		api.validationErrorResponse(w, r, map[string][]string{"stopID": {"is required"}})
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	if _, ok := api.Stations.Stop(ctx, stopID); !ok {
		api.sendNotFound(w, r)
		return
	}

	preds := api.Arrivals.Arrivals(ctx, stopID)
	api.sendResponse(w, r, models.NewListResponse(preds, false, api.Clock))
}
