package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeHealth(w http.ResponseWriter, code int, resp HealthResponse) {
	setJSONResponseType(w)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// healthHandler answers 503 until the static feed is loaded and while the
// database cannot be reached.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	if api.Application == nil || api.GtfsManager == nil || api.GtfsManager.GtfsDB == nil || api.GtfsManager.GtfsDB.DB == nil {
		writeHealth(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Detail: "database not initialized",
		})
		return
	}

	if !api.GtfsManager.IsHealthy() {
		writeHealth(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "starting",
			Detail: "static transit data is not loaded",
		})
		return
	}

	if err := api.GtfsManager.GtfsDB.DB.PingContext(r.Context()); err != nil {
		logging.LogError(api.Logger, "transit DB ping failed", err)
		writeHealth(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Detail: "database connection failed",
		})
		return
	}

	writeHealth(w, http.StatusOK, HealthResponse{Status: "ok"})
}
