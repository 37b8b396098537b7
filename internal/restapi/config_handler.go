package restapi

import (
	"net/http"
	"time"

	"github.com/Dreaming-Lion/Re-Route/internal/gtfs"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// ServiceConfig tells clients where the service operates.
type ServiceConfig struct {
	Env          string             `json:"env"`
	Region       *gtfs.RegionBounds `json:"region,omitempty"`
	StopCount    int                `json:"stopCount"`
	LiveFeed     bool               `json:"liveFeed"`
	DataLoadedAt *time.Time         `json:"dataLoadedAt,omitempty"`
}

func (api *RestAPI) configHandler(w http.ResponseWriter, r *http.Request) {
	cfg := ServiceConfig{
		Env:      api.Config.Env.String(),
		LiveFeed: !api.Config.Upstream.DisableLiveFeed && api.Config.Upstream.ServiceKey != "",
	}
	if api.GtfsManager != nil {
		cfg.Region = api.GtfsManager.RegionBounds()
		cfg.StopCount = api.GtfsManager.StopCount()
		if loaded := api.GtfsManager.LastUpdated(); !loaded.IsZero() {
			cfg.DataLoadedAt = &loaded
		}
	}
	api.sendResponse(w, r, models.NewEntryResponse(cfg, api.Clock))
}
