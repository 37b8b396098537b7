package webui

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/Dreaming-Lion/Re-Route/internal/appconf"
	"github.com/Dreaming-Lion/Re-Route/internal/logging"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

var debugDataTypes = []string{"config", "region", "topology", "tables", "stops", "arrivals"}

type debugData struct {
	Title     string
	Pre       string
	DataTypes []string
}

const redacted = "[redacted]"

func writeDebugData(w http.ResponseWriter, logger *slog.Logger, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := debugTemplate.Execute(w, debugData{
		Title:     title,
		Pre:       spew.Sdump(data),
		DataTypes: debugDataTypes,
	})
	if err != nil {
		logging.LogError(logger, "failed to execute debug template", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// redactedConfig hides credentials before the config is dumped.
func redactedConfig(cfg appconf.Config) appconf.Config {
	keys := make([]string, len(cfg.ApiKeys))
	for i := range keys {
		keys[i] = redacted
	}
	cfg.ApiKeys = keys
	if cfg.Upstream.ServiceKey != "" {
		cfg.Upstream.ServiceKey = redacted
	}
	return cfg
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}

	logger := logging.FromContext(r.Context())
	ctx := r.Context()

	var data any
	var title string

	switch r.URL.Query().Get("dataType") {
	case "config":
		title = "Runtime configuration"
		data = redactedConfig(webUI.Config)
	case "region":
		title = "Service region"
		data = webUI.regionData()
	case "topology":
		title = "Route topology cache"
		if webUI.Topology != nil {
			data = webUI.Topology.Snapshot()
		}
	case "tables":
		title = "Transit database row counts"
		data = webUI.tableCounts(logger)
	case "stops":
		title = "Stops matching " + r.URL.Query().Get("q")
		data = webUI.searchStops(ctx, logger, r.URL.Query().Get("q"))
	case "arrivals":
		stopID := strings.TrimSpace(r.URL.Query().Get("stopId"))
		title = "Arrivals at " + stopID
		if webUI.Arrivals != nil && stopID != "" {
			data = webUI.Arrivals.Arrivals(ctx, stopID)
		}
	default:
		title = "Choose a data type"
		data = map[string]string{
			"error": "Please use one of the following: " + strings.Join(debugDataTypes, ", ") + ".",
		}
	}

	writeDebugData(w, logger, title, data)
}

func (webUI *WebUI) regionData() map[string]any {
	out := map[string]any{}
	if webUI.GtfsManager == nil {
		return out
	}
	out["bounds"] = webUI.GtfsManager.RegionBounds()
	out["stops"] = webUI.GtfsManager.StopCount()
	out["lastUpdated"] = webUI.GtfsManager.LastUpdated()
	out["healthy"] = webUI.GtfsManager.IsHealthy()
	return out
}

func (webUI *WebUI) tableCounts(logger *slog.Logger) any {
	if webUI.GtfsManager == nil || webUI.GtfsManager.GtfsDB == nil {
		return nil
	}
	counts, err := webUI.GtfsManager.GtfsDB.TableCounts()
	if err != nil {
		logging.LogError(logger, "failed to count tables", err)
		return map[string]string{"error": "failed to count tables"}
	}
	return map[string]any{
		"counts":        counts,
		"importRuntime": webUI.GtfsManager.GtfsDB.ImportRuntime().String(),
	}
}

func (webUI *WebUI) searchStops(ctx context.Context, logger *slog.Logger, q string) any {
	if webUI.StopSearch == nil || strings.TrimSpace(q) == "" {
		return nil
	}
	stops, err := webUI.StopSearch.SearchStops(ctx, q, 50)
	if err != nil {
		logging.LogError(logger, "debug stop search failed", err)
		return map[string]string{"error": "stop search failed"}
	}
	return stops
}
