package restapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// withAPIKey rejects requests whose key is not configured, then applies the
// per-key rate limit.
func (api *RestAPI) withAPIKey(handler http.HandlerFunc) http.Handler {
	limited := api.rateLimiter.Handler()(handler)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

func (api *RestAPI) handle(mux *http.ServeMux, pattern string, cacheSeconds int, handler http.HandlerFunc) {
	mux.Handle(pattern, CacheControlMiddleware(cacheSeconds, api.withAPIKey(handler)))
}

// SetRoutes registers every endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", api.healthHandler)
	if api.Application != nil && api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	api.handle(mux, "GET /api/routing/search", cacheDisabled, api.searchHandler)
	api.handle(mux, "POST /api/routing/search", cacheDisabled, api.searchHandler)
	api.handle(mux, "GET /api/routing/stations/nearby", cacheStatic, api.nearbyStationsHandler)
	api.handle(mux, "GET /api/routing/stations/search", cacheStatic, api.stationSearchHandler)
	api.handle(mux, "GET /api/routing/route", cacheStatic, api.routesBetweenHandler)
	api.handle(mux, "GET /api/arrivals/{stopID}", cacheLive, api.arrivalsHandler)
	api.handle(mux, "GET /api/bus/realtime/path", cacheLive, api.livePathHandler)
	api.handle(mux, "GET /api/realtime/gps", cacheLive, api.busLocationsHandler)
	api.handle(mux, "GET /api/config", cacheStatic, api.configHandler)
}
