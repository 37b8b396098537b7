package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheControlMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		seconds        int
		status         int
		expectedHeader string
	}{
		{"static success", cacheStatic, http.StatusOK, "public, max-age=300"},
		{"live success", cacheLive, http.StatusOK, "public, max-age=15"},
		{"disabled", cacheDisabled, http.StatusOK, noCacheHeader},
		{"error is never cached", cacheStatic, http.StatusNotFound, noCacheHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CacheControlMiddleware(tt.seconds, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.expectedHeader, rec.Header().Get("Cache-Control"))
		})
	}
}

func TestCacheControlHeadersOnRoutes(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	tests := []struct {
		name           string
		endpoint       string
		expectedHeader string
	}{
		{"stations are static", "/api/routing/stations/nearby?key=TEST&lat=36.64&lon=127.48", "public, max-age=300"},
		{"arrivals are live", "/api/arrivals/S1?key=TEST", "public, max-age=15"},
		{"live paths are live", "/api/bus/realtime/path?key=TEST&from=S1&to=S3", "public, max-age=15"},
		{"itineraries are not cached", "/api/routing/search?key=TEST&originLat=36.64&originLng=127.48&destLat=36.66&destLng=127.5", noCacheHeader},
		{"unauthorized is not cached", "/api/config", noCacheHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.endpoint)
			assert.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedHeader, resp.Header.Get("Cache-Control"))
		})
	}
}
