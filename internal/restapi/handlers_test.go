package restapi

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
)

func assertBusItinerary(t *testing.T, entry map[string]any) {
	t.Helper()
	steps, ok := entry["steps"].([]any)
	require.True(t, ok)
	require.Len(t, steps, 3)

	walk1 := steps[0].(map[string]any)
	bus := steps[1].(map[string]any)
	walk2 := steps[2].(map[string]any)

	assert.Equal(t, "walk", walk1["type"])
	assert.Equal(t, "origin", walk1["from"])
	assert.Equal(t, "City Hall", walk1["to"])

	assert.Equal(t, "bus", bus["type"])
	assert.Equal(t, "710", bus["routeLabel"])
	assert.Equal(t, float64(4), bus["waitMin"], "earliest prediction is the wait")
	assert.Equal(t, float64(4), bus["durationMin"], "two stops ridden")
	assert.Equal(t, "City Hall", bus["from"])
	assert.Equal(t, "Terminal", bus["to"])

	assert.Equal(t, "walk", walk2["type"])
	assert.Equal(t, "destination", walk2["to"])

	total := walk1["durationMin"].(float64) + bus["waitMin"].(float64) +
		bus["durationMin"].(float64) + walk2["durationMin"].(float64)
	assert.Equal(t, total, entry["totalMinutes"])
	marker, ok := entry["originMarker"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "origin", marker["label"])
	assert.Contains(t, marker, "lat")
	assert.Contains(t, marker, "lng")
	assert.NotEmpty(t, entry["polyline"])
	assert.Regexp(t, `^08:\d\d$`, entry["eta"])
}

func TestSearchHandlerPost(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	body := `{"originLat":36.6401,"originLng":127.4800,"destLat":36.6601,"destLng":127.5000}`
	resp, decoded := doRequest(t, http.MethodPost, server.URL+"/api/routing/search?key=TEST", strings.NewReader(body))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(200), decoded["code"])
	assertBusItinerary(t, entryOf(t, decoded))
	assert.Equal(t, 1.0, testutil.ToFloat64(api.Metrics.ItineraryOutcomes.WithLabelValues(metrics.OutcomeBus)))
}

func TestSearchHandlerGet(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	url := server.URL + "/api/routing/search?key=TEST&originLat=36.6401&originLng=127.48&destLat=36.6601&destLng=127.5"
	resp, decoded := doRequest(t, http.MethodGet, url, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assertBusItinerary(t, entryOf(t, decoded))
	assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"))
}

func TestSearchHandlerFarFromStopsWalks(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	body := `{"originLat":37.5,"originLng":127.0,"destLat":37.51,"destLng":127.0}`
	resp, decoded := doRequest(t, http.MethodPost, server.URL+"/api/routing/search?key=TEST", strings.NewReader(body))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := entryOf(t, decoded)
	steps := entry["steps"].([]any)
	require.Len(t, steps, 1)
	assert.Equal(t, "walk", steps[0].(map[string]any)["type"])
	assert.Equal(t, float64(0), entry["totalMinutes"])
	assert.Equal(t, "08:00", entry["eta"])
}

func TestSearchHandlerValidation(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	tests := []struct {
		name       string
		method     string
		query      string
		body       string
		errorField string
	}{
		{
			name:       "missing origin latitude",
			method:     http.MethodPost,
			body:       `{"originLng":127.48,"destLat":36.66,"destLng":127.5}`,
			errorField: "originLat",
		},
		{
			name:       "latitude out of range",
			method:     http.MethodPost,
			body:       `{"originLat":100,"originLng":127.48,"destLat":36.66,"destLng":127.5}`,
			errorField: "originLat",
		},
		{
			name:       "longitude out of range",
			method:     http.MethodPost,
			body:       `{"originLat":36.64,"originLng":127.48,"destLat":36.66,"destLng":200}`,
			errorField: "destLng",
		},
		{
			name:       "malformed body",
			method:     http.MethodPost,
			body:       `{"originLat":`,
			errorField: "body",
		},
		{
			name:       "non-numeric query parameter",
			method:     http.MethodGet,
			query:      "&originLat=abc&originLng=127.48&destLat=36.66&destLng=127.5",
			errorField: "originLat",
		},
		{
			name:       "missing query parameters",
			method:     http.MethodGet,
			errorField: "destLat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			var decoded map[string]any
			url := server.URL + "/api/routing/search?key=TEST" + tt.query
			if tt.body != "" {
				resp, decoded = doRequest(t, tt.method, url, strings.NewReader(tt.body))
			} else {
				resp, decoded = doRequest(t, tt.method, url, nil)
			}

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			fieldErrors, ok := dataField(t, decoded, "fieldErrors").(map[string]any)
			require.True(t, ok)
			assert.Contains(t, fieldErrors, tt.errorField)
		})
	}
}

func TestNearbyStationsHandler(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{
			name:     "small radius finds one stop",
			query:    "lat=36.6400&lon=127.4800&radius=100",
			expected: []string{"S1"},
		},
		{
			name:     "large radius is ordered by distance",
			query:    "lat=36.6400&lon=127.4800&radius=3000",
			expected: []string{"S1", "S2", "S3"},
		},
		{
			name:     "default radius",
			query:    "lat=36.6500&lon=127.4900",
			expected: []string{"S2"},
		},
		{
			name:     "nothing nearby",
			query:    "lat=37.5&lon=127.0",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/stations/nearby?key=TEST&"+tt.query, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			list := listOf(t, decoded)
			var ids []string
			for _, item := range list {
				stop := item.(map[string]any)["stop"].(map[string]any)
				ids = append(ids, stop["id"].(string))
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestNearbyStationsHandlerValidation(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	tests := []struct {
		name       string
		query      string
		errorField string
	}{
		{"missing lat", "lon=127.48", "lat"},
		{"bad radius", "lat=36.64&lon=127.48&radius=far", "radius"},
		{"out of range", "lat=91&lon=127.48", "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/stations/nearby?key=TEST&"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			fieldErrors := dataField(t, decoded, "fieldErrors").(map[string]any)
			assert.Contains(t, fieldErrors, tt.errorField)
		})
	}
}

func TestStationSearchHandler(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	t.Run("matches by name", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/stations/search?key=TEST&q=mark", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"S2"}, collectAllIdsFromObjects(t, listOf(t, decoded), "id"))
		assert.Equal(t, false, dataField(t, decoded, "limitExceeded"))
	})

	t.Run("limit is reported", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/stations/search?key=TEST&q=a&limit=2", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"S1", "S2"}, collectAllIdsFromObjects(t, listOf(t, decoded), "id"))
		assert.Equal(t, true, dataField(t, decoded, "limitExceeded"))
	})

	t.Run("no match is an empty list", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/stations/search?key=TEST&q=zzz", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, listOf(t, decoded))
	})

	t.Run("query is required", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/routing/stations/search?key=TEST", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad limit", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/routing/stations/search?key=TEST&q=a&limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRoutesBetweenHandler(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	t.Run("forward direction", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/route?key=TEST&from=S1&to=S3", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		list := listOf(t, decoded)
		require.Len(t, list, 1)
		candidate := list[0].(map[string]any)
		assert.Equal(t, "R1", candidate["route"].(map[string]any)["id"])
		assert.Equal(t, "710", candidate["route"].(map[string]any)["name"])
		assert.Equal(t, float64(1), candidate["boardOrdinal"])
		assert.Equal(t, float64(3), candidate["alightOrdinal"])
		assert.Equal(t, float64(2), candidate["hopCount"])
	})

	t.Run("reverse direction has no candidates", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/route?key=TEST&from=S3&to=S1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, listOf(t, decoded))
	})

	t.Run("unknown stop has no candidates", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/route?key=TEST&from=S1&to=NOPE", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, listOf(t, decoded))
	})

	t.Run("both ids required", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/routing/route?key=TEST&from=S1", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, dataField(t, decoded, "fieldErrors"), "to")
	})
}

func TestArrivalsHandler(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	t.Run("known stop", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/arrivals/S1?key=TEST", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := listOf(t, decoded)
		require.Len(t, list, 2)
		assert.Equal(t, "R1", list[0].(map[string]any)["routeId"])
		assert.Equal(t, "public, max-age=15", resp.Header.Get("Cache-Control"))
	})

	t.Run("known stop without predictions", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/arrivals/S2?key=TEST", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, listOf(t, decoded))
	})

	t.Run("unknown stop", func(t *testing.T) {
		resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/arrivals/NOPE?key=TEST", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "resource not found", decoded["text"])
		assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"))
	})
}

func TestConfigHandler(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	resp, decoded := doRequest(t, http.MethodGet, server.URL+"/api/config?key=TEST", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entry := entryOf(t, decoded)
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, float64(3), entry["stopCount"])
	assert.Equal(t, false, entry["liveFeed"])
	region, ok := entry["region"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 36.65, region["lat"].(float64), 1e-9)
	assert.InDelta(t, 127.49, region["lon"].(float64), 1e-9)
	assert.Equal(t, "public, max-age=300", resp.Header.Get("Cache-Control"))
}

func TestAPIKeyIsRequired(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	tests := []struct {
		name     string
		header   string
		query    string
		expected int
	}{
		{"no key", "", "", http.StatusUnauthorized},
		{"wrong key", "", "?key=nope", http.StatusUnauthorized},
		{"query key", "", "?key=TEST", http.StatusOK},
		{"header key", "TEST", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, server.URL+"/api/config"+tt.query, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expected, resp.StatusCode)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := createTestApi(t)
	server := newTestServer(t, api)

	api.Metrics.RecordItineraryOutcome(metrics.OutcomeWalkOnly)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "reroute_itinerary_outcomes_total")
}
