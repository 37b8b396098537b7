package restapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/Dreaming-Lion/Re-Route/internal/app"
	"github.com/Dreaming-Lion/Re-Route/internal/appconf"
	"github.com/Dreaming-Lion/Re-Route/internal/clock"
	"github.com/Dreaming-Lion/Re-Route/internal/gtfs"
	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
	"github.com/Dreaming-Lion/Re-Route/internal/planner"
	"github.com/Dreaming-Lion/Re-Route/internal/stations"
	"github.com/Dreaming-Lion/Re-Route/internal/topology"
)

const testAPIKey = "TEST"

// Route R1 runs S1 -> S2 -> S3, roughly 1.1 km apart.
var testFeed = map[string]string{
	"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\nA,Cheongju Bus,http://example.com,Asia/Seoul\n",
	"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\nR1,A,710,City Loop,3\n",
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
		"S1,City Hall,36.6400,127.4800\n" +
		"S2,Market,36.6500,127.4900\n" +
		"S3,Terminal,36.6600,127.5000\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"WK,1,1,1,1,1,1,1,20260101,20261231\n",
	"trips.txt": "route_id,service_id,trip_id\nR1,WK,T1\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,08:00:00,08:00:00,S1,1\n" +
		"T1,08:05:00,08:05:00,S2,2\n" +
		"T1,08:10:00,08:10:00,S3,3\n",
}

func writeTestFeed(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range testFeed {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "feed.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

// fakeArrivals serves fixed predictions per stop and counts calls.
type fakeArrivals struct {
	mu     sync.Mutex
	byStop map[string][]models.ArrivalPrediction
	calls  int
}

func (f *fakeArrivals) Arrivals(_ context.Context, stopID string) []models.ArrivalPrediction {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.byStop[stopID]
}

func testNow() time.Time {
	kst, _ := time.LoadLocation("Asia/Seoul")
	return time.Date(2026, 3, 2, 8, 0, 0, 0, kst)
}

type testAPIOption func(*app.Application)

func createTestApi(t *testing.T, opts ...testAPIOption) *RestAPI {
	t.Helper()
	ctx := context.Background()

	manager, err := gtfs.InitManager(ctx, gtfs.Config{
		GtfsURL:      writeTestFeed(t),
		GTFSDataPath: ":memory:",
		Env:          appconf.Test,
	})
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)

	m := metrics.New()
	c := clock.NewMockClock(testNow())
	cache := topology.NewCache(manager, topology.WithMetrics(m))
	filter := topology.NewFilter(manager, cache, manager, manager, nil, m)
	resolver := stations.NewResolver(manager, nil)
	provider := &fakeArrivals{byStop: map[string][]models.ArrivalPrediction{
		"S1": {
			{RouteID: "R1", RouteLabel: "710", ETAMinutes: 9, StopsRemaining: 4},
			{RouteID: "R1", RouteLabel: "710", ETAMinutes: 4, StopsRemaining: 2},
		},
	}}

	application := &app.Application{
		Config: appconf.Config{
			Env:            appconf.Test,
			ApiKeys:        []string{testAPIKey},
			RateLimit:      100,
			RequestTimeout: 2 * time.Second,
		},
		Clock:       c,
		Metrics:     m,
		GtfsManager: manager,
		StopSearch:  manager,
		Stations:    resolver,
		Topology:    cache,
		Routes:      filter,
		Arrivals:    provider,
		Planner: planner.New(resolver, filter, provider, planner.Config{
			Strict:  true,
			Clock:   c,
			Metrics: m,
		}),
		LivePaths: planner.NewLivePathFinder(provider, cache, nil),
	}
	for _, opt := range opts {
		opt(application)
	}

	api := NewRestAPI(application)
	t.Cleanup(api.Shutdown)
	return api
}

func newTestServer(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// doRequest performs a request and decodes the JSON body into a generic map.
func doRequest(t *testing.T, method, url string, body io.Reader) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func dataField(t *testing.T, body map[string]any, key string) any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return data[key]
}

func listOf(t *testing.T, body map[string]any) []any {
	t.Helper()
	list, ok := dataField(t, body, "list").([]any)
	require.True(t, ok, "data.list is not an array: %v", body)
	return list
}

func entryOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	entry, ok := dataField(t, body, "entry").(map[string]any)
	require.True(t, ok, "data.entry is not an object: %v", body)
	return entry
}

type testingFatalf interface {
	Fatalf(format string, args ...any)
}

// collectAllIdsFromObjects extracts a string field from every object in list.
func collectAllIdsFromObjects(t testingFatalf, list []any, key string) (ids []string) {
	for i, item := range list {
		object, ok := item.(map[string]any)
		if !ok {
			t.Fatalf("item %d is not a map[string]any", i)
		}
		id, ok := object[key].(string)
		if !ok {
			t.Fatalf("item %d key %q is not a string: %T", i, key, object[key])
		}
		ids = append(ids, id)
	}
	return ids
}
