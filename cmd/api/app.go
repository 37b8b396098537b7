package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/Dreaming-Lion/Re-Route/internal/app"
	"github.com/Dreaming-Lion/Re-Route/internal/appconf"
	"github.com/Dreaming-Lion/Re-Route/internal/arrivals"
	"github.com/Dreaming-Lion/Re-Route/internal/clock"
	"github.com/Dreaming-Lion/Re-Route/internal/gtfs"
	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
	"github.com/Dreaming-Lion/Re-Route/internal/planner"
	"github.com/Dreaming-Lion/Re-Route/internal/restapi"
	"github.com/Dreaming-Lion/Re-Route/internal/stations"
	"github.com/Dreaming-Lion/Re-Route/internal/tago"
	"github.com/Dreaming-Lion/Re-Route/internal/topology"
	"github.com/Dreaming-Lion/Re-Route/internal/webui"
)

// serviceTimeZone is where timetables and ETA labels are interpreted.
const serviceTimeZone = "Asia/Seoul"

const warmConcurrency = 4

// ParseAPIKeys splits a comma-separated key list and trims each key.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	keys := strings.Split(s, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

func liveFeedEnabled(cfg appconf.Config) bool {
	return !cfg.Upstream.DisableLiveFeed && cfg.Upstream.ServiceKey != ""
}

// BuildApplication loads the static feed and wires the engine. Route stop
// orders and live arrivals come from the upstream API when a service key is
// configured; otherwise the static feed answers both.
func BuildApplication(cfg appconf.Config, gtfsCfg gtfs.Config) (*app.Application, error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(os.Stdout, level)

	manager, err := gtfs.InitManager(context.Background(), gtfsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GTFS manager: %w", err)
	}

	loc, err := time.LoadLocation(serviceTimeZone)
	if err != nil {
		logging.LogWarn(logger, "service time zone unavailable, using UTC", err)
		loc = time.UTC
	}
	appClock := clock.InLocation{Clock: clock.RealClock{}, Location: loc}
	m := metrics.NewWithLogger(logger)

	var routeSource topology.RouteDetailSource = manager
	var live arrivals.Provider
	var locator app.BusLocator
	localTopology := true
	if liveFeedEnabled(cfg) {
		client := tago.NewClient(tago.Config{
			BaseURL:        cfg.Upstream.BaseURL,
			ServiceKey:     cfg.Upstream.ServiceKey,
			CityCode:       cfg.Upstream.CityCode,
			Timeout:        cfg.Upstream.Timeout,
			RequestsPerSec: cfg.Upstream.RequestsPerSec,
			MaxRetries:     cfg.Upstream.MaxRetries,
		}, logger)
		routeSource = client
		locator = client
		localTopology = false
		live = arrivals.NewNormalizer(client, cfg.Upstream.Timeout, logger, m)
	}

	cache := topology.NewCache(routeSource,
		topology.WithFetchTimeout(cfg.Upstream.Timeout),
		topology.WithMetrics(m),
		topology.WithLogger(logger))
	filter := topology.NewFilter(manager, cache, manager, manager, logger, m)
	resolver := stations.NewResolver(manager, logger)

	timetable := arrivals.NewTimetable(manager, appClock, cfg.Upstream.TimetableLimit, logger, m)
	var provider arrivals.Provider = timetable
	if live != nil {
		provider = arrivals.NewMerged(live, timetable)
	}

	if localTopology {
		warmTopology(logger, manager, cache)
	}

	planr := planner.New(resolver, filter, provider, planner.Config{
		Strict:  cfg.Env.Strict(),
		Clock:   appClock,
		Logger:  logger,
		Metrics: m,
	})

	return &app.Application{
		Config:       cfg,
		GtfsConfig:   gtfsCfg,
		Logger:       logger,
		Clock:        appClock,
		Metrics:      m,
		GtfsManager:  manager,
		StopSearch:   manager,
		Stations:     resolver,
		Topology:     cache,
		Routes:       filter,
		Arrivals:     provider,
		Planner:      planr,
		LivePaths:    planner.NewLivePathFinder(provider, cache, logger),
		BusLocations: locator,
	}, nil
}

// warmTopology preloads every route order from the local database.
func warmTopology(logger *slog.Logger, manager *gtfs.Manager, cache *topology.Cache) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ids, err := manager.RouteIDs(ctx)
	if err != nil {
		logging.LogWarn(logger, "topology warm-up skipped", err)
		return
	}
	start := time.Now()
	cache.Warm(ctx, ids, warmConcurrency)
	logging.LogOperation(logger, "topology_cache_warmed",
		slog.Int("routes", len(ids)),
		slog.Duration("elapsed", time.Since(start)))
}

// CreateServer builds the HTTP server and its middleware chain.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	webUI := &webui.WebUI{Application: coreApp}
	webUI.SetWebUIRoutes(mux)

	var handler http.Handler = mux
	handler = gzhttp.GzipHandler(handler)
	handler = restapi.MetricsHandler(coreApp.Metrics)(handler)
	handler = restapi.NewRequestLoggingMiddleware(coreApp.Logger)(handler)
	handler = restapi.RequestIDMiddleware(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}

	return srv, api
}
