package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/Dreaming-Lion/Re-Route/internal/app"
	"github.com/Dreaming-Lion/Re-Route/internal/appconf"
	"github.com/Dreaming-Lion/Re-Route/internal/gtfs"
	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/restapi"
)

const (
	shutdownTimeout    = 30 * time.Second
	dbStatsInterval    = 15 * time.Second
	staticAuthKeyEnv   = "GTFS_AUTH_HEADER"
	staticAuthValueEnv = "GTFS_AUTH_VALUE"
)

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	cfg, gtfsCfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(os.Stdout, level).With(slog.String("component", "main"))
	slog.SetDefault(logger)

	coreApp, err := BuildApplication(cfg, gtfsCfg)
	if err != nil {
		logging.LogError(logger, "failed to build application", err)
		os.Exit(1)
	}

	srv, api := CreateServer(coreApp, cfg)
	coreApp.Metrics.StartDBStatsCollector(coreApp.GtfsManager.GtfsDB.DB, dbStatsInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, srv, coreApp, api); err != nil {
		logging.LogError(logger, "server stopped with error", err)
		os.Exit(1)
	}
}

// Run serves until ctx is done, then shuts the server and the application
// down.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := coreApp.Logger.With(slog.String("component", "server"))

	serveErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_starting",
			slog.String("addr", srv.Addr),
			slog.String("env", coreApp.Config.Env.String()),
			slog.Bool("live_feed", liveFeedEnabled(coreApp.Config)))
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
	case <-ctx.Done():
		logging.LogOperation(logger, "server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		runErr = srv.Shutdown(shutdownCtx)
		cancel()
	}

	api.Shutdown()
	if coreApp.Metrics != nil {
		coreApp.Metrics.Shutdown()
	}
	if coreApp.GtfsManager != nil {
		coreApp.GtfsManager.Shutdown()
	}
	logging.LogOperation(logger, "server_stopped")
	return runErr
}

// loadConfig applies, in increasing precedence: defaults, the -config file,
// environment variables, then explicitly set flags.
func loadConfig(args []string) (appconf.Config, gtfs.Config, error) {
	fs := flag.NewFlagSet("reroute", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML or JSON config file")
	port := fs.Int("port", 0, "API server port")
	env := fs.String("env", "", "development|test|production")
	apiKeys := fs.String("api-keys", "", "comma separated API keys")
	exemptKeys := fs.String("exempt-api-keys", "", "comma separated keys exempt from rate limiting")
	rateLimit := fs.Int("rate-limit", 0, "requests per second per API key")
	verbose := fs.Bool("verbose", false, "debug logging")
	gtfsPath := fs.String("gtfs", "", "GTFS static feed: local zip or http(s) URL")
	dataPath := fs.String("data-path", "", "SQLite database path")
	serviceKey := fs.String("tago-key", "", "upstream API service key")
	cityCode := fs.String("city-code", "", "upstream city code")
	if err := fs.Parse(args); err != nil {
		return appconf.Config{}, gtfs.Config{}, err
	}

	cfg := appconf.Defaults()
	if *configPath != "" {
		fc, err := appconf.LoadFromFile(*configPath)
		if err != nil {
			return appconf.Config{}, gtfs.Config{}, err
		}
		cfg = fc.ToAppConfig()
	}

	applyEnv(&cfg)

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "env":
			e, err := appconf.ParseEnvironment(*env)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Env = e
		case "api-keys":
			cfg.ApiKeys = ParseAPIKeys(*apiKeys)
		case "exempt-api-keys":
			cfg.ExemptApiKeys = ParseAPIKeys(*exemptKeys)
		case "rate-limit":
			cfg.RateLimit = *rateLimit
		case "verbose":
			cfg.Verbose = *verbose
		case "gtfs":
			cfg.GtfsPath = *gtfsPath
		case "data-path":
			cfg.DataPath = *dataPath
		case "tago-key":
			cfg.Upstream.ServiceKey = *serviceKey
		case "city-code":
			cfg.Upstream.CityCode = *cityCode
		}
	})
	if flagErr != nil {
		return appconf.Config{}, gtfs.Config{}, flagErr
	}

	if cfg.GtfsPath == "" {
		return appconf.Config{}, gtfs.Config{}, fmt.Errorf("%w: a GTFS feed is required (-gtfs or gtfs-path)", appconf.ErrInvalidConfig)
	}

	gtfsCfg := gtfs.Config{
		GtfsURL:               cfg.GtfsPath,
		StaticAuthHeaderKey:   os.Getenv(staticAuthKeyEnv),
		StaticAuthHeaderValue: os.Getenv(staticAuthValueEnv),
		GTFSDataPath:          cfg.DataPath,
		Env:                   cfg.Env,
		Verbose:               cfg.Verbose,
	}
	return cfg, gtfsCfg, nil
}

// applyEnv overlays REROUTE_* and TAGO_* environment variables.
func applyEnv(cfg *appconf.Config) {
	if v := os.Getenv("REROUTE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("REROUTE_ENV"); v != "" {
		if e, err := appconf.ParseEnvironment(v); err == nil {
			cfg.Env = e
		}
	}
	if v := os.Getenv("REROUTE_API_KEYS"); v != "" {
		cfg.ApiKeys = ParseAPIKeys(v)
	}
	if v := os.Getenv("REROUTE_GTFS_PATH"); v != "" {
		cfg.GtfsPath = v
	}
	if v := os.Getenv("REROUTE_DATA_PATH"); v != "" {
		cfg.DataPath = v
	}
	if v := os.Getenv("TAGO_SERVICE_KEY"); v != "" {
		cfg.Upstream.ServiceKey = v
	}
	if v := os.Getenv("TAGO_CITY_CODE"); v != "" {
		cfg.Upstream.CityCode = v
	}
}
