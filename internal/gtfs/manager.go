// Package gtfs keeps the static GTFS feed loaded: it imports the feed into
// transitdb, builds the in-memory stop index and refreshes both when the
// feed comes from a URL.
package gtfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
	"github.com/Dreaming-Lion/Re-Route/internal/stopindex"
	"github.com/Dreaming-Lion/Re-Route/transitdb"
)

// Manager owns the static data. Every read goes through staticMutex so a
// refresh never exposes a half-imported database.
type Manager struct {
	config      Config
	isLocalFile bool
	logger      *slog.Logger

	GtfsDB       *transitdb.Client
	stopIndex    *stopindex.Index
	regionBounds *RegionBounds
	lastUpdated  time.Time
	isHealthy    bool

	staticMutex       sync.RWMutex
	staticUpdateMutex sync.Mutex
	shutdownChan      chan struct{}
	shutdownOnce      sync.Once
	wg                sync.WaitGroup
}

// InitManager opens the database, imports the feed and, for URL sources,
// starts the periodic refresh.
func InitManager(ctx context.Context, config Config) (*Manager, error) {
	manager := &Manager{
		config:       config,
		isLocalFile:  config.isLocalFile(),
		logger:       slog.Default().With(slog.String("component", "gtfs_manager")),
		shutdownChan: make(chan struct{}),
	}

	db, err := transitdb.NewClient(transitdb.NewConfig(config.GTFSDataPath, config.Env, config.Verbose))
	if err != nil {
		return nil, fmt.Errorf("failed to create GTFS database client: %w", err)
	}
	manager.GtfsDB = db

	if err := manager.ForceUpdate(ctx); err != nil {
		logging.SafeCloseWithLogging(db, manager.logger, "transitdb")
		return nil, err
	}

	if !manager.isLocalFile {
		manager.wg.Add(1)
		go manager.updateStaticGTFS()
	}
	return manager, nil
}

func (manager *Manager) rawGtfsData(ctx context.Context) ([]byte, error) {
	if manager.isLocalFile {
		b, err := os.ReadFile(manager.config.GtfsURL)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w", err)
		}
		return b, nil
	}
	return transitdb.FetchFeed(ctx, manager.config.GtfsURL,
		manager.config.StaticAuthHeaderKey, manager.config.StaticAuthHeaderValue)
}

// ForceUpdate reloads the feed. The download happens without holding the
// lock; the import and index swap happen under it. On failure the previous
// data keeps serving.
func (manager *Manager) ForceUpdate(ctx context.Context) error {
	manager.staticUpdateMutex.Lock()
	defer manager.staticUpdateMutex.Unlock()

	b, err := manager.rawGtfsData(ctx)
	if err != nil {
		logging.LogError(manager.logger, "Error reading GTFS data", err,
			slog.String("source", manager.config.GtfsURL))
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	manager.staticMutex.Lock()
	defer manager.staticMutex.Unlock()

	if err := manager.GtfsDB.Import(ctx, b, manager.config.GtfsURL); err != nil {
		manager.isHealthy = manager.stopIndex != nil
		return fmt.Errorf("error importing GTFS data: %w", err)
	}

	index, err := stopindex.Load(ctx, manager.GtfsDB)
	if err != nil {
		manager.isHealthy = manager.stopIndex != nil
		return err
	}
	stops, err := manager.GtfsDB.AllStops(ctx)
	if err != nil {
		return err
	}

	manager.stopIndex = index
	manager.regionBounds = ComputeRegionBounds(stops)
	manager.lastUpdated = time.Now()
	manager.isHealthy = true

	logging.LogOperation(manager.logger, "gtfs_static_data_loaded",
		slog.String("source", manager.config.GtfsURL),
		slog.Int("stops", index.Len()))
	return nil
}

func (manager *Manager) updateStaticGTFS() {
	defer manager.wg.Done()

	logger := slog.Default().With(slog.String("component", "gtfs_static_updater"))

	ticker := time.NewTicker(manager.config.refreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			err := manager.ForceUpdate(ctx)
			cancel()
			if err != nil {
				logging.LogError(logger, "Error updating GTFS data", err,
					slog.String("source", manager.config.GtfsURL))
			}
		case <-manager.shutdownChan:
			logging.LogOperation(logger, "shutting_down_static_gtfs_updates")
			return
		}
	}
}

// Shutdown stops the refresh loop and closes the database.
func (manager *Manager) Shutdown() {
	manager.shutdownOnce.Do(func() {
		close(manager.shutdownChan)
		manager.wg.Wait()
		if manager.GtfsDB != nil {
			logging.SafeCloseWithLogging(manager.GtfsDB, manager.logger, "transitdb")
		}
	})
}

func (manager *Manager) IsHealthy() bool {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.isHealthy
}

func (manager *Manager) MarkHealthy() {
	manager.staticMutex.Lock()
	defer manager.staticMutex.Unlock()
	manager.isHealthy = true
}

func (manager *Manager) MarkUnhealthy() {
	manager.staticMutex.Lock()
	defer manager.staticMutex.Unlock()
	manager.isHealthy = false
}

func (manager *Manager) LastUpdated() time.Time {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.lastUpdated
}

// RegionBounds returns nil when no stops are loaded.
func (manager *Manager) RegionBounds() *RegionBounds {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.regionBounds
}

func (manager *Manager) StopCount() int {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	if manager.stopIndex == nil {
		return 0
	}
	return manager.stopIndex.Len()
}

func (manager *Manager) StopByID(ctx context.Context, id string) (models.Stop, bool, error) {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	if manager.stopIndex == nil {
		return models.Stop{}, false, nil
	}
	return manager.stopIndex.StopByID(ctx, id)
}

func (manager *Manager) StopsWithinRadius(ctx context.Context, lat, lon, radiusMeters float64) ([]models.Stop, error) {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	if manager.stopIndex == nil {
		return nil, nil
	}
	return manager.stopIndex.StopsWithinRadius(ctx, lat, lon, radiusMeters)
}

func (manager *Manager) RoutesServing(ctx context.Context, stopA, stopB string) ([]string, error) {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.GtfsDB.RoutesServing(ctx, stopA, stopB)
}

func (manager *Manager) RouteIDs(ctx context.Context) ([]string, error) {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.GtfsDB.RouteIDs(ctx)
}

func (manager *Manager) StopsOf(ctx context.Context, routeID string) ([]models.RouteStop, error) {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.GtfsDB.StopsOf(ctx, routeID)
}

func (manager *Manager) RouteName(ctx context.Context, routeID string) (string, bool) {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.GtfsDB.RouteName(ctx, routeID)
}

func (manager *Manager) DeparturesAt(ctx context.Context, stopID string, serviceDate time.Time) ([]models.ScheduledDeparture, error) {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.GtfsDB.DeparturesAt(ctx, stopID, serviceDate)
}

func (manager *Manager) SearchStops(ctx context.Context, query string, limit int) ([]models.Stop, error) {
	manager.staticMutex.RLock()
	defer manager.staticMutex.RUnlock()
	return manager.GtfsDB.SearchStops(ctx, query, limit)
}
