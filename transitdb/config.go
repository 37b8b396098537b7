package transitdb

import "github.com/Dreaming-Lion/Re-Route/internal/appconf"

const defaultBulkInsertBatchSize = 500

// Config controls where the store lives and how imports behave.
type Config struct {
	// DBPath is a SQLite file path or ":memory:".
	DBPath string
	Env    appconf.Environment
	// BulkInsertBatchSize caps the rows per multi-row INSERT for stop_times.
	BulkInsertBatchSize int
	// RouteNameCacheSize bounds the LRU used by RouteName.
	RouteNameCacheSize int

	verbose bool
}

func NewConfig(dbPath string, env appconf.Environment, verbose bool) Config {
	return Config{
		DBPath:  dbPath,
		Env:     env,
		verbose: verbose,
	}
}

func (c Config) GetBulkInsertBatchSize() int {
	if c.BulkInsertBatchSize <= 0 {
		return defaultBulkInsertBatchSize
	}
	return c.BulkInsertBatchSize
}

func (c Config) routeNameCacheSize() int {
	if c.RouteNameCacheSize <= 0 {
		return 1024
	}
	return c.RouteNameCacheSize
}
