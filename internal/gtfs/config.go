package gtfs

import (
	"strings"
	"time"

	"github.com/Dreaming-Lion/Re-Route/internal/appconf"
)

const defaultRefreshInterval = 24 * time.Hour

// Config holds the static feed settings for the manager.
type Config struct {
	// GtfsURL is an http(s) URL or a local zip path.
	GtfsURL               string
	StaticAuthHeaderKey   string
	StaticAuthHeaderValue string
	GTFSDataPath          string
	Env                   appconf.Environment
	Verbose               bool
	// RefreshInterval applies to URL sources only. Zero means daily.
	RefreshInterval time.Duration
}

func (config Config) isLocalFile() bool {
	return !strings.HasPrefix(config.GtfsURL, "http://") && !strings.HasPrefix(config.GtfsURL, "https://")
}

func (config Config) refreshInterval() time.Duration {
	if config.RefreshInterval <= 0 {
		return defaultRefreshInterval
	}
	return config.RefreshInterval
}
