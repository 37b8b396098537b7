// Package transitdb stores static GTFS data in SQLite and answers the stop,
// route and schedule lookups the itinerary engine needs.
package transitdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bluele/gcache"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
)

const maxFeedSize = 200 * 1024 * 1024

// Client is the entry point for the store.
type Client struct {
	config        Config
	DB            *sql.DB
	Queries       *Queries
	logger        *slog.Logger
	routeNames    gcache.Cache
	importRuntime time.Duration
}

func NewClient(config Config) (*Client, error) {
	logger := slog.Default().With(slog.String("component", "transitdb"))

	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	} else if config.verbose {
		logging.LogOperation(logger, "transitdb_tables_created", slog.String("path", config.DBPath))
	}

	return &Client{
		config:     config,
		DB:         db,
		Queries:    New(db),
		logger:     logger,
		routeNames: gcache.New(config.routeNameCacheSize()).LRU().Build(),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}

// ImportRuntime reports how long the last import took.
func (c *Client) ImportRuntime() time.Duration {
	return c.importRuntime
}

// DownloadAndStore fetches a GTFS zip from url and imports it.
func (c *Client) DownloadAndStore(ctx context.Context, url, authHeaderKey, authHeaderValue string) error {
	body, err := FetchFeed(ctx, url, authHeaderKey, authHeaderValue)
	if err != nil {
		return err
	}
	return c.Import(ctx, body, url)
}

// ImportFromFile imports a local GTFS zip.
func (c *Client) ImportFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.Import(ctx, data, path)
}

// Import loads a GTFS zip held in memory. Data identical to the last import
// from the same source is skipped.
func (c *Client) Import(ctx context.Context, data []byte, source string) error {
	return c.processAndStoreGTFSDataWithSource(ctx, data, source)
}

// FetchFeed downloads a GTFS zip, capped at 200MB.
func FetchFeed(ctx context.Context, url, authHeaderKey, authHeaderValue string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GTFS request: %w", err)
	}
	if authHeaderKey != "" && authHeaderValue != "" {
		req.Header.Set(authHeaderKey, authHeaderValue)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ResponseHeaderTimeout = 30 * time.Second
	client := &http.Client{Timeout: 5 * time.Minute, Transport: transport}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		slog.Default().With(slog.String("component", "gtfs_downloader")),
		"http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download GTFS data: received HTTP status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > maxFeedSize {
		return nil, fmt.Errorf("static GTFS response exceeds size limit of %d bytes", maxFeedSize)
	}
	return body, nil
}
