// Package tago talks to the national public transit portal (TAGO) for live
// arrival predictions and route stop lists.
package tago

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// ErrUpstreamStatus is returned for a non-200 HTTP response.
var ErrUpstreamStatus = errors.New("upstream returned unexpected status")

const (
	DefaultBaseURL = "https://apis.data.go.kr/1613000"

	arrivalsPath      = "/ArvlInfoInqireService/getSttnAcctoArvlPrearngeInfoList"
	routeStopsPath    = "/BusRouteInfoInqireService/getRouteAcctoThrghSttnList"
	busLocationsPath  = "/BusLcInfoInqireService/getRouteAcctoSpcifySttnAccesBusLcInfo"
	arrivalsPerPage   = 50
	routeStopsLimit   = 300
	busLocationsLimit = 50

	maxBodySize = 4 * 1024 * 1024
)

type Config struct {
	BaseURL        string
	ServiceKey     string
	CityCode       string
	Timeout        time.Duration
	RequestsPerSec int
	MaxRetries     int
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	serviceKey string
	cityCode   string
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

func newHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 20
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 5 * time.Second

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
		burst = cfg.RequestsPerSec
	}

	// Portal keys are often issued pre-encoded.
	key := cfg.ServiceKey
	if strings.Contains(key, "%") {
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
	}

	return &Client{
		baseURL:    base,
		serviceKey: key,
		cityCode:   cfg.CityCode,
		timeout:    timeout,
		maxRetries: max(cfg.MaxRetries, 0),
		limiter:    rate.NewLimiter(limit, burst),
		httpClient: newHTTPClient(timeout),
		logger:     logger.With(slog.String("component", "tago_client")),
	}
}

// RawArrivals returns the unparsed arrival prediction response for a stop.
func (c *Client) RawArrivals(ctx context.Context, stopID string) ([]byte, error) {
	params := url.Values{}
	params.Set("nodeId", stopID)
	params.Set("numOfRows", fmt.Sprint(arrivalsPerPage))
	params.Set("pageNo", "1")
	return c.get(ctx, arrivalsPath, params)
}

// StopsOf returns the stops of a route ordered by their position on it.
func (c *Client) StopsOf(ctx context.Context, routeID string) ([]models.RouteStop, error) {
	params := url.Values{}
	params.Set("routeId", routeID)
	params.Set("numOfRows", fmt.Sprint(routeStopsLimit))
	params.Set("pageNo", "1")

	body, err := c.get(ctx, routeStopsPath, params)
	if err != nil {
		return nil, err
	}

	page, err := Decode[RouteStopItem](body)
	if err != nil {
		return nil, err
	}
	if !page.HeaderOK() {
		return nil, fmt.Errorf("route detail for %s: result code %s (%s)", routeID, page.ResultCode, page.ResultMsg)
	}

	return routeStopsFromItems(routeID, page.Items), nil
}

// BusLocations returns the positions of buses on routeID heading to stopID.
func (c *Client) BusLocations(ctx context.Context, routeID, stopID string) ([]models.BusLocation, error) {
	params := url.Values{}
	params.Set("routeId", routeID)
	params.Set("nodeId", stopID)
	params.Set("numOfRows", fmt.Sprint(busLocationsLimit))
	params.Set("pageNo", "1")

	body, err := c.get(ctx, busLocationsPath, params)
	if err != nil {
		return nil, err
	}

	page, err := Decode[BusLocationItem](body)
	if err != nil {
		return nil, err
	}
	if !page.HeaderOK() {
		return nil, fmt.Errorf("bus locations for %s at %s: result code %s (%s)", routeID, stopID, page.ResultCode, page.ResultMsg)
	}
	return busLocationsFromItems(page.Items), nil
}

// busLocationsFromItems skips entries without a usable position.
func busLocationsFromItems(items []BusLocationItem) []models.BusLocation {
	out := make([]models.BusLocation, 0, len(items))
	for _, it := range items {
		lat, okLat := it.Latitude.Float()
		lon, okLon := it.Longitude.Float()
		if !okLat || !okLon || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			continue
		}
		out = append(out, models.BusLocation{
			RouteNo:     it.RouteNo.String(),
			Lat:         lat,
			Lon:         lon,
			StationName: it.NodeName.String(),
			RouteType:   it.RouteType.String(),
			VehicleNo:   it.VehicleNo.String(),
		})
	}
	return out
}

func routeStopsFromItems(routeID string, items []RouteStopItem) []models.RouteStop {
	stops := make([]models.RouteStop, 0, len(items))
	for _, it := range items {
		ord, ok := it.NodeOrd.Int()
		if !ok || ord <= 0 || !it.NodeID.Set() {
			continue
		}
		stops = append(stops, models.RouteStop{
			RouteID: routeID,
			StopID:  it.NodeID.String(),
			Ordinal: ord,
		})
	}
	sort.SliceStable(stops, func(i, j int) bool { return stops[i].Ordinal < stops[j].Ordinal })
	return stops
}

// get issues a rate-limited GET, retrying transport errors and 5xx/429
// responses with exponential backoff until the client timeout elapses.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params.Set("serviceKey", c.serviceKey)
	params.Set("cityCode", c.cityCode)
	params.Set("_type", "json")
	endpoint := c.baseURL + path + "?" + params.Encode()

	var body []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		b, retryable, err := c.fetch(ctx, endpoint)
		if err != nil {
			if !retryable {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = c.timeout

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying upstream request",
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.Duration("wait", wait))
	}

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx),
		notify)
	if err != nil {
		return nil, fmt.Errorf("tago %s: %w", path, err)
	}
	return body, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("%w: %s", ErrUpstreamStatus, resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(b) > maxBodySize {
		return nil, false, fmt.Errorf("response exceeds size limit of %d bytes", maxBodySize)
	}
	return b, false, nil
}
