// Package arrivals turns upstream arrival feeds and local timetables into
// ArrivalPredictions. Every provider here degrades to an empty result
// instead of failing.
package arrivals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/metrics"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
	"github.com/Dreaming-Lion/Re-Route/internal/tago"
)

// Provider supplies arrival predictions for a stop.
type Provider interface {
	Arrivals(ctx context.Context, stopID string) []models.ArrivalPrediction
}

// LiveArrivalSource returns the raw upstream payload for a stop.
type LiveArrivalSource interface {
	RawArrivals(ctx context.Context, stopID string) ([]byte, error)
}

// Reasons an upstream item is dropped.
const (
	DropMissingSeconds  = "missing_seconds"
	DropNegativeSeconds = "negative_seconds"
	DropMissingRoute    = "missing_route"
	DropMalformedItem   = "malformed_item"
)

// SecondsToMinutes rounds a positive number of seconds up to whole minutes.
func SecondsToMinutes(seconds int) int {
	return (seconds + 59) / 60
}

// Normalize interprets one live arrival payload. It never panics; the
// returned error is tago.ErrNotStructured or a header result error, and the
// predictions are always usable.
func Normalize(payload []byte) ([]models.ArrivalPrediction, map[string]int, error) {
	page, err := tago.Decode[tago.ArrivalItem](payload)
	if err != nil {
		return nil, nil, err
	}
	if !page.HeaderOK() {
		return nil, nil, fmt.Errorf("result code %s: %s", page.ResultCode, page.ResultMsg)
	}

	var dropped map[string]int
	drop := func(reason string, n int) {
		if n == 0 {
			return
		}
		if dropped == nil {
			dropped = make(map[string]int)
		}
		dropped[reason] += n
	}
	drop(DropMalformedItem, page.Malformed)

	preds := make([]models.ArrivalPrediction, 0, len(page.Items))
	for _, item := range page.Items {
		seconds, ok := item.ArrivalSeconds.Int()
		if !ok {
			drop(DropMissingSeconds, 1)
			continue
		}
		if seconds < 0 {
			drop(DropNegativeSeconds, 1)
			continue
		}
		if !item.RouteID.Set() {
			drop(DropMissingRoute, 1)
			continue
		}

		label := item.RouteNo.String()
		if label == "" {
			label = item.RouteID.String()
		}
		remaining := models.UnknownStopsRemaining
		if n, ok := item.PrevStationCount.Int(); ok && n >= 0 {
			remaining = n
		}

		preds = append(preds, models.ArrivalPrediction{
			RouteID:        item.RouteID.String(),
			RouteLabel:     label,
			ETAMinutes:     SecondsToMinutes(seconds),
			StopsRemaining: remaining,
		})
	}
	return preds, dropped, nil
}

// Normalizer fetches live arrivals and normalizes them.
type Normalizer struct {
	source  LiveArrivalSource
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewNormalizer(source LiveArrivalSource, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Normalizer{
		source:  source,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "arrival_normalizer")),
		metrics: m,
	}
}

// Arrivals returns live predictions for stopID. Upstream failures, timeouts
// and unreadable payloads all yield an empty result.
func (n *Normalizer) Arrivals(ctx context.Context, stopID string) (preds []models.ArrivalPrediction) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("panic while normalizing arrivals",
				slog.String("stop_id", stopID),
				slog.Any("panic", r))
			preds = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	payload, err := n.source.RawArrivals(ctx, stopID)
	if err != nil {
		n.metrics.RecordUpstreamFailure("live_arrivals")
		logging.LogWarn(n.logger, "live arrival fetch failed", err, slog.String("stop_id", stopID))
		return nil
	}

	preds, dropped, err := Normalize(payload)
	if err != nil {
		n.metrics.RecordUpstreamFailure("live_arrivals")
		attrs := []any{slog.String("stop_id", stopID)}
		if errors.Is(err, tago.ErrNotStructured) {
			attrs = append(attrs, slog.Int("payload_bytes", len(payload)))
		}
		logging.LogWarn(n.logger, "live arrival payload unusable", err, attrs...)
		return nil
	}

	for reason, count := range dropped {
		n.metrics.RecordArrivalsDropped(reason, count)
		n.logger.Debug("arrival_item_dropped",
			slog.String("stop_id", stopID),
			slog.String("reason", reason),
			slog.Int("count", count))
	}
	return preds
}
