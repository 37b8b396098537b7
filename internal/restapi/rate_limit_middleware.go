package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Dreaming-Lion/Re-Route/internal/app"
	"github.com/Dreaming-Lion/Re-Route/internal/clock"
	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

const (
	anonymousClientKey  = "__no_key__"
	limiterIdleTimeout  = 10 * time.Minute
	limiterCleanupEvery = 5 * time.Minute
)

type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// RateLimitMiddleware limits requests per API key. Requests without a key
// share a single bucket.
type RateLimitMiddleware struct {
	limiters    map[string]*rateLimitClient
	mu          sync.RWMutex
	rateLimit   rate.Limit
	refill      time.Duration
	burstSize   int
	cleanupTick *time.Ticker
	exemptKeys  map[string]bool
	stopChan    chan struct{}
	stopOnce    sync.Once
	clock       clock.Clock
	logger      *slog.Logger
}

// NewRateLimitMiddleware allows ratePerInterval requests per interval for
// each key, with a burst of the same size. A zero rate rejects everything;
// a negative rate disables limiting.
func NewRateLimitMiddleware(ratePerInterval int, interval time.Duration, exemptKeys []string, c clock.Clock) *RateLimitMiddleware {
	var limit rate.Limit
	var refill time.Duration
	switch {
	case ratePerInterval < 0:
		limit = rate.Inf
	case ratePerInterval == 0:
		limit = 0
	default:
		refill = interval / time.Duration(ratePerInterval)
		limit = rate.Every(refill)
	}

	if c == nil {
		c = clock.RealClock{}
	}

	exempt := make(map[string]bool)
	for _, key := range exemptKeys {
		if k := strings.TrimSpace(key); k != "" {
			exempt[k] = true
		}
	}

	rl := &RateLimitMiddleware{
		limiters:    make(map[string]*rateLimitClient),
		rateLimit:   limit,
		refill:      refill,
		burstSize:   ratePerInterval,
		cleanupTick: time.NewTicker(limiterCleanupEvery),
		exemptKeys:  exempt,
		stopChan:    make(chan struct{}),
		clock:       c,
		logger:      slog.Default().With(slog.String("component", "rate_limiter")),
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return rl.rateLimitHandler
}

// getLimiter returns the limiter for apiKey, creating it on first use, and
// refreshes its last-seen time.
func (rl *RateLimitMiddleware) getLimiter(apiKey string) *rate.Limiter {
	now := rl.clock.Now().UnixNano()

	rl.mu.RLock()
	if client, ok := rl.limiters[apiKey]; ok {
		client.lastSeen.Store(now)
		rl.mu.RUnlock()
		return client.limiter
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if client, ok := rl.limiters[apiKey]; ok {
		client.lastSeen.Store(now)
		return client.limiter
	}

	client := &rateLimitClient{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
	client.lastSeen.Store(now)
	rl.limiters[apiKey] = client
	return client.limiter
}

func (rl *RateLimitMiddleware) rateLimitHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := app.APIKeyFromRequest(r)
		if apiKey == "" {
			apiKey = anonymousClientKey
		}

		if rl.exemptKeys[apiKey] {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.getLimiter(apiKey).Allow() {
			rl.sendRateLimitExceeded(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) retryAfter() time.Duration {
	switch rl.rateLimit {
	case 0:
		return time.Hour
	case rate.Inf:
		return time.Second
	default:
		return max(rl.refill, time.Second)
	}
}

func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(rl.retryAfter().Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	body := models.NewErrorResponse(http.StatusTooManyRequests,
		"Rate limit exceeded. Please try again later.", rl.clock)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode rate limit response", err)
	}
}

// cleanupOnce evicts limiters idle for longer than limiterIdleTimeout.
func (rl *RateLimitMiddleware) cleanupOnce() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	evicted := 0
	for key, client := range rl.limiters {
		if rl.exemptKeys[key] {
			continue
		}
		seen := client.lastSeen.Load()
		if seen == 0 {
			continue
		}
		if now.Sub(time.Unix(0, seen)) > limiterIdleTimeout {
			delete(rl.limiters, key)
			evicted++
		}
	}
	if evicted > 0 {
		rl.logger.Debug("rate_limiters_evicted", slog.Int("count", evicted))
	}
}

func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		rl.cleanupTick.Stop()
	})
}
