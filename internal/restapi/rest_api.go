// Package restapi exposes the itinerary engine over HTTP.
package restapi

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Dreaming-Lion/Re-Route/internal/app"
)

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
	validate    *validator.Validate
}

// NewRestAPI builds the handlers around application. The rate limiter
// allows Config.RateLimit requests per second for each API key.
func NewRestAPI(application *app.Application) *RestAPI {
	return &RestAPI{
		Application: application,
		rateLimiter: NewRateLimitMiddleware(application.Config.RateLimit, time.Second,
			application.Config.ExemptApiKeys, application.Clock),
		validate: newValidator(),
	}
}

// Shutdown stops background work owned by the API.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}
