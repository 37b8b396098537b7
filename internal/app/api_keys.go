package app

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyFromRequest reads the key from the "key" query parameter, falling
// back to the X-API-Key header.
func APIKeyFromRequest(r *http.Request) string {
	if key := r.URL.Query().Get("key"); key != "" {
		return key
	}
	return r.Header.Get("X-API-Key")
}

func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	return app.IsInvalidAPIKey(APIKeyFromRequest(r))
}

// IsInvalidAPIKey compares in constant time. With no keys configured every
// request is accepted.
func (app *Application) IsInvalidAPIKey(key string) bool {
	if len(app.Config.ApiKeys) == 0 {
		return false
	}
	if key == "" {
		return true
	}

	for _, validKey := range app.Config.ApiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return false
		}
	}
	return true
}
