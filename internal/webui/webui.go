// Package webui serves the developer debug pages.
package webui

import (
	"net/http"

	"github.com/Dreaming-Lion/Re-Route/internal/app"
)

type WebUI struct {
	*app.Application
}

// SetWebUIRoutes registers the debug page. It answers 404 in production.
func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/", webUI.debugIndexHandler)
}
