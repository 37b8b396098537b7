package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
	"github.com/Dreaming-Lion/Re-Route/internal/models"
)

// ValidationErrorData lists the rejected fields of a request.
type ValidationErrorData struct {
	FieldErrors map[string][]string `json:"fieldErrors"`
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, response models.ResponseModel) {
	setJSONResponseType(w)
	if response.Code != 0 && response.Code != http.StatusOK {
		w.WriteHeader(response.Code)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err,
			slog.String("path", r.URL.Path))
	}
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	api.sendResponse(w, r, models.NewErrorResponse(code, message, api.Clock))
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusNotFound, "resource not found")
}

func (api *RestAPI) sendUnauthorized(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusUnauthorized, "permission denied")
}

// validationErrorResponse answers 400 with the offending fields.
func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, fieldErrors map[string][]string) {
	response := models.NewErrorResponse(http.StatusBadRequest, "invalid request", api.Clock)
	response.Data = ValidationErrorData{FieldErrors: fieldErrors}
	api.sendResponse(w, r, response)
}

// serverErrorResponse logs err and answers 500 without leaking it.
func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "request failed", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())))
	api.sendError(w, r, http.StatusInternalServerError, "internal server error")
}
