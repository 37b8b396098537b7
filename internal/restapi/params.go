package restapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// requestContext bounds engine work by Config.RequestTimeout.
func (api *RestAPI) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if api.Config.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), api.Config.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

// optionalFloat parses q[name]. A missing value is nil; a malformed one is
// recorded in fieldErrors.
func optionalFloat(q url.Values, name string, fieldErrors map[string][]string) *float64 {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fieldErrors[name] = append(fieldErrors[name], "must be a number")
		return nil
	}
	return &v
}

// requiredFloat is optionalFloat that also rejects a missing value.
func requiredFloat(q url.Values, name string, fieldErrors map[string][]string) float64 {
	if strings.TrimSpace(q.Get(name)) == "" {
		fieldErrors[name] = append(fieldErrors[name], "is required")
		return 0
	}
	if v := optionalFloat(q, name, fieldErrors); v != nil {
		return *v
	}
	return 0
}

func requiredString(q url.Values, name string, fieldErrors map[string][]string) string {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		fieldErrors[name] = append(fieldErrors[name], "is required")
	}
	return v
}

// limitParam reads "limit", clamped to [1, maxSearchLimit].
func limitParam(q url.Values, fieldErrors map[string][]string) int {
	raw := strings.TrimSpace(q.Get("limit"))
	if raw == "" {
		return defaultSearchLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		fieldErrors["limit"] = append(fieldErrors["limit"], "must be a positive integer")
		return defaultSearchLimit
	}
	return min(n, maxSearchLimit)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrorsFrom flattens validator errors keyed by JSON field name. It
// returns nil when err is nil.
func fieldErrorsFrom(err error) map[string][]string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"body": {err.Error()}}
	}
	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = append(out[fe.Field()], describeTag(fe.Tag()))
	}
	return out
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "latitude":
		return "must be a latitude between -90 and 90"
	case "longitude":
		return "must be a longitude between -180 and 180"
	default:
		return "failed " + tag + " validation"
	}
}
