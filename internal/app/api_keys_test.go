package app

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dreaming-Lion/Re-Route/internal/appconf"
)

func TestIsInvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		key     string
		invalid bool
	}{
		{name: "valid key", keys: []string{"a", "b"}, key: "b", invalid: false},
		{name: "unknown key", keys: []string{"a"}, key: "c", invalid: true},
		{name: "empty key", keys: []string{"a"}, key: "", invalid: true},
		{name: "no keys configured", keys: nil, key: "", invalid: false},
		{name: "prefix is not enough", keys: []string{"abc"}, key: "ab", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &Application{Config: appconf.Config{ApiKeys: tt.keys}}
			assert.Equal(t, tt.invalid, app.IsInvalidAPIKey(tt.key))
		})
	}
}

func TestRequestHasInvalidAPIKey(t *testing.T) {
	app := &Application{Config: appconf.Config{ApiKeys: []string{"TEST"}}}

	assert.False(t, app.RequestHasInvalidAPIKey(httptest.NewRequest("GET", "/x?key=TEST", nil)))

	r := httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-API-Key", "TEST")
	assert.False(t, app.RequestHasInvalidAPIKey(r))

	assert.True(t, app.RequestHasInvalidAPIKey(httptest.NewRequest("GET", "/x", nil)))
}
