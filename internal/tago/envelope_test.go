package tago

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func TestScalarInt(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		want   int
		wantOK bool
	}{
		{name: "number", json: `185`, want: 185, wantOK: true},
		{name: "string", json: `"420"`, want: 420, wantOK: true},
		{name: "padded string", json: `" 42 "`, want: 42, wantOK: true},
		{name: "integral float", json: `60.0`, want: 60, wantOK: true},
		{name: "negative", json: `-5`, want: -5, wantOK: true},
		{name: "fraction", json: `1.5`, wantOK: false},
		{name: "word", json: `"soon"`, wantOK: false},
		{name: "empty string", json: `""`, wantOK: false},
		{name: "null", json: `null`, wantOK: false},
		{name: "object", json: `{}`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Scalar
			require.NoError(t, s.UnmarshalJSON([]byte(tt.json)))
			got, ok := s.Int()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDecodeShapes(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		items     int
		malformed int
		code      string
	}{
		{name: "empty payload", payload: ``, items: 0},
		{name: "whitespace", payload: "  \n ", items: 0},
		{name: "null", payload: `null`, items: 0},
		{name: "bare array", payload: `[1,2]`, items: 0},
		{name: "no response", payload: `{}`, items: 0},
		{name: "response null", payload: `{"response":null}`, items: 0},
		{name: "no body", payload: `{"response":{"header":{"resultCode":"00"}}}`, items: 0, code: "00"},
		{name: "body empty string", payload: `{"response":{"body":""}}`, items: 0},
		{name: "items empty string", payload: `{"response":{"body":{"items":""}}}`, items: 0},
		{name: "items null", payload: `{"response":{"body":{"items":null}}}`, items: 0},
		{name: "item null", payload: `{"response":{"body":{"items":{"item":null}}}}`, items: 0},
		{name: "item empty array", payload: `{"response":{"body":{"items":{"item":[]}}}}`, items: 0},
		{name: "single object", payload: `{"response":{"body":{"items":{"item":{"routeid":"R"}}}}}`, items: 1},
		{name: "array", payload: `{"response":{"body":{"items":{"item":[{"routeid":"R"},{"routeid":"S"}]}}}}`, items: 2},
		{name: "array with junk", payload: `{"response":{"body":{"items":{"item":[{"routeid":"R"},"",null,7]}}}}`, items: 1, malformed: 3},
		{name: "error code", payload: `{"response":{"header":{"resultCode":"22","resultMsg":"LIMITED"}}}`, items: 0, code: "22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Decode[ArrivalItem]([]byte(tt.payload))
			require.NoError(t, err)
			assert.Len(t, page.Items, tt.items)
			assert.Equal(t, tt.malformed, page.Malformed)
			assert.Equal(t, tt.code, page.ResultCode)
		})
	}
}

func TestDecodeNotStructured(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "xml error document", payload: readFixture(t, "service_key_error.xml")},
		{name: "truncated json", payload: []byte(`{"response":{"body":`)},
		{name: "plain text", payload: []byte(`SERVICE ERROR`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[ArrivalItem](tt.payload)
			assert.ErrorIs(t, err, ErrNotStructured)
		})
	}
}

func TestDecodeArrivalFixture(t *testing.T) {
	page, err := Decode[ArrivalItem](readFixture(t, "arrivals_multi.json"))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HeaderOK())
	assert.Equal(t, 2, page.TotalCount)

	first := page.Items[0]
	assert.Equal(t, "CJB270000710", first.RouteID.String())
	assert.Equal(t, "710", first.RouteNo.String())
	secs, ok := first.ArrivalSeconds.Int()
	require.True(t, ok)
	assert.Equal(t, 185, secs)

	second := page.Items[1]
	assert.Equal(t, "100-1", second.RouteNo.String())
	cnt, ok := second.PrevStationCount.Int()
	require.True(t, ok)
	assert.Equal(t, 7, cnt)
}

func TestDecodeStripsByteOrderMark(t *testing.T) {
	payload := append([]byte("\xef\xbb\xbf"), readFixture(t, "arrivals_single.json")...)
	page, err := Decode[ArrivalItem](payload)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestRouteStopsFromItems(t *testing.T) {
	page, err := Decode[RouteStopItem](readFixture(t, "route_stops.json"))
	require.NoError(t, err)

	stops := routeStopsFromItems("CJB270000710", page.Items)
	require.Len(t, stops, 3)
	assert.Equal(t, "CJB283000001", stops[0].StopID)
	assert.Equal(t, "CJB283000003", stops[1].StopID)
	assert.Equal(t, "CJB283000002", stops[2].StopID)
	for i, s := range stops {
		assert.Equal(t, i+1, s.Ordinal)
		assert.Equal(t, "CJB270000710", s.RouteID)
	}
}
