package tago

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNotStructured is returned when a payload is not JSON at all, which is
// how the portal reports key and quota errors (an XML document).
var ErrNotStructured = errors.New("upstream payload is not structured data")

// ResultOK is the header result code of a successful call.
const ResultOK = "00"

// Scalar holds a JSON value that the portal sends as a string on some
// endpoints and as a number on others. Objects and arrays decode as unset.
type Scalar struct {
	raw string
	set bool
}

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*s = Scalar{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '{', '[':
		return nil
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s.raw = strings.TrimSpace(str)
		s.set = s.raw != ""
		return nil
	default:
		s.raw = string(b)
		s.set = true
		return nil
	}
}

// ScalarOf builds a Scalar from a literal, mostly for tests.
func ScalarOf(v string) Scalar {
	v = strings.TrimSpace(v)
	return Scalar{raw: v, set: v != ""}
}

func (s Scalar) Set() bool { return s.set }

func (s Scalar) String() string { return s.raw }

// Int parses the value as a whole number. Fractional or non-numeric values
// report false.
func (s Scalar) Int() (int, bool) {
	if !s.set {
		return 0, false
	}
	if n, err := strconv.Atoi(s.raw); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s.raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// Float parses the value as a float.
func (s Scalar) Float() (float64, bool) {
	if !s.set {
		return 0, false
	}
	f, err := strconv.ParseFloat(s.raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Page is the decoded body of one portal response.
type Page[T any] struct {
	ResultCode string
	ResultMsg  string
	TotalCount int
	Items      []T
	// Malformed counts item entries that were present but not objects.
	Malformed int
}

// HeaderOK reports whether the header is absent or carries the success code.
func (p Page[T]) HeaderOK() bool {
	return p.ResultCode == "" || p.ResultCode == ResultOK
}

// Decode reads a response of the shape
//
//	{"response":{"header":{...},"body":{"items":{"item": obj | [obj...]}}}}
//
// Any level may be missing, null or an empty string; those decode to an
// empty page. items.item may be a single object or an array. The only error
// is ErrNotStructured.
func Decode[T any](payload []byte) (Page[T], error) {
	var page Page[T]

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(payload, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return page, nil
	}
	if trimmed[0] == '<' {
		return page, fmt.Errorf("%w: markup document", ErrNotStructured)
	}
	if !json.Valid(trimmed) {
		return page, fmt.Errorf("%w: invalid json", ErrNotStructured)
	}

	response := object(object(trimmed)["response"])

	header := object(response["header"])
	page.ResultCode = scalar(header["resultCode"]).String()
	page.ResultMsg = scalar(header["resultMsg"]).String()

	body := object(response["body"])
	page.TotalCount, _ = scalar(body["totalCount"]).Int()

	raw := bytes.TrimSpace(object(body["items"])["item"])
	if len(raw) == 0 {
		return page, nil
	}

	switch raw[0] {
	case '{':
		page.appendItem(raw)
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return page, nil
		}
		for _, e := range elems {
			page.appendItem(e)
		}
	}
	return page, nil
}

func (p *Page[T]) appendItem(raw json.RawMessage) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		p.Malformed++
		return
	}
	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		p.Malformed++
		return
	}
	p.Items = append(p.Items, item)
}

// object returns the members of a JSON object, or nil for anything else.
func object(b []byte) map[string]json.RawMessage {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func scalar(b []byte) Scalar {
	var s Scalar
	if len(b) == 0 {
		return s
	}
	if err := s.UnmarshalJSON(b); err != nil {
		return Scalar{}
	}
	return s
}

// ArrivalItem is one entry of the stop arrival prediction list.
type ArrivalItem struct {
	PrevStationCount Scalar `json:"arrprevstationcnt"`
	ArrivalSeconds   Scalar `json:"arrtime"`
	NodeID           Scalar `json:"nodeid"`
	NodeName         Scalar `json:"nodenm"`
	RouteID          Scalar `json:"routeid"`
	RouteNo          Scalar `json:"routeno"`
	RouteType        Scalar `json:"routetp"`
	VehicleType      Scalar `json:"vehicletp"`
}

// RouteStopItem is one entry of the route through-station list.
type RouteStopItem struct {
	RouteID   Scalar `json:"routeid"`
	NodeID    Scalar `json:"nodeid"`
	NodeName  Scalar `json:"nodenm"`
	NodeOrd   Scalar `json:"nodeord"`
	Latitude  Scalar `json:"gpslati"`
	Longitude Scalar `json:"gpslong"`
	UpDown    Scalar `json:"updowncd"`
}

// BusLocationItem is one entry of the buses-approaching-a-stop list.
type BusLocationItem struct {
	RouteNo   Scalar `json:"routenm"`
	Latitude  Scalar `json:"gpslati"`
	Longitude Scalar `json:"gpslong"`
	NodeID    Scalar `json:"nodeid"`
	NodeName  Scalar `json:"nodenm"`
	NodeOrd   Scalar `json:"nodeord"`
	RouteType Scalar `json:"routetp"`
	VehicleNo Scalar `json:"vehicleno"`
}
