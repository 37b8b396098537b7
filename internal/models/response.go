package models

import "github.com/Dreaming-Lion/Re-Route/internal/clock"

const apiVersion = 2

// ResponseModel is the envelope for every JSON response.
type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Data        any    `json:"data,omitempty"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
}

type EntryData struct {
	Entry any `json:"entry"`
}

type ListData struct {
	List        any  `json:"list"`
	LimitExceed bool `json:"limitExceeded"`
}

func ResponseCurrentTime(c clock.Clock) int64 {
	if c == nil {
		c = clock.RealClock{}
	}
	return c.NowUnixMilli()
}

func NewOKResponse(data any, c clock.Clock) ResponseModel {
	return ResponseModel{
		Code:        200,
		CurrentTime: ResponseCurrentTime(c),
		Data:        data,
		Text:        "OK",
		Version:     apiVersion,
	}
}

func NewEntryResponse(entry any, c clock.Clock) ResponseModel {
	return NewOKResponse(EntryData{Entry: entry}, c)
}

// NewListResponse wraps a slice. A nil list is encoded as an empty array.
func NewListResponse[T any](list []T, limitExceeded bool, c clock.Clock) ResponseModel {
	if list == nil {
		list = []T{}
	}
	return NewOKResponse(ListData{List: list, LimitExceed: limitExceeded}, c)
}

func NewErrorResponse(code int, text string, c clock.Clock) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: ResponseCurrentTime(c),
		Text:        text,
		Version:     apiVersion,
	}
}
