package cwa

import "fmt"

// Kind classifies a fetch failure.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindHTTPStatus   Kind = "http_status"
	KindNetwork      Kind = "network"
	KindDecode       Kind = "decode"
	KindCircuitOpen  Kind = "circuit_open"
)

// FetchError describes why a forecast could not be retrieved.
type FetchError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	msg := "cwa fetch " + string(e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }
