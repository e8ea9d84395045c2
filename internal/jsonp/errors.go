package jsonp

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is reported when no response arrives within the request timeout.
	ErrTimeout = errors.New("timeout")

	// ErrClosed is reported for requests aborted by, or issued after, Close.
	ErrClosed = errors.New("jsonp: transport closed")

	// ErrCallbackParam is reported when the request URL already carries a
	// callback parameter.
	ErrCallbackParam = errors.New("jsonp: url already contains a callback parameter")

	// ErrMalformedScript is returned when a loaded body is not a JSONP envelope.
	ErrMalformedScript = errors.New("jsonp: malformed script")
)

// Load failure reasons.
const (
	ReasonNetwork     = "network error"
	ReasonStatus      = "bad status"
	ReasonMalformed   = "malformed script"
	ReasonNotInvoked  = "callback not invoked"
	ReasonInvalidURL  = "invalid url"
	ReasonDuplicateCB = "duplicate callback"
)

// LoadError reports that the script for a request could not be loaded or
// did not call back.
type LoadError struct {
	Callback string
	Reason   string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("jsonp: script %s failed to load: %s", e.Callback, e.Reason)
	}
	return fmt.Sprintf("jsonp: script %s failed to load: %s: %v", e.Callback, e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// StatusError is returned by HTTPLoader for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("got status code %d", e.Code)
}

// reasonFor classifies a loader error.
func reasonFor(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return ReasonStatus
	case errors.Is(err, ErrMalformedScript):
		return ReasonMalformed
	default:
		return ReasonNetwork
	}
}
