package analysisapi

import (
	"fmt"
	"net/http"
)

// APIError is a well-formed envelope whose code is not 200.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// RequestError is a transport-level failure: no response, a timeout, or a
// non-2xx HTTP status. Message is meant for the user.
type RequestError struct {
	StatusCode int // 0 when no response arrived
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

const (
	msgOperationFailed = "operation failed"
	msgNoResponse      = "server did not respond"
	msgTimeout         = "request timed out, please retry later"
	msgCancelled       = "request cancelled"
)

// statusMessage is used when an error response carries no message of its own.
func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusUnauthorized:
		return "unauthorized, please log in again"
	case http.StatusForbidden:
		return "access denied"
	case http.StatusNotFound:
		return "request address not found"
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return fmt.Sprintf("request failed (%d)", status)
	}
}
