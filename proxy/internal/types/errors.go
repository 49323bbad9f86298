package types

import "net/http"

// RequestError is a request-scoped failure that already carries the wire
// representation of the response the Dispatcher should send. Rather than
// writing directly to a ResponseWriter, handlers and the preparer build one
// of these and let the Dispatcher decide how to render it (ordinary
// response writer, or RawResponder on a hijacked socket).
type RequestError struct {
	StatusCode int
	Headers    http.Header
	Msg        string
}

func (e *RequestError) Error() string {
	return e.Msg
}

// NewRequestError builds a RequestError with no extra headers.
func NewRequestError(status int, msg string) *RequestError {
	return &RequestError{StatusCode: status, Msg: msg}
}

// NewRequestErrorWithHeaders builds a RequestError carrying response
// headers. The 407 challenge is built with nil headers; its
// Proxy-Authenticate header is added when the response is written.
func NewRequestErrorWithHeaders(status int, msg string, headers http.Header) *RequestError {
	return &RequestError{StatusCode: status, Msg: msg, Headers: headers}
}

// ConfigurationError signals a policy result that cannot be honored (bad
// upstream URL, contradictory customResponseFunction/upstream combination).
// It always surfaces to the client as a 500, and separately as a
// requestFailed event.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}

// HandlerError is what a transport Handler raises when it cannot complete
// the request. ErrorNormalizer inspects Marker to classify it into a
// RequestError; an empty Marker with a non-nil Err passes the
// underlying error through unchanged for generic classification.
type HandlerError struct {
	Marker string
	Err    error
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Marker
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Known HandlerError markers.
const (
	MarkerInvalidUsernameColon = "invalid-username-colon"
	MarkerUpstreamAuthRejected = "upstream-auth-rejected"
	MarkerUpstreamUnreachable  = "upstream-unreachable" // DNS-not-found with "proxy" origin
	MarkerTargetNotFound       = "target-not-found"     // DNS-not-found, target origin
)
