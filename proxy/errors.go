package proxy

import (
	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// RequestError is a request-scoped failure that already carries the wire
// representation of the response the Dispatcher sends.
type RequestError = types.RequestError

// ConfigurationError signals a policy result that cannot be honored. It
// surfaces to the client as 500 and is also emitted as requestFailed.
type ConfigurationError = types.ConfigurationError

// HandlerError is the error type a transport Handler returns to the
// Dispatcher when it cannot complete a request. Known Marker values are
// classified; anything else degrades to a generic 500.
type HandlerError = types.HandlerError

// Handler error markers recognized by ErrorNormalizer.
const (
	MarkerInvalidUsernameColon = types.MarkerInvalidUsernameColon
	MarkerUpstreamAuthRejected = types.MarkerUpstreamAuthRejected
	MarkerUpstreamUnreachable  = types.MarkerUpstreamUnreachable
	MarkerTargetNotFound       = types.MarkerTargetNotFound
)

// NewRequestError builds a RequestError with no extra headers.
func NewRequestError(status int, msg string) *RequestError {
	return types.NewRequestError(status, msg)
}
