// Package errnorm maps internal handler failures onto the typed
// RequestError the Dispatcher writes back to the client.
package errnorm

import (
	"errors"
	"net/http"
	"strings"

	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// Normalize classifies err into a RequestError if it recognizes it, or
// returns (nil, false) to signal the Dispatcher should treat it as an
// internal error (requestFailed + 500).
//
// ConfigurationError is deliberately not handled here: unlike the other
// cases, a ConfigurationError must surface a requestFailed event *and* a
// response, so the Dispatcher checks for it before calling Normalize.
func Normalize(err error) (*types.RequestError, bool) {
	var reqErr *types.RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}

	var handlerErr *types.HandlerError
	if errors.As(err, &handlerErr) {
		return normalizeHandlerError(handlerErr)
	}

	return nil, false
}

func normalizeHandlerError(e *types.HandlerError) (*types.RequestError, bool) {
	switch e.Marker {
	case types.MarkerInvalidUsernameColon:
		return types.NewRequestError(http.StatusBadGateway,
			"Invalid colon in username in upstream proxy credentials"), true
	case types.MarkerUpstreamAuthRejected:
		return types.NewRequestError(http.StatusBadGateway,
			"Invalid upstream proxy credentials"), true
	case types.MarkerUpstreamUnreachable:
		return types.NewRequestError(http.StatusBadGateway,
			"Failed to connect to upstream proxy"), true
	case types.MarkerTargetNotFound:
		return types.NewRequestError(http.StatusNotFound,
			"Target website does not exist"), true
	}

	if e.Err != nil {
		return classifyBySignature(e.Err)
	}
	return nil, false
}

// classifyBySignature recognizes textual error signatures that indicate a
// "normal" failure rather than an internal one, plus the upstream-auth
// rejection a raw CONNECT handshake reports as a status line rather than a
// typed error.
func classifyBySignature(err error) (*types.RequestError, bool) {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "Username contains an invalid colon"):
		return types.NewRequestError(http.StatusBadGateway,
			"Invalid colon in username in upstream proxy credentials"), true
	case strings.Contains(msg, "407 Proxy Authentication Required"):
		return types.NewRequestError(http.StatusBadGateway,
			"Invalid upstream proxy credentials"), true
	}

	return nil, false
}
