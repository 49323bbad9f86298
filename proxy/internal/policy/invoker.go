// Package policy assembles PolicyInput from an inbound request, invokes the
// embedder-supplied decision callback, and validates its shape. There is
// exactly one policy callback per Server, but the callback is still never
// invoked while holding an internal lock.
package policy

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// Invoker normalizes requests into PolicyInput and runs the configured
// PolicyFunc, or returns an empty PolicyResult when none is configured.
type Invoker struct {
	fn types.PolicyFunc
}

// New creates an Invoker. fn may be nil.
func New(fn types.PolicyFunc) *Invoker {
	return &Invoker{fn: fn}
}

// Invoke builds the PolicyInput for req and runs the callback. A malformed
// Proxy-Authorization header fails the request before the callback ever
// runs. With no callback configured the header is not examined.
func (i *Invoker) Invoke(connectionID string, req *http.Request, hostname, port string, isHTTP bool) (types.PolicyResult, error) {
	if i.fn == nil {
		return types.PolicyResult{}, nil
	}

	username, password, err := extractCredentials(req)
	if err != nil {
		return types.PolicyResult{}, err
	}

	input := types.PolicyInput{
		ConnectionID: connectionID,
		Request:      req,
		Username:     username,
		Password:     password,
		Hostname:     hostname,
		Port:         port,
		IsHTTP:       isHTTP,
	}

	// The callback may be slow or itself fallible; it runs with no
	// proxy-internal lock held, and any error it returns propagates to the
	// Dispatcher unchanged.
	return i.fn(input)
}

// extractCredentials parses Proxy-Authorization: Basic <base64(user:pass)>.
// The decoded payload is split on the *first* colon; everything after it,
// including further colons, is the password.
func extractCredentials(req *http.Request) (username, password string, err error) {
	header := req.Header.Get("Proxy-Authorization")
	if header == "" {
		return "", "", nil
	}

	scheme, encoded, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return "", "", types.NewRequestError(http.StatusBadRequest,
			`The "Proxy-Authorization" header must have the "Basic" type.`)
	}

	decoded, decErr := base64.StdEncoding.DecodeString(encoded)
	if decErr != nil {
		return "", "", types.NewRequestError(http.StatusBadRequest,
			`Invalid "Proxy-Authorization" header`)
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", types.NewRequestError(http.StatusBadRequest,
			`Invalid "Proxy-Authorization" header`)
	}

	return user, pass, nil
}
