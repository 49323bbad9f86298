// Package types holds the data records shared between the proxy core's
// internal packages: the policy callback contract, the per-request handler
// options, and the connection byte-counters. Keeping them in a leaf package
// (rather than in the proxy package itself) lets conn, policy, prepare,
// rawresp and errnorm depend on the shapes without importing each other.
package types

import (
	"net"
	"net/http"
	"net/url"
)

// TargetInfo is the parsed form of a request's routing target.
type TargetInfo struct {
	Scheme string
	Host   string
	Port   string
	Path   string // only meaningful for forward-HTTP targets
}

// Addr returns host:port for dialing.
func (t TargetInfo) Addr() string {
	return t.Host + ":" + t.Port
}

// PolicyInput is normalized and passed to the embedder-supplied decision
// function.
type PolicyInput struct {
	ConnectionID string
	Request      *http.Request
	Username     string
	Password     string
	Hostname     string
	Port         string
	IsHTTP       bool
}

// PolicyResult is the (possibly eventual) return value of the policy
// callback. All fields are optional.
type PolicyResult struct {
	RequestAuthentication  bool
	FailMsg                string
	UpstreamProxyURL       string
	CustomResponseFunction func(req *http.Request) (statusCode int, headers http.Header, body []byte)
	LocalAddress           string
}

// PolicyFunc is the embedder-supplied decision callback. It may block; the
// core never holds an internal lock while it runs.
type PolicyFunc func(PolicyInput) (PolicyResult, error)

// HandlerOptions is the immutable-after-preparation record passed into a
// Handler.
type HandlerOptions struct {
	ID         uint64
	SrcRequest *http.Request

	// SrcResponse is set for the forward-HTTP form, nil for CONNECT.
	SrcResponse http.ResponseWriter

	// SrcConn/SrcHead are set for CONNECT, nil for the forward-HTTP form.
	SrcConn net.Conn
	SrcHead []byte

	TrgParsed TargetInfo
	IsHTTP    bool

	UpstreamProxyURLParsed *url.URL
	CustomResponseFunction func(req *http.Request) (statusCode int, headers http.Header, body []byte)

	LocalAddress string

	// ConnectionID links this request back to its registry entry so
	// handlers can attach byte-counting shims that are visible through
	// ConnectionStats.
	ConnectionID string

	// OnTargetTx/OnTargetRx report bytes moved on whatever target-side
	// socket a handler opens. Both are nil-safe no-ops if the registry
	// entry has already gone away by the time the handler starts.
	OnTargetTx func(n int64)
	OnTargetRx func(n int64)
}

// ConnectionStats is the byte-counter snapshot for one connection.
type ConnectionStats struct {
	SrcTxBytes int64
	SrcRxBytes int64
	TrgTxBytes int64
	TrgRxBytes int64
}
