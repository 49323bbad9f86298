package proxy

import "github.com/proxychain-go/proxychain/proxy/internal/types"

// PolicyInput is the normalized record handed to the embedder's policy
// callback for every request.
type PolicyInput = types.PolicyInput

// PolicyResult is the (possibly partial) decision the policy callback
// returns.
type PolicyResult = types.PolicyResult

// PolicyFunc is the embedder-supplied routing decision. It may block;
// synchronous embedders simply return immediately.
type PolicyFunc = types.PolicyFunc

// HandlerOptions is the immutable-after-preparation record passed to the
// selected transport Handler.
type HandlerOptions = types.HandlerOptions

// ConnectionStats is the byte-counter snapshot for one connection.
type ConnectionStats = types.ConnectionStats

// ServerConfig is immutable once passed to NewServer.
type ServerConfig struct {
	// Port is the TCP port to listen on. Zero means an OS-assigned
	// ephemeral port; the default when unset via NewServerConfig is 8000.
	Port int

	// AuthRealm names the proxy in the Server header and in 407
	// Proxy-Authenticate challenges. Defaults to "ProxyChain".
	AuthRealm string

	// Verbose adds the connection's byte counters to the default
	// connection-closed log line. It does not change the slog level.
	Verbose bool

	// Policy is the embedder's per-request routing decision callback. Nil
	// means "always allow, never authenticate, no upstream".
	Policy PolicyFunc
}

const (
	defaultPort      = 8000
	defaultAuthRealm = "ProxyChain"
)

// NewServerConfig returns a ServerConfig holding the defaults: Port 8000
// and AuthRealm "ProxyChain", with every other field at its zero value.
func NewServerConfig() ServerConfig {
	return ServerConfig{
		Port:      defaultPort,
		AuthRealm: defaultAuthRealm,
	}
}

// withDefaults fills in everything except Port: a zero Port is a deliberate
// request for an OS-assigned ephemeral port, so only
// NewServerConfig's literal default of 8000 applies it. AuthRealm has no
// such ambiguity — an empty realm is never useful — so it is always
// defaulted here.
func (c ServerConfig) withDefaults() ServerConfig {
	if c.AuthRealm == "" {
		c.AuthRealm = defaultAuthRealm
	}
	return c
}
