// Package prepare implements the request-preparation pipeline: parsing the
// target, classifying HTTP-forward vs CONNECT-tunnel, merging the policy
// result, and producing the final HandlerOptions.
package prepare

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// Counters is the aggregate request-count bookkeeping the Server exposes.
// The two fields are incremented here, under whatever external
// synchronization the caller applies (see proxy.Server, which uses atomics).
type Counters struct {
	IncHTTP    func()
	IncConnect func()
}

// ParseTarget parses the routing target for a CONNECT or forward-HTTP
// request. For CONNECT, target is "host:port" (req.RequestURI/req.Host);
// for forward-HTTP it is the absolute-form request URL.
func ParseTarget(req *http.Request, isConnect bool, counters Counters) (types.TargetInfo, error) {
	if isConnect {
		return parseConnectTarget(req, counters)
	}
	return parseForwardTarget(req, counters)
}

func parseConnectTarget(req *http.Request, counters Counters) (types.TargetInfo, error) {
	raw := req.RequestURI
	if raw == "" {
		raw = req.Host
	}

	// Prepend a synthetic scheme so the standard URL parser can split
	// host/port the same way it would for any other authority.
	u, err := url.Parse("connect://" + raw)
	host, port := "", ""
	if err == nil {
		host, port = u.Hostname(), u.Port()
	}
	if host == "" || port == "" {
		return types.TargetInfo{}, types.NewRequestError(http.StatusBadRequest,
			fmt.Sprintf("Target %q could not be parsed", raw))
	}

	if counters.IncConnect != nil {
		counters.IncConnect()
	}

	return types.TargetInfo{Scheme: "connect", Host: host, Port: port}, nil
}

func parseForwardTarget(req *http.Request, counters Counters) (types.TargetInfo, error) {
	raw := req.RequestURI
	if raw == "" {
		raw = req.URL.String()
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil || !u.IsAbs() {
		return types.TargetInfo{}, types.NewRequestError(http.StatusBadRequest,
			fmt.Sprintf("Target %q could not be parsed", raw))
	}

	if !strings.EqualFold(u.Scheme, "http") {
		return types.TargetInfo{}, types.NewRequestError(http.StatusBadRequest,
			fmt.Sprintf("Only HTTP protocol is supported (was %s:)", u.Scheme))
	}

	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "80"
	}

	if counters.IncHTTP != nil {
		counters.IncHTTP()
	}

	return types.TargetInfo{Scheme: "http", Host: host, Port: port, Path: u.RequestURI()}, nil
}

// MergePolicy folds a PolicyResult into the HandlerOptions being built. It
// enforces the invariants in steps 1-4, in order: authentication
// challenge, upstream proxy URL, custom-response function, local address.
func MergePolicy(opts *types.HandlerOptions, result types.PolicyResult) error {
	if result.RequestAuthentication {
		msg := result.FailMsg
		if msg == "" {
			msg = "Proxy credentials required."
		}
		return types.NewRequestErrorWithHeaders(http.StatusProxyAuthRequired, msg, nil)
	}

	if result.UpstreamProxyURL != "" {
		u, err := url.Parse(result.UpstreamProxyURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "socks") {
			return &types.ConfigurationError{
				Msg: fmt.Sprintf("Invalid upstream proxy URL %q: must have scheme http or socks", result.UpstreamProxyURL),
			}
		}
		opts.UpstreamProxyURLParsed = u
	}

	if result.CustomResponseFunction != nil {
		if !opts.IsHTTP {
			return &types.ConfigurationError{Msg: "customResponseFunction is only valid for forward-HTTP requests, not CONNECT"}
		}
		if opts.UpstreamProxyURLParsed != nil {
			return &types.ConfigurationError{Msg: "customResponseFunction and upstreamProxyUrl are mutually exclusive"}
		}
		opts.CustomResponseFunction = result.CustomResponseFunction
	}

	opts.LocalAddress = result.LocalAddress
	return nil
}

// PolicyInvoker is the subset of policy.Invoker that Prepare needs,
// expressed as an interface so this package never imports policy (which
// itself depends on types only, but keeping the dependency one-directional
// avoids an import cycle between the two).
type PolicyInvoker interface {
	Invoke(connectionID string, req *http.Request, hostname, port string, isHTTP bool) (types.PolicyResult, error)
}

// Prepare runs the full pipeline for one request: parse the target, invoke
// the policy callback, and fold its result into a HandlerOptions. It is the
// single entry point the Dispatcher calls for both CONNECT and forward-HTTP
// requests.
func Prepare(req *http.Request, isConnect bool, connectionID string, invoker PolicyInvoker, counters Counters) (types.HandlerOptions, error) {
	target, err := ParseTarget(req, isConnect, counters)
	if err != nil {
		return types.HandlerOptions{}, err
	}

	result, err := invoker.Invoke(connectionID, req, target.Host, target.Port, !isConnect)
	if err != nil {
		return types.HandlerOptions{}, err
	}

	opts := types.HandlerOptions{
		SrcRequest:   req,
		TrgParsed:    target,
		IsHTTP:       !isConnect,
		ConnectionID: connectionID,
	}

	if err := MergePolicy(&opts, result); err != nil {
		return types.HandlerOptions{}, err
	}

	return opts, nil
}
