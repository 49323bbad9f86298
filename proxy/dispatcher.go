package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/proxychain-go/proxychain/proxy/internal/conn"
	"github.com/proxychain-go/proxychain/proxy/internal/errnorm"
	"github.com/proxychain-go/proxychain/proxy/internal/prepare"
	"github.com/proxychain-go/proxychain/proxy/internal/rawresp"
	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// ServeHTTP is the single entry point the stdlib http.Server calls for every
// accepted request, CONNECT or otherwise. It never panics on a malformed
// request: every failure path runs through failRequest or failOnHijackedConn.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	tc := trackedConnFrom(req.Context())

	if req.Method == http.MethodConnect {
		s.handleConnect(w, req, tc)
		return
	}
	s.handleForward(w, req, tc)
}

// handleConnect hijacks the socket so the chosen handler owns it directly;
// a CONNECT request never goes back through http.ResponseWriter once
// tunneling begins.
func (s *Server) handleConnect(w http.ResponseWriter, req *http.Request, tc *conn.TrackedConn) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		s.failRequest(w, req, types.NewRequestError(http.StatusInternalServerError,
			"Server does not support hijacking"))
		return
	}

	srcConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		s.failRequest(w, req, err)
		return
	}

	var srcHead []byte
	if n := bufrw.Reader.Buffered(); n > 0 {
		srcHead, _ = bufrw.Reader.Peek(n)
	}

	connID := ""
	if tc != nil {
		connID = tc.ID()
	}

	opts, err := prepare.Prepare(req, true, connID, s.policy, s.counters())
	if err != nil {
		s.failOnHijackedConn(srcConn, req, err)
		return
	}

	opts.SrcConn = srcConn
	opts.SrcHead = srcHead
	opts.ID = s.nextHandlerID.Inc()
	s.attachTargetCounters(&opts)

	handler := s.selectConnectHandler(opts)
	if err := handler(context.Background(), opts); err != nil {
		s.failOnHijackedConn(srcConn, req, err)
	}
}

// handleForward answers a forward-HTTP request (absolute-form URI, non-
// CONNECT method). Success or failure both flow through the ordinary
// http.ResponseWriter.
func (s *Server) handleForward(w http.ResponseWriter, req *http.Request, tc *conn.TrackedConn) {
	connID := ""
	if tc != nil {
		connID = tc.ID()
	}

	opts, err := prepare.Prepare(req, false, connID, s.policy, s.counters())
	if err != nil {
		s.failRequest(w, req, err)
		return
	}

	opts.SrcResponse = w
	opts.ID = s.nextHandlerID.Inc()
	s.attachTargetCounters(&opts)

	if opts.CustomResponseFunction != nil {
		if err := s.handlers.CustomResponse(req.Context(), opts); err != nil {
			s.failRequest(w, req, err)
		}
		return
	}

	handler := s.selectHTTPHandler(opts)
	if err := handler(req.Context(), opts); err != nil {
		s.failRequest(w, req, err)
	}
}

// selectConnectHandler picks direct tunneling, HTTP-chained tunneling, or
// SOCKS-chained tunneling, per whether an upstream proxy was configured and
// what scheme it has.
func (s *Server) selectConnectHandler(opts types.HandlerOptions) Handler {
	if opts.UpstreamProxyURLParsed == nil {
		return s.handlers.Direct
	}
	if opts.UpstreamProxyURLParsed.Scheme == "socks" {
		return s.handlers.TunnelSocks
	}
	return s.handlers.Chain
}

// selectHTTPHandler picks plain forwarding or forwarding through a SOCKS
// upstream. An HTTP-scheme upstream for a forward request is handled inside
// Forward itself via http.Transport's Proxy field, matching how net/http
// natively chains HTTP-to-HTTP.
func (s *Server) selectHTTPHandler(opts types.HandlerOptions) Handler {
	if opts.UpstreamProxyURLParsed != nil && opts.UpstreamProxyURLParsed.Scheme == "socks" {
		return s.handlers.ForwardSocks
	}
	return s.handlers.Forward
}

// attachTargetCounters wires opts.OnTargetTx/OnTargetRx back to the
// connection's registry entry, if it still has one. A request whose source
// connection was never tracked (e.g. a handler invoked directly in a test)
// gets no-op counters.
func (s *Server) attachTargetCounters(opts *types.HandlerOptions) {
	entry, ok := s.registry.Get(opts.ConnectionID)
	if !ok {
		opts.OnTargetTx = func(int64) {}
		opts.OnTargetRx = func(int64) {}
		return
	}
	opts.OnTargetTx = entry.AddTargetTx
	opts.OnTargetRx = entry.AddTargetRx
}

// failRequest classifies err into a response and writes it via the ordinary
// ResponseWriter.
func (s *Server) failRequest(w http.ResponseWriter, req *http.Request, err error) {
	reqErr := s.classify(req, err)

	for k, vs := range reqErr.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if reqErr.StatusCode == http.StatusProxyAuthRequired && w.Header().Get("Proxy-Authenticate") == "" {
		w.Header().Set("Proxy-Authenticate", fmt.Sprintf(`Basic realm=%q`, s.config.AuthRealm))
	}
	w.Header().Set("Connection", "close")
	w.WriteHeader(reqErr.StatusCode)
	_, _ = w.Write([]byte(reqErr.Msg))
}

// failOnHijackedConn is failRequest's counterpart once the socket has
// already been hijacked: the response can only be written with rawresp,
// since the stdlib ResponseWriter refuses writes after Hijack.
func (s *Server) failOnHijackedConn(c net.Conn, req *http.Request, err error) {
	reqErr := s.classify(req, err)
	rawresp.Write(c, s.config.AuthRealm, reqErr.StatusCode, reqErr.Headers, reqErr.Msg)
}

// classify turns any error from the preparation pipeline or a handler into a
// RequestError, emitting requestFailed for every case except the ones
// ErrorNormalizer recognizes as ordinary, expected client-facing failures.
func (s *Server) classify(req *http.Request, err error) *types.RequestError {
	var cfgErr *types.ConfigurationError
	if errors.As(err, &cfgErr) {
		s.events.emitRequestFailed(RequestFailedEvent{Error: err, Request: req})
		return types.NewRequestError(http.StatusInternalServerError, cfgErr.Msg)
	}

	if reqErr, ok := errnorm.Normalize(err); ok {
		return reqErr
	}

	s.events.emitRequestFailed(RequestFailedEvent{Error: err, Request: req})
	return types.NewRequestError(http.StatusInternalServerError, "Internal error in proxy server")
}
