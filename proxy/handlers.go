package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	socksproxy "golang.org/x/net/proxy"

	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

// Handler implements one of the six transport strategies a Server dispatches
// between. For CONNECT requests it owns opts.SrcConn directly; for
// forward-HTTP requests it writes through opts.SrcResponse.
type Handler func(ctx context.Context, opts types.HandlerOptions) error

// HandlerSet is the full set of transport strategies a Server dispatches
// between. CustomResponse is only ever reached for forward-HTTP requests
// (MergePolicy rejects a CustomResponseFunction on a CONNECT request).
type HandlerSet struct {
	Direct         Handler
	Chain          Handler
	TunnelSocks    Handler
	Forward        Handler
	ForwardSocks   Handler
	CustomResponse Handler
}

// merge returns a HandlerSet with each non-nil field of override replacing
// the corresponding field of s.
func (s HandlerSet) merge(override HandlerSet) HandlerSet {
	if override.Direct != nil {
		s.Direct = override.Direct
	}
	if override.Chain != nil {
		s.Chain = override.Chain
	}
	if override.TunnelSocks != nil {
		s.TunnelSocks = override.TunnelSocks
	}
	if override.Forward != nil {
		s.Forward = override.Forward
	}
	if override.ForwardSocks != nil {
		s.ForwardSocks = override.ForwardSocks
	}
	if override.CustomResponse != nil {
		s.CustomResponse = override.CustomResponse
	}
	return s
}

// DefaultHandlers returns the built-in implementation of all six transport
// strategies.
func DefaultHandlers() HandlerSet {
	return HandlerSet{
		Direct:         directHandler,
		Chain:          chainHandler,
		TunnelSocks:    tunnelSocksHandler,
		Forward:        forwardHandler,
		ForwardSocks:   forwardSocksHandler,
		CustomResponse: customResponseHandler,
	}
}

const connectionEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// dialerFor builds a net.Dialer honoring opts.LocalAddress, the optional
// source bind address a policy result can supply.
// A malformed LocalAddress is treated as absent rather than failing the
// whole request: it only ever came from policy-provided configuration, not
// from the client, so the safer failure mode is "dial from any interface."
func dialerFor(opts types.HandlerOptions) *net.Dialer {
	d := &net.Dialer{}
	if opts.LocalAddress == "" {
		return d
	}
	if ip := net.ParseIP(opts.LocalAddress); ip != nil {
		d.LocalAddr = &net.TCPAddr{IP: ip}
	}
	return d
}

// directHandler dials the target directly and splices it to the client
// socket, with no upstream proxy or TLS interception involved.
func directHandler(ctx context.Context, opts types.HandlerOptions) error {
	target, err := dialerFor(opts).DialContext(ctx, "tcp", opts.TrgParsed.Addr())
	if err != nil {
		return classifyDialErr(err, types.MarkerTargetNotFound)
	}

	if _, err := opts.SrcConn.Write([]byte(connectionEstablished)); err != nil {
		target.Close()
		return err
	}
	if err := relaySrcHead(opts, target); err != nil {
		target.Close()
		return err
	}

	splice(ctx, opts.SrcConn, newCountingConn(target, opts.OnTargetTx, opts.OnTargetRx))
	return nil
}

// chainHandler tunnels a CONNECT request through an upstream HTTP proxy.
// An upstream proxy URL is only ever "http" or "socks" here
// (prepare.MergePolicy enforces this), so there is no HTTPS-upstream
// TLS-wrapping branch to handle.
func chainHandler(ctx context.Context, opts types.HandlerOptions) error {
	target, err := dialThroughHTTPProxy(ctx, dialerFor(opts), opts.UpstreamProxyURLParsed, opts.TrgParsed.Addr())
	if err != nil {
		return err
	}

	if _, err := opts.SrcConn.Write([]byte(connectionEstablished)); err != nil {
		target.Close()
		return err
	}
	if err := relaySrcHead(opts, target); err != nil {
		target.Close()
		return err
	}

	splice(ctx, opts.SrcConn, newCountingConn(target, opts.OnTargetTx, opts.OnTargetRx))
	return nil
}

// tunnelSocksHandler tunnels a CONNECT request through an upstream SOCKS5
// proxy. Unlike chainHandler, the SOCKS dialer performs the final hop to
// the target itself; there is no separate CONNECT handshake to write.
func tunnelSocksHandler(ctx context.Context, opts types.HandlerOptions) error {
	dialer, err := socksDialer(opts.UpstreamProxyURLParsed, dialerFor(opts))
	if err != nil {
		return &types.HandlerError{Marker: types.MarkerUpstreamUnreachable, Err: err}
	}

	target, err := dialContext(dialer, ctx, "tcp", opts.TrgParsed.Addr())
	if err != nil {
		return classifyDialErr(err, types.MarkerUpstreamUnreachable)
	}

	if _, err := opts.SrcConn.Write([]byte(connectionEstablished)); err != nil {
		target.Close()
		return err
	}
	if err := relaySrcHead(opts, target); err != nil {
		target.Close()
		return err
	}

	splice(ctx, opts.SrcConn, newCountingConn(target, opts.OnTargetTx, opts.OnTargetRx))
	return nil
}

// relaySrcHead forwards any bytes the client pipelined immediately after the
// CONNECT request line and that were already drained off the socket while
// the request was parsed. Without this, those bytes would be silently
// dropped: they no longer sit on opts.SrcConn, and splice only reads from
// opts.SrcConn going forward.
func relaySrcHead(opts types.HandlerOptions, target net.Conn) error {
	if len(opts.SrcHead) == 0 {
		return nil
	}
	n, err := target.Write(opts.SrcHead)
	if n > 0 && opts.OnTargetTx != nil {
		opts.OnTargetTx(int64(n))
	}
	return err
}

// forwardHandler proxies a plain (non-CONNECT) HTTP request to its target,
// through opts.UpstreamProxyURLParsed when an HTTP upstream is set,
// using a fresh http.Transport per request so no connection pool is shared
// across requests that may carry different policy decisions.
func forwardHandler(ctx context.Context, opts types.HandlerOptions) error {
	return forwardVia(ctx, opts, nil)
}

// forwardSocksHandler is forwardHandler routed through an upstream SOCKS5
// proxy.
func forwardSocksHandler(ctx context.Context, opts types.HandlerOptions) error {
	dialer, err := socksDialer(opts.UpstreamProxyURLParsed, dialerFor(opts))
	if err != nil {
		return &types.HandlerError{Marker: types.MarkerUpstreamUnreachable, Err: err}
	}
	return forwardVia(ctx, opts, dialer)
}

func forwardVia(ctx context.Context, opts types.HandlerOptions, socksDialer socksproxy.Dialer) error {
	target := opts.TrgParsed

	// The incoming request already carries an absolute-form URL (that's
	// what distinguishes a forward-proxy request from an origin-server
	// one); only RequestURI needs clearing before reuse as an outbound
	// client request, per net/http.Request's own RoundTrip precondition.
	outReq := opts.SrcRequest.Clone(ctx)
	outReq.RequestURI = ""
	outReq.URL.Scheme = "http"
	outReq.URL.Host = target.Addr()
	stripHopByHopHeaders(outReq.Header)

	transport := &http.Transport{}
	if socksDialer != nil {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := dialContext(socksDialer, ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return newCountingConn(c, opts.OnTargetTx, opts.OnTargetRx), nil
		}
	} else {
		dialer := dialerFor(opts)
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return newCountingConn(c, opts.OnTargetTx, opts.OnTargetRx), nil
		}
		if opts.UpstreamProxyURLParsed != nil {
			transport.Proxy = http.ProxyURL(opts.UpstreamProxyURLParsed)
		}
	}

	resp, err := transport.RoundTrip(outReq)
	if err != nil {
		return classifyDialErr(err, types.MarkerTargetNotFound)
	}
	defer resp.Body.Close()

	dst := opts.SrcResponse.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	opts.SrcResponse.WriteHeader(resp.StatusCode)
	_, err = io.Copy(opts.SrcResponse, resp.Body)
	return err
}

// customResponseHandler answers a forward-HTTP request with the synthetic
// response produced by the policy callback, bypassing the network entirely.
func customResponseHandler(_ context.Context, opts types.HandlerOptions) error {
	status, headers, body := opts.CustomResponseFunction(opts.SrcRequest)

	dst := opts.SrcResponse.Header()
	for k, vs := range headers {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	opts.SrcResponse.WriteHeader(status)
	_, err := opts.SrcResponse.Write(body)
	return err
}

// splice copies bytes bidirectionally between client and target until
// either side closes or errors, or ctx is canceled, so a forced
// CloseConnections or request cancellation unblocks both io.Copy calls
// promptly.
func splice(ctx context.Context, client, target net.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			client.Close()
			target.Close()
		case <-done:
		}
	}()

	errChan := make(chan error, 2)
	go func() {
		_, err := io.Copy(target, client)
		target.Close()
		errChan <- err
	}()
	go func() {
		_, err := io.Copy(client, target)
		client.Close()
		errChan <- err
	}()

	for i := 0; i < 2; i++ {
		if err := <-errChan; err != nil {
			logSpliceErr(err)
		}
	}
}

var normalSpliceErrMsgs = []string{
	"read: connection reset by peer",
	"write: broken pipe",
	"i/o timeout",
	"use of closed network connection",
}

func logSpliceErr(err error) {
	msg := err.Error()
	for _, s := range normalSpliceErrMsgs {
		if strings.Contains(msg, s) {
			slog.Debug("splice ended", "error", err)
			return
		}
	}
	slog.Debug("splice ended with unexpected error", "error", err)
}

// countingConn reports every byte moved on a target-side socket back to the
// owning connection's registry entry, the handler-side counterpart of
// conn.TrackedConn's source-side accounting.
type countingConn struct {
	net.Conn
	onTx func(int64)
	onRx func(int64)
}

func newCountingConn(c net.Conn, onTx, onRx func(int64)) net.Conn {
	return &countingConn{Conn: c, onTx: onTx, onRx: onRx}
}

func (c *countingConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 && c.onRx != nil {
		c.onRx(int64(n))
	}
	return n, err
}

func (c *countingConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 && c.onTx != nil {
		c.onTx(int64(n))
	}
	return n, err
}

// dialThroughHTTPProxy performs an HTTP CONNECT handshake against an
// upstream proxy to reach address, adapted from helper.GetProxyConn.
func dialThroughHTTPProxy(ctx context.Context, dialer *net.Dialer, proxyURL *url.URL, address string) (net.Conn, error) {
	conn, err := dialer.DialContext(ctx, "tcp", proxyURL.Host)
	if err != nil {
		return nil, &types.HandlerError{Marker: types.MarkerUpstreamUnreachable, Err: err}
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: http.Header{},
	}
	if proxyURL.User != nil {
		user := proxyURL.User.Username()
		if strings.Contains(user, ":") {
			conn.Close()
			return nil, &types.HandlerError{Marker: types.MarkerInvalidUsernameColon,
				Err: errors.New("username contains an invalid colon")}
		}
		pass, _ := proxyURL.User.Password()
		creds := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		connectReq.Header.Set("Proxy-Authorization", "Basic "+creds)
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	done := make(chan struct{})
	var resp *http.Response
	go func() {
		defer close(done)
		if err = connectReq.Write(conn); err != nil {
			return
		}
		resp, err = http.ReadResponse(bufio.NewReader(conn), connectReq)
	}()

	select {
	case <-connectCtx.Done():
		conn.Close()
		<-done
		return nil, &types.HandlerError{Marker: types.MarkerUpstreamUnreachable, Err: connectCtx.Err()}
	case <-done:
	}

	if err != nil {
		conn.Close()
		return nil, &types.HandlerError{Marker: types.MarkerUpstreamUnreachable, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		marker := types.MarkerUpstreamUnreachable
		if resp.StatusCode == http.StatusProxyAuthRequired {
			marker = types.MarkerUpstreamAuthRejected
		}
		return nil, &types.HandlerError{Marker: marker, Err: errors.New(resp.Status)}
	}
	return conn, nil
}

// socksDialer builds a golang.org/x/net/proxy dialer for upstreamURL,
// carrying Basic-style SOCKS5 username/password if present.
func socksDialer(upstreamURL *url.URL, forward *net.Dialer) (socksproxy.Dialer, error) {
	auth := &socksproxy.Auth{}
	if upstreamURL.User != nil {
		auth.User = upstreamURL.User.Username()
		auth.Password, _ = upstreamURL.User.Password()
	}
	return socksproxy.SOCKS5("tcp", upstreamURL.Host, auth, forward)
}

// dialContext adapts a golang.org/x/net/proxy.Dialer (which only guarantees
// a context-less Dial method) to DialContext when the concrete dialer
// supports it, matching helper.GetProxyConn's own fallback check.
func dialContext(d socksproxy.Dialer, ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return d.Dial(network, addr)
}

// classifyDialErr turns a raw dial/transport error into a HandlerError.
// fallback names the leg being dialed: MarkerUpstreamUnreachable when the
// dial goes to the upstream proxy, so a DNS-not-found there stays an
// upstream failure; on any other leg a DNS-not-found becomes
// MarkerTargetNotFound. Every other error gets the fallback marker.
func classifyDialErr(err error, fallback string) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound && fallback != types.MarkerUpstreamUnreachable {
		return &types.HandlerError{Marker: types.MarkerTargetNotFound, Err: err}
	}
	return &types.HandlerError{Marker: fallback, Err: err}
}

// stripHopByHopHeaders removes headers that must not be forwarded verbatim
// to the target, matching the standard net/http/httputil reverse-proxy
// list.
func stripHopByHopHeaders(h http.Header) {
	for _, name := range []string{
		"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate",
		"Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
	} {
		h.Del(name)
	}
}
