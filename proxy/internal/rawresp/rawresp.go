// Package rawresp writes a minimal HTTP/1.1 response directly to a socket.
// It is the only way to answer a request once the socket has been hijacked
// off any higher-level response writer — which, for this proxy, is every
// CONNECT request and every error that happens after one.
package rawresp

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Write emits status/headers/body on conn and arranges for the socket to be
// torn down shortly after. authRealm is used both as the default Server
// header and as the realm for an injected 407 challenge. Any failure
// writing is logged and swallowed, since the socket is already considered
// dead at this point.
func Write(conn net.Conn, authRealm string, status int, headers http.Header, body string) {
	merged := mergeHeaders(headers)

	merged.Set("Connection", "close")
	merged.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	merged.Set("Content-Length", strconv.Itoa(len(body)))

	if merged.Get("Server") == "" {
		merged.Set("Server", authRealm)
	}
	if merged.Get("Content-Type") == "" {
		merged.Set("Content-Type", "text/plain; charset=utf-8")
	}
	if status == http.StatusProxyAuthRequired && merged.Get("Proxy-Authenticate") == "" {
		merged.Set("Proxy-Authenticate", fmt.Sprintf(`Basic realm=%q`, authRealm))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reasonPhrase(status))
	for _, name := range sortedKeys(merged) {
		for _, v := range merged[name] {
			fmt.Fprintf(&b, "%s: %s\r\n", name, v)
		}
	}
	b.WriteString("\r\n")
	b.WriteString(body)

	if _, err := conn.Write([]byte(b.String())); err != nil {
		slog.Debug("raw response write failed, socket already gone", "error", err)
	}

	scheduleTeardown(conn)
}

// mergeHeaders folds headers case-insensitively, last writer wins, matching
// the net/http.Header canonicalization (Set already does this); we only
// need to make sure we don't mutate the caller's map.
func mergeHeaders(h http.Header) http.Header {
	merged := make(http.Header, len(h)+4)
	for k, vs := range h {
		for _, v := range vs {
			merged.Set(k, v)
		}
	}
	return merged
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scheduleTeardown closes the write half immediately so the peer can still
// flush its own final bytes, then hard-destroys the socket 1000ms later.
// This is the only internal timer in the proxy core.
func scheduleTeardown(conn net.Conn) {
	type halfCloser interface {
		CloseWrite() error
	}
	if hc, ok := conn.(halfCloser); ok {
		_ = hc.CloseWrite()
	}
	time.AfterFunc(1000*time.Millisecond, func() {
		_ = conn.Close()
	})
}

func reasonPhrase(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown Status Code"
}
