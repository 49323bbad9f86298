package policy_test

import (
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/proxychain-go/proxychain/proxy/internal/policy"
	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

func newReq(authHeader string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	if authHeader != "" {
		req.Header.Set("Proxy-Authorization", authHeader)
	}
	return req
}

// allowAll is a configured policy that imposes nothing, so the tests below
// reach Proxy-Authorization parsing.
func allowAll(types.PolicyInput) (types.PolicyResult, error) {
	return types.PolicyResult{}, nil
}

func TestInvokeWithNoPolicyReturnsEmptyResult(t *testing.T) {
	c := qt.New(t)

	inv := policy.New(nil)
	result, err := inv.Invoke("conn-1", newReq(""), "example.test", "80", true)
	c.Assert(err, qt.IsNil)
	c.Assert(result, qt.Equals, types.PolicyResult{})
}

func TestInvokeSplitsCredentialsOnFirstColon(t *testing.T) {
	c := qt.New(t)

	var got types.PolicyInput
	inv := policy.New(func(in types.PolicyInput) (types.PolicyResult, error) {
		got = in
		return types.PolicyResult{}, nil
	})

	creds := base64.StdEncoding.EncodeToString([]byte("u:p:q"))
	_, err := inv.Invoke("conn-2", newReq("Basic "+creds), "example.test", "80", true)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Username, qt.Equals, "u")
	c.Assert(got.Password, qt.Equals, "p:q")
	c.Assert(got.ConnectionID, qt.Equals, "conn-2")
	c.Assert(got.Hostname, qt.Equals, "example.test")
}

func TestInvokeRejectsNonBasicScheme(t *testing.T) {
	c := qt.New(t)

	inv := policy.New(allowAll)
	_, err := inv.Invoke("conn-3", newReq("Digest abc"), "h", "80", true)

	var reqErr *types.RequestError
	c.Assert(errors.As(err, &reqErr), qt.IsTrue)
	c.Assert(reqErr.StatusCode, qt.Equals, http.StatusBadRequest)
	c.Assert(reqErr.Msg, qt.Equals, `The "Proxy-Authorization" header must have the "Basic" type.`)
}

func TestInvokeRejectsMalformedBase64(t *testing.T) {
	c := qt.New(t)

	inv := policy.New(allowAll)
	_, err := inv.Invoke("conn-4", newReq("Basic not-base64!!"), "h", "80", true)

	var reqErr *types.RequestError
	c.Assert(errors.As(err, &reqErr), qt.IsTrue)
	c.Assert(reqErr.StatusCode, qt.Equals, http.StatusBadRequest)
	c.Assert(reqErr.Msg, qt.Equals, `Invalid "Proxy-Authorization" header`)
}

func TestInvokeRejectsMissingColonInDecodedCredentials(t *testing.T) {
	c := qt.New(t)

	inv := policy.New(allowAll)
	creds := base64.StdEncoding.EncodeToString([]byte("nocolonhere"))
	_, err := inv.Invoke("conn-5", newReq("Basic "+creds), "h", "80", true)

	var reqErr *types.RequestError
	c.Assert(errors.As(err, &reqErr), qt.IsTrue)
	c.Assert(reqErr.StatusCode, qt.Equals, http.StatusBadRequest)
}

func TestInvokePropagatesCallbackError(t *testing.T) {
	c := qt.New(t)

	wantErr := &types.ConfigurationError{Msg: "boom"}
	inv := policy.New(func(types.PolicyInput) (types.PolicyResult, error) {
		return types.PolicyResult{}, wantErr
	})

	_, err := inv.Invoke("conn-6", newReq(""), "h", "80", true)
	c.Assert(err, qt.Equals, error(wantErr))
}
