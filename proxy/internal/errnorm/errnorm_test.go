package errnorm_test

import (
	"errors"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/proxychain-go/proxychain/proxy/internal/errnorm"
	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

func TestNormalizePassesThroughRequestError(t *testing.T) {
	c := qt.New(t)

	reqErr := types.NewRequestError(http.StatusTeapot, "nope")
	out, ok := errnorm.Normalize(reqErr)
	c.Assert(ok, qt.IsTrue)
	c.Assert(out, qt.Equals, reqErr)
}

func TestNormalizeHandlerErrorMarkers(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		marker string
		status int
		msg    string
	}{
		{types.MarkerInvalidUsernameColon, http.StatusBadGateway, "Invalid colon in username in upstream proxy credentials"},
		{types.MarkerUpstreamAuthRejected, http.StatusBadGateway, "Invalid upstream proxy credentials"},
		{types.MarkerUpstreamUnreachable, http.StatusBadGateway, "Failed to connect to upstream proxy"},
		{types.MarkerTargetNotFound, http.StatusNotFound, "Target website does not exist"},
	}

	for _, tc := range cases {
		out, ok := errnorm.Normalize(&types.HandlerError{Marker: tc.marker, Err: errors.New("x")})
		c.Assert(ok, qt.IsTrue)
		c.Assert(out.StatusCode, qt.Equals, tc.status)
		c.Assert(out.Msg, qt.Equals, tc.msg)
	}
}

func TestNormalizeHandlerErrorFallsBackToSignatureMatch(t *testing.T) {
	c := qt.New(t)

	out, ok := errnorm.Normalize(&types.HandlerError{Err: errors.New("407 Proxy Authentication Required")})
	c.Assert(ok, qt.IsTrue)
	c.Assert(out.StatusCode, qt.Equals, http.StatusBadGateway)
	c.Assert(out.Msg, qt.Equals, "Invalid upstream proxy credentials")
}

func TestNormalizeUnrecognizedErrorReturnsFalse(t *testing.T) {
	c := qt.New(t)

	_, ok := errnorm.Normalize(errors.New("something else entirely"))
	c.Assert(ok, qt.IsFalse)

	_, ok = errnorm.Normalize(&types.HandlerError{Err: errors.New("totally unrelated")})
	c.Assert(ok, qt.IsFalse)
}
