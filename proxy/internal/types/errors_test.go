package types_test

import (
	"errors"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/proxychain-go/proxychain/proxy/internal/types"
)

func TestRequestErrorError(t *testing.T) {
	c := qt.New(t)

	err := types.NewRequestError(http.StatusBadRequest, "bad target")
	c.Assert(err.Error(), qt.Equals, "bad target")
	c.Assert(err.StatusCode, qt.Equals, http.StatusBadRequest)
}

func TestHandlerErrorUnwrap(t *testing.T) {
	c := qt.New(t)

	inner := errors.New("dial failed")
	err := &types.HandlerError{Marker: types.MarkerTargetNotFound, Err: inner}

	c.Assert(err.Error(), qt.Equals, "dial failed")
	c.Assert(errors.Unwrap(err), qt.Equals, inner)
}

func TestHandlerErrorWithoutUnderlyingErrFallsBackToMarker(t *testing.T) {
	c := qt.New(t)

	err := &types.HandlerError{Marker: types.MarkerUpstreamUnreachable}
	c.Assert(err.Error(), qt.Equals, types.MarkerUpstreamUnreachable)
}

func TestConfigurationErrorError(t *testing.T) {
	c := qt.New(t)

	err := &types.ConfigurationError{Msg: "bad combo"}
	c.Assert(err.Error(), qt.Equals, "bad combo")
}
