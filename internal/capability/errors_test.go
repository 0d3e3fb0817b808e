package capability

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/radiocap/internal/rpc"
)

func TestErrorFormatting(t *testing.T) {
	err := newError(ErrCodeProtocol, 1, 7, "modem returned %s", rpc.ErrorGenericFailure)
	assert.Equal(t, "PROTOCOL: modem returned GENERIC_FAILURE (slot=1, session=7)", err.Error())

	err = newError(ErrCodeInvalidRequest, -1, NoTransaction, "bad")
	assert.Equal(t, "INVALID_REQUEST: bad", err.Error())

	cause := errors.New("short")
	err = newError(ErrCodeUnexpectedResponse, 0, NoTransaction, "undecodable")
	err.Err = cause
	assert.Equal(t, "UNEXPECTED_RESPONSE: undecodable (slot=0): short", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestErrorPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", newError(ErrCodeUnknownSlot, 3, NoTransaction, "no such slot"))
	assert.True(t, IsUnknownSlot(err))
	assert.False(t, IsInvalidRequest(err))
	assert.False(t, IsUnknownSlot(errors.New("plain")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		resp  rpc.Response
		probe bool
		check func(error) bool
	}{
		{"timeout", rpc.Response{Transport: rpc.TransportTimeout}, false, IsTransportError},
		{"generic failure", rpc.Response{Error: rpc.ErrorGenericFailure}, false, IsProtocolError},
		{"not supported outside probe", rpc.Response{Error: rpc.ErrorRequestNotSupported}, false, IsProtocolError},
		{"not supported on probe", rpc.Response{Error: rpc.ErrorRequestNotSupported}, true, IsUnsupported},
		{"not allowed on probe", rpc.Response{Error: rpc.ErrorOperationNotAllowed}, true, IsUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.resp, 0, NoTransaction, tt.probe)
			require.NotNil(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	assert.Nil(t, classify(rpc.Response{}, 0, NoTransaction, false))
}
