package capability

import (
	"errors"
	"fmt"

	"github.com/roach88/radiocap/internal/rpc"
)

// ErrorCode categorizes capability errors.
type ErrorCode string

const (
	// ErrCodeTransport indicates the RPC did not complete (timeout, dead
	// channel, transport rejection).
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeProtocol indicates the modem answered with an error code.
	ErrCodeProtocol ErrorCode = "PROTOCOL"

	// ErrCodeUnexpectedResponse indicates a payload that could not be
	// decoded or did not match the request.
	ErrCodeUnexpectedResponse ErrorCode = "UNEXPECTED_RESPONSE"

	// ErrCodeUnsupported indicates the modem does not implement capability
	// switching. Only produced by the probe.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"

	// ErrCodeSlotVanished indicates a participating slot was removed.
	ErrCodeSlotVanished ErrorCode = "SLOT_VANISHED"

	// ErrCodeUnknownSlot indicates a slot index with no record.
	ErrCodeUnknownSlot ErrorCode = "UNKNOWN_SLOT"

	// ErrCodeInvalidRequest indicates bad caller input.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// Error is the error type returned and traced by the capability manager.
type Error struct {
	Code    ErrorCode
	Message string

	// Slot is the affected slot, or -1.
	Slot int

	// Session is the transaction in progress, if any.
	Session TransactionID

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Slot >= 0 {
		msg += fmt.Sprintf(" (slot=%d", e.Slot)
		if e.Session != NoTransaction {
			msg += fmt.Sprintf(", session=%d", e.Session)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, slot int, session TransactionID, format string, args ...any) *Error {
	return &Error{Code: code, Slot: slot, Session: session, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsTransportError reports whether err is a transport failure.
func IsTransportError(err error) bool { return hasCode(err, ErrCodeTransport) }

// IsProtocolError reports whether err carries a modem error code.
func IsProtocolError(err error) bool { return hasCode(err, ErrCodeProtocol) }

// IsUnsupported reports whether err means the feature is absent.
func IsUnsupported(err error) bool { return hasCode(err, ErrCodeUnsupported) }

// IsUnexpectedResponse reports whether err is a malformed or mismatched
// response.
func IsUnexpectedResponse(err error) bool { return hasCode(err, ErrCodeUnexpectedResponse) }

// IsUnknownSlot reports whether err names a slot with no record.
func IsUnknownSlot(err error) bool { return hasCode(err, ErrCodeUnknownSlot) }

// IsInvalidRequest reports whether err rejects caller input.
func IsInvalidRequest(err error) bool { return hasCode(err, ErrCodeInvalidRequest) }

// classify turns a completion into an error. probe enables the
// feature-absent mapping for REQUEST_NOT_SUPPORTED and
// OPERATION_NOT_ALLOWED.
func classify(resp rpc.Response, slot int, session TransactionID, probe bool) *Error {
	if resp.Transport != rpc.TransportOK {
		e := newError(ErrCodeTransport, slot, session, "request did not complete: %s", resp.Transport)
		e.Err = resp.Err(rpc.CodeSetRadioCapability)
		return e
	}
	if resp.Error == rpc.ErrorNone {
		return nil
	}
	if probe && (resp.Error == rpc.ErrorRequestNotSupported || resp.Error == rpc.ErrorOperationNotAllowed) {
		return newError(ErrCodeUnsupported, slot, session, "capability switching not supported: %s", resp.Error)
	}
	return newError(ErrCodeProtocol, slot, session, "modem returned %s", resp.Error)
}
