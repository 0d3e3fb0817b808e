package rpc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roach88/radiocap/internal/event"
)

// Code identifies a request type.
type Code int32

const (
	CodeDeactivateDataCall Code = 41
	CodeAllowData          Code = 123
	CodeGetRadioCapability Code = 130
	CodeSetRadioCapability Code = 131
)

func (c Code) String() string {
	switch c {
	case CodeDeactivateDataCall:
		return "DEACTIVATE_DATA_CALL"
	case CodeAllowData:
		return "ALLOW_DATA"
	case CodeGetRadioCapability:
		return "GET_RADIO_CAPABILITY"
	case CodeSetRadioCapability:
		return "SET_RADIO_CAPABILITY"
	default:
		return fmt.Sprintf("REQUEST(%d)", int32(c))
	}
}

// TransportStatus reports whether a request completed at the transport level.
type TransportStatus int

const (
	TransportOK TransportStatus = iota
	// TransportTimeout means every attempt timed out.
	TransportTimeout
	// TransportDead means the channel went away.
	TransportDead
	// TransportFailed means the peer rejected the request before answering.
	TransportFailed
)

func (s TransportStatus) String() string {
	switch s {
	case TransportOK:
		return "ok"
	case TransportTimeout:
		return "timeout"
	case TransportDead:
		return "dead"
	case TransportFailed:
		return "failed"
	default:
		return fmt.Sprintf("transport(%d)", int(s))
	}
}

// ProtocolError is the error code carried in a response.
type ProtocolError int32

const (
	ErrorNone                ProtocolError = 0
	ErrorRadioNotAvailable   ProtocolError = 1
	ErrorGenericFailure      ProtocolError = 2
	ErrorRequestNotSupported ProtocolError = 6
	ErrorInternal            ProtocolError = 38
	ErrorInvalidArguments    ProtocolError = 44
	ErrorOperationNotAllowed ProtocolError = 54
)

func (e ProtocolError) String() string {
	switch e {
	case ErrorNone:
		return "NONE"
	case ErrorRadioNotAvailable:
		return "RADIO_NOT_AVAILABLE"
	case ErrorGenericFailure:
		return "GENERIC_FAILURE"
	case ErrorRequestNotSupported:
		return "REQUEST_NOT_SUPPORTED"
	case ErrorInternal:
		return "INTERNAL_ERR"
	case ErrorInvalidArguments:
		return "INVALID_ARGUMENTS"
	case ErrorOperationNotAllowed:
		return "OPERATION_NOT_ALLOWED"
	default:
		return fmt.Sprintf("ERROR(%d)", int32(e))
	}
}

// Owner is an exclusive-ownership token. The zero Owner means "nobody".
type Owner uint64

var ownerSeq atomic.Uint64

// NewOwner returns a process-unique owner token.
func NewOwner() Owner {
	return Owner(ownerSeq.Add(1))
}

// Handle identifies a submitted request. The zero Handle is never issued.
type Handle uint64

// Request is one RPC.
type Request struct {
	Code    Code
	Payload []byte

	// Timeout per attempt. Zero selects the channel default.
	Timeout time.Duration

	// Retries is the number of extra attempts after a timeout.
	Retries int

	// Owner tags the request so it may pass an ownership block held by
	// the same token.
	Owner Owner

	// Done receives the completion. It is not called for cancelled
	// requests.
	Done func(Response)
}

// Response is the completion of a Request.
type Response struct {
	Transport TransportStatus
	Error     ProtocolError
	Payload   []byte
}

// OK reports a transport-level and protocol-level success.
func (r Response) OK() bool {
	return r.Transport == TransportOK && r.Error == ErrorNone
}

// Err converts a failed response into a *Failure. It returns nil on success.
func (r Response) Err(code Code) error {
	if r.OK() {
		return nil
	}
	return &Failure{Code: code, Transport: r.Transport, Protocol: r.Error}
}

// Failure is the error form of a failed Response.
type Failure struct {
	Code      Code
	Transport TransportStatus
	Protocol  ProtocolError
}

func (f *Failure) Error() string {
	if f.Transport != TransportOK {
		return fmt.Sprintf("%s: transport %s", f.Code, f.Transport)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Protocol)
}

// BlockStatus is the result of Acquire.
type BlockStatus int

const (
	// Acquired means the caller owns the channel now.
	Acquired BlockStatus = iota
	// Queued means ownership will be granted later; wait for OwnerChanged.
	Queued
	// Refused means the channel cannot be owned (it is dead).
	Refused
)

func (b BlockStatus) String() string {
	switch b {
	case Acquired:
		return "acquired"
	case Queued:
		return "queued"
	case Refused:
		return "refused"
	default:
		return fmt.Sprintf("block(%d)", int(b))
	}
}

// Channel is a serialised request path to one modem.
//
// Implementations invoke Done callbacks and OwnerChanged notifications on
// the event loop that owns the channel.
type Channel interface {
	Submit(req Request) Handle
	Cancel(h Handle) bool

	Acquire(owner Owner) BlockStatus
	Release(owner Owner)
	Owner() Owner

	// Subscribe registers for event.OwnerChanged. The payload is the new
	// owner.
	Subscribe(kind event.Kind, fn func(Owner)) event.Token
	Unsubscribe(tok event.Token)
}
