package greeter

import (
	"fmt"

	"github.com/bnema/lightgreet/internal/protocol"
)

// ErrorKind classifies greeter failures
type ErrorKind int

const (
	// KindConnection covers an unreachable daemon, a version mismatch and
	// permission problems while connecting
	KindConnection ErrorKind = iota + 1
	// KindProtocolState means the operation is not valid in the current state
	KindProtocolState
	// KindDaemonRejected means the daemon answered a well-formed request with a failure
	KindDaemonRejected
	// KindCancelled means the caller cancelled before the daemon answered
	KindCancelled
	// KindTransport means the link dropped while the operation was pending
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindProtocolState:
		return "protocol state error"
	case KindDaemonRejected:
		return "daemon rejected request"
	case KindCancelled:
		return "cancelled"
	case KindTransport:
		return "transport error"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Error is returned by every fallible greeter operation
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrConnection     = &Error{Kind: KindConnection}
	ErrProtocolState  = &Error{Kind: KindProtocolState}
	ErrDaemonRejected = &Error{Kind: KindDaemonRejected}
	ErrCancelled      = &Error{Kind: KindCancelled}
	ErrTransport      = &Error{Kind: KindTransport}
)

// ErrMessageTooLarge is wrapped by requests that would not fit in one frame.
// Such requests fail with KindProtocolState and the link stays up.
var ErrMessageTooLarge = protocol.ErrTooLarge

func newError(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func stateError(op, msg string) *Error {
	return newError(KindProtocolState, op, msg, nil)
}

func transportError(op string, err error) *Error {
	return newError(KindTransport, op, "", err)
}

// sizeError rejects msg before anything is sent or any state changes
func sizeError(op string, msg protocol.Message) error {
	if err := protocol.CheckSize(msg); err != nil {
		return newError(KindProtocolState, op, "request too large", err)
	}
	return nil
}
