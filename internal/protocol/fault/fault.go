// Package fault maps CQC reply codes and transport failures to a typed error
// taxonomy.
//
// Ownership boundary:
// - transport errors (dial/read/write/close)
// - protocol errors: server-signaled kinds and reply mismatches
//
// Codec errors are owned by package wire (*wire.CodecError).
package fault

import (
	"errors"
	"fmt"

	"github.com/danmuck/cqcctl/internal/protocol/wire"
)

// Kind is the protocol error variant.
type Kind uint8

const (
	KindMismatch Kind = iota
	KindGeneral
	KindNoQubit
	KindUnsupported
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindGeneral:
		return "general"
	case KindNoQubit:
		return "no_qubit"
	case KindUnsupported:
		return "unsupported"
	case KindTimeout:
		return "timeout"
	default:
		return "mismatch"
	}
}

var (
	ErrMismatch    = errors.New("fault: reply mismatch")
	ErrGeneral     = errors.New("fault: general server error")
	ErrNoQubit     = errors.New("fault: no qubit available")
	ErrUnsupported = errors.New("fault: command not supported by node")
	ErrTimeout     = errors.New("fault: node timeout")
)

func (k Kind) sentinel() error {
	switch k {
	case KindGeneral:
		return ErrGeneral
	case KindNoQubit:
		return ErrNoQubit
	case KindUnsupported:
		return ErrUnsupported
	case KindTimeout:
		return ErrTimeout
	default:
		return ErrMismatch
	}
}

// ProtocolError reports a reply whose control type was not the one the
// operation waits for.
type ProtocolError struct {
	Kind     Kind
	Expected wire.CtrlType
	Observed wire.CtrlType
}

func (e *ProtocolError) Error() string {
	if e.Kind == KindMismatch {
		return fmt.Sprintf("fault: reply mismatch: expected=%s observed=%s", e.Expected, e.Observed)
	}
	return fmt.Sprintf("%v (expected=%s observed=%s)", e.Kind.sentinel(), e.Expected, e.Observed)
}

// Is matches the sentinel for e.Kind, so errors.Is(err, ErrNoQubit) works.
func (e *ProtocolError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Mismatch builds the generic mismatch error.
func Mismatch(expected, observed wire.CtrlType) *ProtocolError {
	return &ProtocolError{Kind: KindMismatch, Expected: expected, Observed: observed}
}

// ServerKind maps a server-signaled error code to its Kind.
func ServerKind(t wire.CtrlType) (Kind, bool) {
	switch t {
	case wire.CtrlErrGeneral:
		return KindGeneral, true
	case wire.CtrlErrNoQubit:
		return KindNoQubit, true
	case wire.CtrlErrUnsupp:
		return KindUnsupported, true
	case wire.CtrlErrTimeout:
		return KindTimeout, true
	default:
		return 0, false
	}
}

// Classify compares an observed reply kind with the one success kind the
// caller waits for. It returns nil on a match, the specific server error when
// observed is one of the error codes, and a mismatch otherwise.
func Classify(expected, observed wire.CtrlType) error {
	if observed == expected {
		return nil
	}
	if kind, ok := ServerKind(observed); ok {
		return &ProtocolError{Kind: kind, Expected: expected, Observed: observed}
	}
	return Mismatch(expected, observed)
}

// TransportError wraps a connect, read, write, or shutdown failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fault: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport wraps err as a *TransportError unless it is nil.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// KindOf names the taxonomy bucket of err for logs and metrics.
func KindOf(err error) string {
	var protoErr *ProtocolError
	var codecErr *wire.CodecError
	var transportErr *TransportError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &protoErr):
		return protoErr.Kind.String()
	case errors.As(err, &codecErr):
		return "codec"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "other"
	}
}
