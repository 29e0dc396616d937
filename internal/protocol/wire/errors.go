package wire

import (
	"errors"
	"fmt"
)

var (
	ErrShortBuffer     = errors.New("wire: short buffer")
	ErrUnknownCtrlType = errors.New("wire: unknown control type")
	ErrUnknownInstr    = errors.New("wire: unknown instruction")
)

// CodecError reports a header that could not be decoded.
type CodecError struct {
	Header string
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("wire: decode %s: %v", e.Header, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func codecErr(header string, err error) error {
	return &CodecError{Header: header, Err: err}
}

func shortBuffer(header string, got, want int) error {
	return codecErr(header, fmt.Errorf("%w: got=%d want=%d", ErrShortBuffer, got, want))
}
