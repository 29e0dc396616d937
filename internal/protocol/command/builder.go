// Package command assembles well-formed CQC requests.
//
// The builder checks that the instruction is a defined kind and that the
// control header length matches the attached headers. It does not judge
// whether an option set makes sense for an instruction; that is caller policy.
package command

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/cqcctl/internal/protocol/wire"
)

var (
	ErrUnsupported   = errors.New("command: unsupported instruction")
	ErrInvalidLength = errors.New("command: invalid request length")
)

// Request is one outbound message: control header, and for everything except
// HELLO a command header plus an optional extended header.
type Request struct {
	Control  wire.ControlHeader
	Command  wire.CommandHeader
	Extended *wire.ExtendedCommandHeader
}

// Build assembles a COMMAND request. extra may be nil.
func Build(appID uint16, instr wire.Instr, targetID uint16, opts wire.Options, extra *wire.ExtendedCommandHeader) (Request, error) {
	return build(wire.CtrlCommand, appID, instr, targetID, opts, extra)
}

// BuildHello assembles the header-only liveness probe.
func BuildHello(appID uint16) Request {
	return Request{
		Control: wire.ControlHeader{
			Version:  wire.Version,
			CtrlType: wire.CtrlHello,
			AppID:    appID,
			Length:   0,
		},
	}
}

// BuildGetTime asks for the creation time of targetID; the node answers INF_TIME.
func BuildGetTime(appID uint16, targetID uint16, opts wire.Options) Request {
	req, _ := build(wire.CtrlGetTime, appID, wire.InstrI, targetID, opts, nil)
	return req
}

// BuildFactory assembles a FACTORY request that repeats instr steps times.
// extra carries any remote or second-operand fields; its Steps is overwritten.
func BuildFactory(appID uint16, instr wire.Instr, targetID uint16, opts wire.Options, steps uint8, extra *wire.ExtendedCommandHeader) (Request, error) {
	xtra := wire.ExtendedCommandHeader{}
	if extra != nil {
		xtra = *extra
	}
	xtra.Steps = steps
	return build(wire.CtrlFactory, appID, instr, targetID, opts, &xtra)
}

func build(ctrl wire.CtrlType, appID uint16, instr wire.Instr, targetID uint16, opts wire.Options, extra *wire.ExtendedCommandHeader) (Request, error) {
	if !instr.Valid() {
		return Request{}, fmt.Errorf("%w: %d", ErrUnsupported, uint8(instr))
	}
	length := uint32(wire.CommandHeaderLen)
	var xtra *wire.ExtendedCommandHeader
	if extra != nil {
		length += wire.ExtendedHeaderLen
		copied := *extra
		xtra = &copied
	}
	return Request{
		Control: wire.ControlHeader{
			Version:  wire.Version,
			CtrlType: ctrl,
			AppID:    appID,
			Length:   length,
		},
		Command: wire.CommandHeader{
			TargetID: targetID,
			Instr:    instr,
			Options:  opts,
		},
		Extended: xtra,
	}, nil
}

// IsHello reports whether r is the header-only liveness probe.
func (r Request) IsHello() bool {
	return r.Control.CtrlType == wire.CtrlHello
}

// Size is the total encoded length of r.
func (r Request) Size() int {
	return wire.ControlHeaderLen + int(r.Control.Length)
}

// MarshalBinary encodes r as one contiguous buffer.
func (r Request) MarshalBinary() []byte {
	buf := make([]byte, 0, r.Size())
	buf = append(buf, r.Control.MarshalBinary()...)
	if r.IsHello() {
		return buf
	}
	buf = append(buf, r.Command.MarshalBinary()...)
	if r.Extended != nil {
		buf = append(buf, r.Extended.MarshalBinary()...)
	}
	return buf
}

// WriteTo writes r with a single Write so a request is never split across
// calls by this package.
func (r Request) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.MarshalBinary())
	return int64(n), err
}

// Decode parses a request body previously read off a stream. It is the inverse
// of MarshalBinary and is used by peers and test doubles.
func Decode(ctrl wire.ControlHeader, body []byte) (Request, error) {
	if int(ctrl.Length) != len(body) {
		return Request{}, fmt.Errorf("%w: length=%d body=%d", ErrInvalidLength, ctrl.Length, len(body))
	}
	req := Request{Control: ctrl}
	switch ctrl.Length {
	case 0:
		if ctrl.CtrlType != wire.CtrlHello {
			return Request{}, fmt.Errorf("%w: %s without command header", ErrInvalidLength, ctrl.CtrlType)
		}
		return req, nil
	case wire.CommandHeaderLen, wire.CommandHeaderLen + wire.ExtendedHeaderLen:
	default:
		return Request{}, fmt.Errorf("%w: %d", ErrInvalidLength, ctrl.Length)
	}
	cmd, err := wire.DecodeCommandHeader(body)
	if err != nil {
		return Request{}, err
	}
	req.Command = cmd
	if ctrl.Length > wire.CommandHeaderLen {
		xtra, err := wire.DecodeExtendedCommandHeader(body[wire.CommandHeaderLen:])
		if err != nil {
			return Request{}, err
		}
		req.Extended = &xtra
	}
	return req, nil
}

// ReadRequest reads one full request from r.
func ReadRequest(r io.Reader) (Request, error) {
	ctrl, err := wire.ReadControlHeader(r)
	if err != nil {
		return Request{}, err
	}
	if ctrl.Length > wire.CommandHeaderLen+wire.ExtendedHeaderLen {
		return Request{}, fmt.Errorf("%w: %d", ErrInvalidLength, ctrl.Length)
	}
	body := make([]byte, ctrl.Length)
	if ctrl.Length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Request{}, err
		}
	}
	return Decode(ctrl, body)
}
