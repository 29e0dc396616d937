package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// Fixed header sizes on the wire. All multi-byte integers are big-endian.
const (
	ControlHeaderLen  = 8
	CommandHeaderLen  = 4
	ExtendedHeaderLen = 16
	NotifyHeaderLen   = 20
)

// ControlHeader is the outer framing header of every message.
//
//	0      version   u8
//	1      ctrl_type u8
//	2..3   app_id    u16
//	4..7   length    u32 (bytes of headers that follow)
type ControlHeader struct {
	Version  uint8
	CtrlType CtrlType
	AppID    uint16
	Length   uint32
}

func (h ControlHeader) MarshalBinary() []byte {
	buf := make([]byte, ControlHeaderLen)
	buf[0] = h.Version
	buf[1] = byte(h.CtrlType)
	binary.BigEndian.PutUint16(buf[2:4], h.AppID)
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
	return buf
}

// DecodeControlHeader decodes the first ControlHeaderLen bytes of b.
func DecodeControlHeader(b []byte) (ControlHeader, error) {
	if len(b) < ControlHeaderLen {
		return ControlHeader{}, shortBuffer("control header", len(b), ControlHeaderLen)
	}
	t, err := ParseCtrlType(b[1])
	if err != nil {
		return ControlHeader{}, codecErr("control header", err)
	}
	return ControlHeader{
		Version:  b[0],
		CtrlType: t,
		AppID:    binary.BigEndian.Uint16(b[2:4]),
		Length:   binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// CommandHeader names the instruction and its target.
//
//	0..1   target_id u16
//	2      instr     u8
//	3      options   u8
type CommandHeader struct {
	TargetID uint16
	Instr    Instr
	Options  Options
}

func (h CommandHeader) MarshalBinary() []byte {
	buf := make([]byte, CommandHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], h.TargetID)
	buf[2] = byte(h.Instr)
	buf[3] = byte(h.Options)
	return buf
}

func DecodeCommandHeader(b []byte) (CommandHeader, error) {
	if len(b) < CommandHeaderLen {
		return CommandHeader{}, shortBuffer("command header", len(b), CommandHeaderLen)
	}
	instr, err := ParseInstr(b[2])
	if err != nil {
		return CommandHeader{}, codecErr("command header", err)
	}
	return CommandHeader{
		TargetID: binary.BigEndian.Uint16(b[0:2]),
		Instr:    instr,
		Options:  Options(b[3]),
	}, nil
}

// ExtendedCommandHeader carries remote addressing, a second operand, or a
// step/repetition count.
//
//	0..1    extra_id      u16
//	2..3    remote_app_id u16
//	4..7    remote_node   u32
//	8..11   cmd_length    u32
//	12..13  remote_port   u16
//	14      steps         u8
//	15      pad           u8
type ExtendedCommandHeader struct {
	ExtraID     uint16
	RemoteAppID uint16
	RemoteNode  uint32
	CmdLength   uint32
	RemotePort  uint16
	Steps       uint8
	Pad         uint8
}

func (h ExtendedCommandHeader) MarshalBinary() []byte {
	buf := make([]byte, ExtendedHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], h.ExtraID)
	binary.BigEndian.PutUint16(buf[2:4], h.RemoteAppID)
	binary.BigEndian.PutUint32(buf[4:8], h.RemoteNode)
	binary.BigEndian.PutUint32(buf[8:12], h.CmdLength)
	binary.BigEndian.PutUint16(buf[12:14], h.RemotePort)
	buf[14] = h.Steps
	buf[15] = h.Pad
	return buf
}

func DecodeExtendedCommandHeader(b []byte) (ExtendedCommandHeader, error) {
	if len(b) < ExtendedHeaderLen {
		return ExtendedCommandHeader{}, shortBuffer("extended command header", len(b), ExtendedHeaderLen)
	}
	return ExtendedCommandHeader{
		ExtraID:     binary.BigEndian.Uint16(b[0:2]),
		RemoteAppID: binary.BigEndian.Uint16(b[2:4]),
		RemoteNode:  binary.BigEndian.Uint32(b[4:8]),
		CmdLength:   binary.BigEndian.Uint32(b[8:12]),
		RemotePort:  binary.BigEndian.Uint16(b[12:14]),
		Steps:       b[14],
		Pad:         b[15],
	}, nil
}

// NotifyHeader is the reply payload for outcomes and transfers.
//
//	0..1    target_id     u16
//	2..3    remote_app_id u16
//	4..7    remote_node   u32
//	8..15   timestamp     u64
//	16..17  remote_port   u16
//	18      outcome       u8
//	19      pad           u8
type NotifyHeader struct {
	TargetID    uint16
	RemoteAppID uint16
	RemoteNode  uint32
	Timestamp   uint64
	RemotePort  uint16
	Outcome     uint8
	Pad         uint8
}

func (h NotifyHeader) MarshalBinary() []byte {
	buf := make([]byte, NotifyHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], h.TargetID)
	binary.BigEndian.PutUint16(buf[2:4], h.RemoteAppID)
	binary.BigEndian.PutUint32(buf[4:8], h.RemoteNode)
	binary.BigEndian.PutUint64(buf[8:16], h.Timestamp)
	binary.BigEndian.PutUint16(buf[16:18], h.RemotePort)
	buf[18] = h.Outcome
	buf[19] = h.Pad
	return buf
}

func DecodeNotifyHeader(b []byte) (NotifyHeader, error) {
	if len(b) < NotifyHeaderLen {
		return NotifyHeader{}, shortBuffer("notify header", len(b), NotifyHeaderLen)
	}
	return NotifyHeader{
		TargetID:    binary.BigEndian.Uint16(b[0:2]),
		RemoteAppID: binary.BigEndian.Uint16(b[2:4]),
		RemoteNode:  binary.BigEndian.Uint32(b[4:8]),
		Timestamp:   binary.BigEndian.Uint64(b[8:16]),
		RemotePort:  binary.BigEndian.Uint16(b[16:18]),
		Outcome:     b[18],
		Pad:         b[19],
	}, nil
}

// ReadControlHeader blocks until one ControlHeader has been read from r.
// I/O failures are returned as-is so callers can tell them apart from
// *CodecError.
func ReadControlHeader(r io.Reader) (ControlHeader, error) {
	var buf [ControlHeaderLen]byte
	if err := readFull(r, buf[:]); err != nil {
		return ControlHeader{}, err
	}
	return DecodeControlHeader(buf[:])
}

// ReadNotifyHeader blocks until one NotifyHeader has been read from r.
func ReadNotifyHeader(r io.Reader) (NotifyHeader, error) {
	var buf [NotifyHeaderLen]byte
	if err := readFull(r, buf[:]); err != nil {
		return NotifyHeader{}, err
	}
	return DecodeNotifyHeader(buf[:])
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
