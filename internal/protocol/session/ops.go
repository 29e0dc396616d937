package session

import (
	"context"
	"fmt"

	"github.com/danmuck/cqcctl/internal/protocol/command"
	"github.com/danmuck/cqcctl/internal/protocol/wire"
)

// blocking is the option set for commands whose completion is acknowledged
// with a trailing DONE.
const blocking = wire.OptNotify | wire.OptBlock

// Hello writes a header-only HELLO. No reply is awaited.
func (s *Session) Hello(ctx context.Context) error {
	const op = "hello"
	if err := s.begin(ctx, op); err != nil {
		return err
	}
	return s.send(ctx, op, command.BuildHello(s.cfg.AppID))
}

// Measure measures qubit id and returns the raw outcome byte.
func (s *Session) Measure(ctx context.Context, id uint16) (uint8, error) {
	const op = "measure"
	if err := s.command(ctx, op, wire.InstrMeasure, id, 0, nil); err != nil {
		return 0, err
	}
	_, note, err := s.awaitNotify(ctx, op, wire.CtrlMeasOut)
	if err != nil {
		return 0, err
	}
	s.idle()
	return note.Outcome, nil
}

// Receive waits for a qubit sent by a remote application and returns its id.
func (s *Session) Receive(ctx context.Context) (uint16, error) {
	const op = "receive"
	if err := s.command(ctx, op, wire.InstrRecv, 0, 0, nil); err != nil {
		return 0, err
	}
	_, note, err := s.awaitNotify(ctx, op, wire.CtrlRecv)
	if err != nil {
		return 0, err
	}
	s.idle()
	return note.TargetID, nil
}

// WaitUntilNewOK reads a NEW_OK reply and returns the allocated qubit id.
func (s *Session) WaitUntilNewOK(ctx context.Context) (uint16, error) {
	const op = "wait_new_ok"
	if err := s.begin(ctx, op); err != nil {
		return 0, err
	}
	_, note, err := s.awaitNotify(ctx, op, wire.CtrlNewOK)
	if err != nil {
		return 0, err
	}
	s.idle()
	return note.TargetID, nil
}

// WaitUntilDone reads n DONE replies. It stops at the first other reply and
// leaves the session desynchronized.
func (s *Session) WaitUntilDone(ctx context.Context, n int) error {
	const op = "wait_done"
	if err := s.begin(ctx, op); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := s.await(ctx, op, wire.CtrlDone); err != nil {
			return err
		}
	}
	s.idle()
	return nil
}

// Send transfers qubit id to a remote application. Completion is observed with
// WaitUntilDone.
func (s *Session) Send(ctx context.Context, id uint16, remoteAppID uint16, remoteNode uint32, remotePort uint16) error {
	return s.command(ctx, "send", wire.InstrSend, id, wire.OptNotify, &wire.ExtendedCommandHeader{
		RemoteAppID: remoteAppID,
		RemoteNode:  remoteNode,
		RemotePort:  remotePort,
	})
}

// EPR writes the extended RECV-class pair request with BLOCK set, naming the
// remote peer. No reply is awaited.
func (s *Session) EPR(ctx context.Context, remoteAppID uint16, remoteNode uint32, remotePort uint16) error {
	return s.command(ctx, "epr", wire.InstrRecv, 0, wire.OptBlock, &wire.ExtendedCommandHeader{
		RemoteAppID: remoteAppID,
		RemoteNode:  remoteNode,
		RemotePort:  remotePort,
	})
}

// CreateEPR creates an entangled pair with a remote application and returns
// the id of this node's half once the node reports DONE.
func (s *Session) CreateEPR(ctx context.Context, remoteAppID uint16, remoteNode uint32, remotePort uint16) (uint16, error) {
	const op = "create_epr"
	err := s.command(ctx, op, wire.InstrEPR, 0, blocking, &wire.ExtendedCommandHeader{
		RemoteAppID: remoteAppID,
		RemoteNode:  remoteNode,
		RemotePort:  remotePort,
	})
	if err != nil {
		return 0, err
	}
	note, err := s.awaitEntangled(ctx, op)
	if err != nil {
		return 0, err
	}
	if _, err := s.await(ctx, op, wire.CtrlDone); err != nil {
		return 0, err
	}
	s.idle()
	return note.TargetID, nil
}

// TwoQubit applies a binary gate with a as target and b as the second operand.
func (s *Session) TwoQubit(ctx context.Context, instr wire.Instr, a, b uint16) error {
	return s.command(ctx, "two_qubit", instr, a, wire.OptBlock, &wire.ExtendedCommandHeader{ExtraID: b})
}

// Command writes a plain command without waiting for any reply.
func (s *Session) Command(ctx context.Context, instr wire.Instr, id uint16, opts wire.Options) error {
	return s.command(ctx, "command", instr, id, opts, nil)
}

// CommandExtended writes a command with an extended header without waiting for
// any reply.
func (s *Session) CommandExtended(ctx context.Context, instr wire.Instr, id uint16, opts wire.Options, extra wire.ExtendedCommandHeader) error {
	return s.command(ctx, "command", instr, id, opts, &extra)
}

// Allocate creates a fresh qubit and returns its id once the node reports DONE.
func (s *Session) Allocate(ctx context.Context) (uint16, error) {
	const op = "allocate"
	if err := s.command(ctx, op, wire.InstrNew, 0, blocking, nil); err != nil {
		return 0, err
	}
	_, note, err := s.awaitNotify(ctx, op, wire.CtrlNewOK)
	if err != nil {
		return 0, err
	}
	if _, err := s.await(ctx, op, wire.CtrlDone); err != nil {
		return 0, err
	}
	s.idle()
	return note.TargetID, nil
}

// Gate applies a single qubit instruction to id and waits for DONE.
func (s *Session) Gate(ctx context.Context, instr wire.Instr, id uint16) error {
	const op = "gate"
	if err := s.command(ctx, op, instr, id, blocking, nil); err != nil {
		return err
	}
	return s.awaitDone(ctx, op)
}

// Rotate rotates id by steps multiples of 2π/256 and waits for DONE.
func (s *Session) Rotate(ctx context.Context, instr wire.Instr, id uint16, steps uint8) error {
	const op = "rotate"
	if !instr.IsRotation() {
		return fmt.Errorf("session: %s: %w: %s is not a rotation", op, command.ErrUnsupported, instr)
	}
	if err := s.command(ctx, op, instr, id, blocking, &wire.ExtendedCommandHeader{Steps: steps}); err != nil {
		return err
	}
	return s.awaitDone(ctx, op)
}

// ReceiveEPR waits for this node's half of an entangled pair and returns its
// qubit id.
func (s *Session) ReceiveEPR(ctx context.Context) (uint16, error) {
	const op = "receive_epr"
	if err := s.command(ctx, op, wire.InstrEPRRecv, 0, blocking, nil); err != nil {
		return 0, err
	}
	note, err := s.awaitEntangled(ctx, op)
	if err != nil {
		return 0, err
	}
	if _, err := s.await(ctx, op, wire.CtrlDone); err != nil {
		return 0, err
	}
	s.idle()
	return note.TargetID, nil
}

// GetTime returns the creation timestamp the node holds for qubit id.
func (s *Session) GetTime(ctx context.Context, id uint16) (uint64, error) {
	const op = "get_time"
	if err := s.begin(ctx, op); err != nil {
		return 0, err
	}
	if err := s.send(ctx, op, command.BuildGetTime(s.cfg.AppID, id, wire.OptBlock)); err != nil {
		return 0, err
	}
	_, note, err := s.awaitNotify(ctx, op, wire.CtrlInfTime)
	if err != nil {
		return 0, err
	}
	s.idle()
	return note.Timestamp, nil
}

// Factory repeats instr on id n times in one request. extra carries the second
// operand or remote peer and may be nil. Instructions that produce a qubit or
// an outcome yield one notify header per repetition.
func (s *Session) Factory(ctx context.Context, instr wire.Instr, id uint16, n uint8, extra *wire.ExtendedCommandHeader) ([]wire.NotifyHeader, error) {
	const op = "factory"
	if err := s.begin(ctx, op); err != nil {
		return nil, err
	}
	req, err := command.BuildFactory(s.cfg.AppID, instr, id, blocking, n, extra)
	if err != nil {
		return nil, fmt.Errorf("session: %s: %w", op, err)
	}
	if err := s.send(ctx, op, req); err != nil {
		return nil, err
	}

	var notes []wire.NotifyHeader
	if reply, ok := factoryReply(instr); ok {
		notes = make([]wire.NotifyHeader, 0, n)
		for i := 0; i < int(n); i++ {
			var note wire.NotifyHeader
			if reply == wire.CtrlEPROK {
				note, err = s.awaitEntangled(ctx, op)
			} else {
				_, note, err = s.awaitNotify(ctx, op, reply)
			}
			if err != nil {
				return nil, err
			}
			notes = append(notes, note)
		}
	}
	if err := s.awaitDone(ctx, op); err != nil {
		return nil, err
	}
	return notes, nil
}

// factoryReply names the per-repetition reply for instructions that return
// a qubit id or an outcome.
func factoryReply(instr wire.Instr) (wire.CtrlType, bool) {
	switch instr {
	case wire.InstrNew:
		return wire.CtrlNewOK, true
	case wire.InstrMeasure, wire.InstrMeasureInplace:
		return wire.CtrlMeasOut, true
	case wire.InstrRecv:
		return wire.CtrlRecv, true
	case wire.InstrEPR, wire.InstrEPRRecv:
		return wire.CtrlEPROK, true
	default:
		return 0, false
	}
}

// command builds and writes one COMMAND request.
func (s *Session) command(ctx context.Context, op string, instr wire.Instr, id uint16, opts wire.Options, extra *wire.ExtendedCommandHeader) error {
	if err := s.begin(ctx, op); err != nil {
		return err
	}
	req, err := command.Build(s.cfg.AppID, instr, id, opts, extra)
	if err != nil {
		return fmt.Errorf("session: %s: %w", op, err)
	}
	return s.send(ctx, op, req)
}

func (s *Session) awaitDone(ctx context.Context, op string) error {
	if _, err := s.await(ctx, op, wire.CtrlDone); err != nil {
		return err
	}
	s.idle()
	return nil
}
