package session

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/cqcctl/internal/protocol/command"
	"github.com/danmuck/cqcctl/internal/protocol/fault"
	"github.com/danmuck/cqcctl/internal/protocol/wire"
	"github.com/danmuck/cqcctl/internal/testutil/fakenode"
	"github.com/danmuck/cqcctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func newScripted(t *testing.T, replies ...[]byte) (*Session, *fakenode.Stream) {
	t.Helper()
	stream := fakenode.NewStream(replies...)
	cfg := DefaultConfig()
	cfg.AppID = 10
	return New(stream, cfg), stream
}

func TestWaitUntilNewOKReturnsNotifyTarget(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t, fakenode.Reply(wire.CtrlNewOK, &wire.NotifyHeader{TargetID: 7}))

	id, err := s.WaitUntilNewOK(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(7), id)
	require.Equal(t, StateIdle, s.State())
	require.Empty(t, stream.Written())
}

func TestWaitUntilDoneStopsAtFirstMismatch(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t,
		fakenode.Reply(wire.CtrlDone, nil),
		fakenode.Reply(wire.CtrlNewOK, nil),
		fakenode.Reply(wire.CtrlDone, nil),
	)

	err := s.WaitUntilDone(context.Background(), 3)
	require.ErrorIs(t, err, fault.ErrMismatch)
	var protoErr *fault.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, wire.CtrlDone, protoErr.Expected)
	require.Equal(t, wire.CtrlNewOK, protoErr.Observed)
	require.Equal(t, wire.ControlHeaderLen, stream.Remaining(), "third header must stay unread")
	require.Equal(t, StateDesynchronized, s.State())
}

func TestWaitUntilDoneZeroReadsNothing(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t, fakenode.Reply(wire.CtrlDone, nil))
	require.NoError(t, s.WaitUntilDone(context.Background(), 0))
	require.Equal(t, wire.ControlHeaderLen, stream.Remaining())
}

func TestMeasureReturnsRawOutcome(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t, fakenode.Reply(wire.CtrlMeasOut, &wire.NotifyHeader{TargetID: 3, Outcome: 200}))

	outcome, err := s.Measure(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, uint8(200), outcome)

	reqs, err := stream.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, wire.CtrlCommand, reqs[0].Control.CtrlType)
	require.Equal(t, uint16(10), reqs[0].Control.AppID)
	require.Equal(t, wire.CommandHeader{TargetID: 3, Instr: wire.InstrMeasure}, reqs[0].Command)
}

func TestMeasureSurfacesServerErrorKind(t *testing.T) {
	testlog.Start(t)
	cases := map[wire.CtrlType]error{
		wire.CtrlErrGeneral: fault.ErrGeneral,
		wire.CtrlErrNoQubit: fault.ErrNoQubit,
		wire.CtrlErrUnsupp:  fault.ErrUnsupported,
		wire.CtrlErrTimeout: fault.ErrTimeout,
	}
	for code, want := range cases {
		s, _ := newScripted(t, fakenode.Reply(code, nil))
		_, err := s.Measure(context.Background(), 1)
		require.ErrorIs(t, err, want, "code=%s", code)
		require.NotErrorIs(t, err, fault.ErrMismatch)
	}
}

func TestReceiveSendsTargetZero(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t, fakenode.Reply(wire.CtrlRecv, &wire.NotifyHeader{TargetID: 12}))

	id, err := s.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(12), id)

	reqs, err := stream.Requests()
	require.NoError(t, err)
	require.Equal(t, wire.CommandHeader{TargetID: 0, Instr: wire.InstrRecv}, reqs[0].Command)
}

func TestOneWayRequestLayouts(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t)
	ctx := context.Background()

	require.NoError(t, s.Hello(ctx))
	require.NoError(t, s.Send(ctx, 4, 11, 0x7f000001, 8822))
	require.NoError(t, s.EPR(ctx, 11, 0x7f000001, 8822))
	require.NoError(t, s.TwoQubit(ctx, wire.InstrCNOT, 1, 2))

	reqs, err := stream.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 4)

	require.True(t, reqs[0].IsHello())
	require.Equal(t, uint32(0), reqs[0].Control.Length)

	send := reqs[1]
	require.Equal(t, uint32(20), send.Control.Length)
	require.Equal(t, wire.CommandHeader{TargetID: 4, Instr: wire.InstrSend, Options: wire.OptNotify}, send.Command)
	require.Equal(t, wire.ExtendedCommandHeader{RemoteAppID: 11, RemoteNode: 0x7f000001, RemotePort: 8822}, *send.Extended)

	epr := reqs[2]
	require.Equal(t, wire.InstrRecv, epr.Command.Instr, "pair request is RECV-class")
	require.Equal(t, wire.OptBlock, epr.Command.Options)
	require.Equal(t, wire.ExtendedCommandHeader{RemoteAppID: 11, RemoteNode: 0x7f000001, RemotePort: 8822}, *epr.Extended)

	two := reqs[3]
	require.Equal(t, wire.CommandHeader{TargetID: 1, Instr: wire.InstrCNOT, Options: wire.OptBlock}, two.Command)
	require.Equal(t, uint16(2), two.Extended.ExtraID)
	require.Equal(t, StateIdle, s.State())
}

func TestUnknownInstrWritesNothing(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t)
	err := s.Command(context.Background(), wire.Instr(9), 0, 0)
	require.ErrorIs(t, err, command.ErrUnsupported)
	require.Empty(t, stream.Written())
	require.Equal(t, StateIdle, s.State(), "a rejected build does not touch the stream")
}

func TestAllocateGateRotate(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t,
		fakenode.Reply(wire.CtrlNewOK, &wire.NotifyHeader{TargetID: 5}),
		fakenode.Reply(wire.CtrlDone, nil),
		fakenode.Reply(wire.CtrlDone, nil),
		fakenode.Reply(wire.CtrlDone, nil),
	)
	ctx := context.Background()

	id, err := s.Allocate(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(5), id)
	require.NoError(t, s.Gate(ctx, wire.InstrH, id))
	require.NoError(t, s.Rotate(ctx, wire.InstrRotX, id, 64))
	require.Zero(t, stream.Remaining())

	reqs, err := stream.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	require.Equal(t, wire.InstrNew, reqs[0].Command.Instr)
	require.Equal(t, wire.OptNotify|wire.OptBlock, reqs[0].Command.Options)
	require.Equal(t, wire.CommandHeader{TargetID: 5, Instr: wire.InstrH, Options: wire.OptNotify | wire.OptBlock}, reqs[1].Command)
	require.Equal(t, uint8(64), reqs[2].Extended.Steps)

	err = s.Rotate(ctx, wire.InstrH, id, 1)
	require.ErrorIs(t, err, command.ErrUnsupported)
}

func TestReceiveEPRSkipsEntanglementTrailer(t *testing.T) {
	testlog.Start(t)
	reply := fakenode.Reply(wire.CtrlEPROK, &wire.NotifyHeader{TargetID: 9})
	// widen the control length to cover a 40 byte trailer
	reply[7] = wire.NotifyHeaderLen + entInfoLen
	reply = append(reply, make([]byte, entInfoLen)...)
	s, stream := newScripted(t, reply, fakenode.Reply(wire.CtrlDone, nil))

	id, err := s.ReceiveEPR(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(9), id)
	require.Zero(t, stream.Remaining())
}

func TestCreateEPRReturnsLocalHalf(t *testing.T) {
	testlog.Start(t)
	reply := fakenode.Reply(wire.CtrlEPROK, &wire.NotifyHeader{TargetID: 6, RemoteAppID: 11})
	reply[7] = wire.NotifyHeaderLen + entInfoLen
	reply = append(reply, make([]byte, entInfoLen)...)
	s, stream := newScripted(t, reply, fakenode.Reply(wire.CtrlDone, nil))

	id, err := s.CreateEPR(context.Background(), 11, 0x7f000001, 8822)
	require.NoError(t, err)
	require.Equal(t, uint16(6), id)
	require.Zero(t, stream.Remaining())
	require.Equal(t, StateIdle, s.State())

	reqs, err := stream.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, wire.CommandHeader{Instr: wire.InstrEPR, Options: wire.OptNotify | wire.OptBlock}, reqs[0].Command)
	require.Equal(t, wire.ExtendedCommandHeader{RemoteAppID: 11, RemoteNode: 0x7f000001, RemotePort: 8822}, *reqs[0].Extended)
}

func TestCreateEPRSurfacesNoQubit(t *testing.T) {
	testlog.Start(t)
	s, _ := newScripted(t, fakenode.Reply(wire.CtrlErrNoQubit, nil))
	_, err := s.CreateEPR(context.Background(), 11, 1, 2)
	require.ErrorIs(t, err, fault.ErrNoQubit)
	require.Equal(t, StateDesynchronized, s.State())
}

func TestFactoryForwardsExtendedHeader(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t, fakenode.Reply(wire.CtrlDone, nil))

	extra := &wire.ExtendedCommandHeader{ExtraID: 2, Steps: 99}
	notes, err := s.Factory(context.Background(), wire.InstrCNOT, 1, 4, extra)
	require.NoError(t, err)
	require.Empty(t, notes)

	reqs, err := stream.Requests()
	require.NoError(t, err)
	require.Equal(t, wire.CtrlFactory, reqs[0].Control.CtrlType)
	require.Equal(t, uint16(2), reqs[0].Extended.ExtraID)
	require.Equal(t, uint8(4), reqs[0].Extended.Steps, "steps comes from the repetition count")
}

func TestGetTimeReturnsTimestamp(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t, fakenode.Reply(wire.CtrlInfTime, &wire.NotifyHeader{TargetID: 2, Timestamp: 1_700_000_000}))

	ts, err := s.GetTime(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, uint64(1_700_000_000), ts)

	reqs, err := stream.Requests()
	require.NoError(t, err)
	require.Equal(t, wire.CtrlGetTime, reqs[0].Control.CtrlType)
}

func TestFactoryCollectsPerRepetitionReplies(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t,
		fakenode.Reply(wire.CtrlNewOK, &wire.NotifyHeader{TargetID: 1}),
		fakenode.Reply(wire.CtrlNewOK, &wire.NotifyHeader{TargetID: 2}),
		fakenode.Reply(wire.CtrlDone, nil),
		fakenode.Reply(wire.CtrlDone, nil),
	)
	ctx := context.Background()

	notes, err := s.Factory(ctx, wire.InstrNew, 0, 2, nil)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, uint16(2), notes[1].TargetID)

	notes, err = s.Factory(ctx, wire.InstrX, 1, 3, nil)
	require.NoError(t, err)
	require.Empty(t, notes)

	reqs, err := stream.Requests()
	require.NoError(t, err)
	require.Equal(t, wire.CtrlFactory, reqs[1].Control.CtrlType)
	require.Equal(t, uint8(3), reqs[1].Extended.Steps)
}

func TestFailureDesynchronizesSession(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t, fakenode.Reply(wire.CtrlDone, nil), fakenode.Reply(wire.CtrlMeasOut, nil))

	_, err := s.Measure(context.Background(), 1)
	require.ErrorIs(t, err, fault.ErrMismatch)
	require.Equal(t, StateDesynchronized, s.State())
	require.ErrorIs(t, s.Err(), fault.ErrMismatch)

	written := len(stream.Written())
	_, err = s.Measure(context.Background(), 1)
	require.ErrorIs(t, err, ErrDesynchronized)
	require.Len(t, stream.Written(), written, "refused call must not write")
}

func TestTruncatedReplyIsTransportError(t *testing.T) {
	testlog.Start(t)
	s, _ := newScripted(t, fakenode.Reply(wire.CtrlMeasOut, nil))

	_, err := s.Measure(context.Background(), 1)
	var transportErr *fault.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestUnknownReplyCodeIsCodecError(t *testing.T) {
	testlog.Start(t)
	s, _ := newScripted(t, []byte{0, 11, 0, 10, 0, 0, 0, 0})

	_, err := s.WaitUntilNewOK(context.Background())
	require.ErrorIs(t, err, wire.ErrUnknownCtrlType)
	require.Equal(t, StateDesynchronized, s.State())
}

func TestDoneContextDoesNotTouchStream(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Hello(ctx), context.Canceled)
	require.Empty(t, stream.Written())
	require.Equal(t, StateIdle, s.State())
}

func TestCloseReportsShutdownFailure(t *testing.T) {
	testlog.Start(t)
	s, stream := newScripted(t)
	stream.CloseErr = errors.New("reset by peer")

	err := s.Close()
	require.Error(t, err)
	require.ErrorIs(t, err, stream.CloseErr)
	var transportErr *fault.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "close", transportErr.Op)

	require.NoError(t, s.Close(), "second close is a no-op")
	require.ErrorIs(t, s.Hello(context.Background()), ErrClosed)
}

func TestDialAddressRequired(t *testing.T) {
	testlog.Start(t)
	_, err := Dial(context.Background(), Config{})
	require.ErrorIs(t, err, ErrAddressRequired)
}

func TestDialFailureIsTransportError(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), Config{Address: addr, ConnectTimeout: time.Second})
	var transportErr *fault.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "dial", transportErr.Op)
}

// echoMeasure answers every MEASURE with an outcome equal to the target id.
func echoMeasure(req command.Request) [][]byte {
	if req.Command.Instr != wire.InstrMeasure {
		return nil
	}
	return [][]byte{fakenode.Reply(wire.CtrlMeasOut, &wire.NotifyHeader{
		TargetID: req.Command.TargetID,
		Outcome:  uint8(req.Command.TargetID),
	})}
}

func TestDialMeasureOverTCP(t *testing.T) {
	testlog.Start(t)
	node := fakenode.Start(t, echoMeasure)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := Dial(ctx, Config{Address: node.Addr(), AppID: 3})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Hello(ctx))
	require.True(t, node.Next(t).IsHello())

	outcome, err := s.Measure(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, uint8(42), outcome)
	req := node.Next(t)
	require.Equal(t, uint16(3), req.Control.AppID)
	require.Equal(t, uint16(42), req.Command.TargetID)
}

func TestReadDeadlineFromContext(t *testing.T) {
	testlog.Start(t)
	node := fakenode.Start(t, nil)
	s, err := Dial(context.Background(), Config{Address: node.Addr()})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.WaitUntilNewOK(ctx)
	var transportErr *fault.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "read", transportErr.Op)
	require.Equal(t, StateDesynchronized, s.State())
}

func TestUnsolicitedReplyDesynchronizesOverTCP(t *testing.T) {
	testlog.Start(t)
	node := fakenode.Start(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := Dial(ctx, Config{Address: node.Addr()})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	node.Push(t, fakenode.Reply(wire.CtrlDone, nil))
	_, err = s.WaitUntilNewOK(ctx)
	require.ErrorIs(t, err, fault.ErrMismatch)
	require.Equal(t, StateDesynchronized, s.State())

	node.Push(t, fakenode.Reply(wire.CtrlNewOK, &wire.NotifyHeader{TargetID: 1}))
	_, err = s.WaitUntilNewOK(ctx)
	require.ErrorIs(t, err, ErrDesynchronized)
}

// Two callers share one session with no external serialization. Caller A
// writes its MEASURE and is preempted before reading; caller B then runs a
// full Measure and reads the reply that belongs to A. Correlation is purely
// positional, so this is outside the session's safety contract.
func TestUnserializedCallersMiscorrelate(t *testing.T) {
	testlog.Start(t)
	node := fakenode.Start(t, echoMeasure)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := Dial(ctx, Config{Address: node.Addr(), AppID: 1})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// caller A: request only
	require.NoError(t, s.command(ctx, "measure", wire.InstrMeasure, 1, 0, nil))

	// caller B: full round trip, receives A's outcome
	gotB, err := s.Measure(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, uint8(1), gotB)

	// caller A resumes and receives B's outcome
	_, note, err := s.awaitNotify(ctx, "measure", wire.CtrlMeasOut)
	require.NoError(t, err)
	require.Equal(t, uint8(2), note.Outcome)
}
