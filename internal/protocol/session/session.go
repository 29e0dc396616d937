package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/danmuck/cqcctl/internal/observability"
	"github.com/danmuck/cqcctl/internal/protocol/command"
	"github.com/danmuck/cqcctl/internal/protocol/fault"
	"github.com/danmuck/cqcctl/internal/protocol/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("session: address is required")
	ErrDesynchronized  = errors.New("session: stream desynchronized, reconnect required")
	ErrClosed          = errors.New("session: closed")
	ErrReplyTooLarge   = errors.New("session: reply longer than expected")
)

// entInfoLen is the entanglement information trailer the node appends to
// EPR_OK replies after the notify header.
const entInfoLen = 40

// State is the position of a Session in its request/reply cycle.
type State uint8

const (
	StateIdle State = iota
	StateAwaitingReply
	StateDesynchronized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateDesynchronized:
		return "desynchronized"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Session is one client conversation over an exclusively owned stream.
type Session struct {
	conn  io.ReadWriteCloser
	cfg   Config
	log   zerolog.Logger
	state State
	cause error
}

// Dial connects to cfg.Address over TCP.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		observability.RecordFailure("dial", "transport")
		return nil, fmt.Errorf("session: dial %s: %w", cfg.Address, fault.Transport("dial", err))
	}
	s := New(conn, cfg)
	s.log.Debug().Str("addr", cfg.Address).Msg("connected")
	return s, nil
}

// New wraps an already connected stream. The Session owns conn from here on.
func New(conn io.ReadWriteCloser, cfg Config) *Session {
	cfg = cfg.WithDefaults()
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Session{
		conn: conn,
		cfg:  cfg,
		log:  logger.With().Str("component", "cqc_session").Uint16("app_id", cfg.AppID).Logger(),
	}
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) AppID() uint16 {
	return s.cfg.AppID
}

// Err returns the failure that desynchronized the session, if any.
func (s *Session) Err() error {
	return s.cause
}

// Close shuts down both halves of the stream where supported and closes it.
// Every step is attempted; failures are joined and returned.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	var errs []error
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			errs = append(errs, fault.Transport("close_write", err))
		}
	}
	if cr, ok := s.conn.(interface{ CloseRead() error }); ok {
		if err := cr.CloseRead(); err != nil {
			errs = append(errs, fault.Transport("close_read", err))
		}
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fault.Transport("close", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		observability.RecordFailure("close", "transport")
		s.log.Warn().Err(err).Msg("shutdown failed")
		return fmt.Errorf("session: close: %w", err)
	}
	s.log.Debug().Msg("closed")
	return nil
}

// begin refuses work on a closed or desynchronized session and on a ctx that
// is already done. None of these touch the stream.
func (s *Session) begin(ctx context.Context, op string) error {
	switch s.state {
	case StateClosed:
		return fmt.Errorf("session: %s: %w", op, ErrClosed)
	case StateDesynchronized:
		return fmt.Errorf("session: %s: %w", op, ErrDesynchronized)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session: %s: %w", op, err)
	}
	return nil
}

func (s *Session) send(ctx context.Context, op string, req command.Request) error {
	s.setWriteDeadline(ctx)
	if _, err := req.WriteTo(s.conn); err != nil {
		return s.fail(op, fault.Transport("write", err))
	}
	instr := "none"
	if !req.IsHello() {
		instr = req.Command.Instr.String()
	}
	observability.RecordRequest(req.Control.CtrlType.String(), instr)
	s.log.Debug().
		Str("op", op).
		Str("ctrl", req.Control.CtrlType.String()).
		Str("instr", instr).
		Uint16("target_id", req.Command.TargetID).
		Str("options", req.Command.Options.String()).
		Uint32("length", req.Control.Length).
		Msg("request written")
	return nil
}

// await reads one control header and checks it against expected.
func (s *Session) await(ctx context.Context, op string, expected wire.CtrlType) (wire.ControlHeader, error) {
	s.state = StateAwaitingReply
	s.setReadDeadline(ctx)
	start := time.Now()
	hdr, err := wire.ReadControlHeader(s.conn)
	observability.ObserveReplyWait(op, time.Since(start))
	if err != nil {
		return wire.ControlHeader{}, s.fail(op, readErr(err))
	}
	observability.RecordReply(hdr.CtrlType.String())
	s.log.Debug().
		Str("op", op).
		Str("ctrl", hdr.CtrlType.String()).
		Str("expected", expected.String()).
		Uint32("length", hdr.Length).
		Msg("reply read")
	if err := fault.Classify(expected, hdr.CtrlType); err != nil {
		return hdr, s.fail(op, err)
	}
	return hdr, nil
}

// awaitNotify reads a control header of kind expected followed by its notify
// header.
func (s *Session) awaitNotify(ctx context.Context, op string, expected wire.CtrlType) (wire.ControlHeader, wire.NotifyHeader, error) {
	hdr, err := s.await(ctx, op, expected)
	if err != nil {
		return hdr, wire.NotifyHeader{}, err
	}
	note, err := wire.ReadNotifyHeader(s.conn)
	if err != nil {
		return hdr, wire.NotifyHeader{}, s.fail(op, readErr(err))
	}
	return hdr, note, nil
}

// awaitEntangled reads an EPR_OK reply and skips the entanglement trailer.
func (s *Session) awaitEntangled(ctx context.Context, op string) (wire.NotifyHeader, error) {
	hdr, note, err := s.awaitNotify(ctx, op, wire.CtrlEPROK)
	if err != nil {
		return note, err
	}
	if hdr.Length <= wire.NotifyHeaderLen {
		return note, nil
	}
	extra := int64(hdr.Length - wire.NotifyHeaderLen)
	if extra > entInfoLen {
		return note, s.fail(op, fmt.Errorf("%w: length=%d", ErrReplyTooLarge, hdr.Length))
	}
	if _, err := io.CopyN(io.Discard, s.conn, extra); err != nil {
		return note, s.fail(op, readErr(err))
	}
	return note, nil
}

func (s *Session) idle() {
	s.state = StateIdle
}

// fail marks the stream position as untrustworthy. The session refuses all
// further work until it is replaced.
func (s *Session) fail(op string, err error) error {
	s.state = StateDesynchronized
	s.cause = err
	kind := fault.KindOf(err)
	observability.RecordFailure(op, kind)
	s.log.Warn().Err(err).Str("op", op).Str("kind", kind).Msg("session desynchronized")
	return fmt.Errorf("session: %s: %w", op, err)
}

func readErr(err error) error {
	var codecErr *wire.CodecError
	if errors.As(err, &codecErr) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fault.Transport("read", err)
}

type deadlineConn interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// deadline prefers the ctx deadline over the configured timeout. The zero
// time clears any deadline left by an earlier call.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	if timeout > 0 {
		return time.Now().Add(timeout)
	}
	return time.Time{}
}

func (s *Session) setReadDeadline(ctx context.Context) {
	if conn, ok := s.conn.(deadlineConn); ok {
		_ = conn.SetReadDeadline(deadline(ctx, s.cfg.ReadTimeout))
	}
}

func (s *Session) setWriteDeadline(ctx context.Context) {
	if conn, ok := s.conn.(deadlineConn); ok {
		_ = conn.SetWriteDeadline(deadline(ctx, s.cfg.WriteTimeout))
	}
}
