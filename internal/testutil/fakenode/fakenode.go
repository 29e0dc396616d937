// Package fakenode provides test doubles for a CQC node: an in-memory scripted
// stream and a loopback TCP peer driven by a request handler.
package fakenode

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/cqcctl/internal/protocol/command"
	"github.com/danmuck/cqcctl/internal/protocol/wire"
)

// Reply encodes a control header of type t, followed by note when non-nil.
// The control length is set to match.
func Reply(t wire.CtrlType, note *wire.NotifyHeader) []byte {
	ctrl := wire.ControlHeader{Version: wire.Version, CtrlType: t}
	if note == nil {
		return ctrl.MarshalBinary()
	}
	ctrl.Length = wire.NotifyHeaderLen
	out := ctrl.MarshalBinary()
	return append(out, note.MarshalBinary()...)
}

// Stream is a scripted io.ReadWriteCloser. Reads drain the reply script,
// writes are captured.
type Stream struct {
	mu       sync.Mutex
	replies  *bytes.Reader
	written  bytes.Buffer
	closed   bool
	CloseErr error
}

func NewStream(replies ...[]byte) *Stream {
	return &Stream{replies: bytes.NewReader(bytes.Join(replies, nil))}
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.replies.Read(p)
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.written.Write(p)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.CloseErr
}

// Written returns a copy of everything written so far.
func (s *Stream) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.written.Bytes())
}

// Remaining is the number of scripted reply bytes not yet read.
func (s *Stream) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replies.Len()
}

// Requests decodes every request written so far.
func (s *Stream) Requests() ([]command.Request, error) {
	r := bytes.NewReader(s.Written())
	out := make([]command.Request, 0, 4)
	for r.Len() > 0 {
		req, err := command.ReadRequest(r)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// Handler returns the reply bytes for one decoded request; nil means no reply.
type Handler func(req command.Request) [][]byte

// Node is a loopback TCP peer that serves exactly one client connection.
type Node struct {
	ln       net.Listener
	handler  Handler
	requests chan command.Request
	ready    chan struct{}

	mu   sync.Mutex
	conn net.Conn
}

// Start listens on 127.0.0.1 and serves the first accepted connection with h.
func Start(t testing.TB, h Handler) *Node {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakenode listen: %v", err)
	}
	n := &Node{
		ln:       ln,
		handler:  h,
		requests: make(chan command.Request, 64),
		ready:    make(chan struct{}),
	}
	go n.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		n.mu.Lock()
		if n.conn != nil {
			_ = n.conn.Close()
		}
		n.mu.Unlock()
	})
	return n
}

func (n *Node) Addr() string {
	return n.ln.Addr().String()
}

// Next returns the next request the node received.
func (n *Node) Next(t testing.TB) command.Request {
	t.Helper()
	select {
	case req := <-n.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("fakenode: no request received")
		return command.Request{}
	}
}

// Push writes unsolicited bytes to the connected client.
func (n *Node) Push(t testing.TB, b []byte) {
	t.Helper()
	select {
	case <-n.ready:
	case <-time.After(2 * time.Second):
		t.Fatalf("fakenode: no client connected")
	}
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if _, err := conn.Write(b); err != nil {
		t.Fatalf("fakenode push: %v", err)
	}
}

func (n *Node) serve() {
	conn, err := n.ln.Accept()
	if err != nil {
		return
	}
	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	close(n.ready)

	for {
		req, err := command.ReadRequest(conn)
		if err != nil {
			return
		}
		n.requests <- req
		if n.handler == nil {
			continue
		}
		for _, b := range n.handler(req) {
			if _, err := conn.Write(b); err != nil {
				return
			}
		}
	}
}
