package netlink

import (
	"testing"

	"github.com/delciotorres/pyroute2/netlink/attr"
	"github.com/pkg/errors"
)

// scripted answers every request with the datagrams built by respond.
type scripted struct {
	respond func(p *Packet) [][]byte
	queue   [][]byte
	sent    int
	closed  bool
}

func (s *scripted) Send(b []byte) error {
	p, err := Unframe(b)
	if err != nil {
		return err
	}
	s.sent++
	s.queue = append(s.queue, s.respond(p)...)
	return nil
}

func (s *scripted) Receive() ([]byte, error) {
	if len(s.queue) == 0 {
		return nil, errors.New("would block")
	}
	b := s.queue[0]
	s.queue = s.queue[1:]
	return b, nil
}

func (s *scripted) Close() error {
	s.closed = true
	return nil
}

func data(p *Packet, name string) []byte {
	b, _ := Frame(p.Command, FlagMulti, p.Header.Sequence, attr.String(2, name))
	return b
}

func TestConnAck(t *testing.T) {
	tr := &scripted{respond: func(p *Packet) [][]byte {
		return [][]byte{FrameError(0, p.Header)}
	}}
	c := NewConn(tr)

	trees, err := c.Execute(2, FlagAck)
	if err != nil || len(trees) != 0 {
		t.Fatalf("unexpected result: %v %v", trees, err)
	}
	// the channel is free again
	if _, err := c.Execute(3, FlagAck); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
}

func TestConnKernelError(t *testing.T) {
	tr := &scripted{respond: func(p *Packet) [][]byte {
		return [][]byte{FrameError(4103, p.Header)}
	}}
	c := NewConn(tr)

	_, err := c.Execute(9, FlagAck)
	kerr, ok := errors.Cause(err).(*KernelError)
	if !ok || kerr.Errno != 4103 {
		t.Fatalf("expected kernel error 4103, got %v", err)
	}
	if tr.closed {
		t.Error("kernel errors must not close the channel")
	}
}

func TestConnDump(t *testing.T) {
	tr := &scripted{respond: func(p *Packet) [][]byte {
		first := append(data(p, "a"), data(p, "b")...)
		return [][]byte{first, append(data(p, "c"), FrameDone(p.Header.Sequence)...)}
	}}
	c := NewConn(tr)

	trees, err := c.Execute(7, FlagDump)
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	var names []string
	for _, tree := range trees {
		s, _ := tree.Get(2).Str()
		names = append(names, s)
	}
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestConnSingleReply(t *testing.T) {
	tr := &scripted{respond: func(p *Packet) [][]byte {
		return [][]byte{data(p, "foo")}
	}}
	c := NewConn(tr)

	trees, err := c.Execute(12, 0)
	if err != nil || len(trees) != 1 {
		t.Fatalf("unexpected result: %v %v", trees, err)
	}
}

func TestConnSequenceMismatch(t *testing.T) {
	tr := &scripted{respond: func(p *Packet) [][]byte {
		h := p.Header
		h.Sequence += 100
		return [][]byte{FrameError(0, h)}
	}}
	c := NewConn(tr)

	if _, err := c.Execute(4, FlagAck); errors.Cause(err) != ErrSequenceMismatch {
		t.Fatalf("expected sequence mismatch, got %v", err)
	}
	if !tr.closed {
		t.Error("the channel should be closed after a protocol error")
	}
	if _, err := c.Execute(4, FlagAck); err != ErrClosed {
		t.Errorf("expected closed channel, got %v", err)
	}
}

func TestConnBusyAndAbandon(t *testing.T) {
	tr := &scripted{respond: func(p *Packet) [][]byte {
		return [][]byte{data(p, "a"), data(p, "b"), FrameDone(p.Header.Sequence)}
	}}
	c := NewConn(tr)

	r, err := c.Request(7, FlagDump)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !r.Next() {
		t.Fatalf("expected a first reply: %v", r.Err())
	}
	if _, err := c.Request(7, FlagDump); err != ErrBusy {
		t.Errorf("expected busy channel, got %v", err)
	}

	r.Close()
	if !tr.closed {
		t.Error("abandoning a listing should close the channel")
	}
	if r.Next() {
		t.Error("closed iterator should not yield")
	}
	if _, err := c.Request(7, FlagDump); err != ErrClosed {
		t.Errorf("expected closed channel, got %v", err)
	}
}
