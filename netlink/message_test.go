package netlink

import (
	"bytes"
	"testing"

	"github.com/delciotorres/pyroute2/netlink/attr"
	"github.com/mdlayher/netlink"
	"github.com/pkg/errors"
)

func TestFrameUnframe(t *testing.T) {
	b, err := Frame(2, FlagRequest|FlagAck|FlagCreate, 42,
		attr.Uint8(1, 6),
		attr.String(2, "foo"),
	)
	if err != nil {
		t.Fatalf("failed to frame: %v", err)
	}
	if len(b)%4 != 0 {
		t.Errorf("frame not aligned: %d bytes", len(b))
	}
	// nfgenmsg
	if !bytes.Equal(b[16:20], []byte{2, 0, 0, 0}) {
		t.Errorf("unexpected nfgenmsg: % x", b[16:20])
	}

	p, err := Unframe(b)
	if err != nil {
		t.Fatalf("failed to unframe: %v", err)
	}
	if p.Command != 2 || p.Header.Sequence != 42 || p.Done || p.Ack {
		t.Errorf("unexpected packet: %+v", p)
	}
	if p.Header.Type != netlink.HeaderType(0x0602) {
		t.Errorf("unexpected type: 0x%x", uint16(p.Header.Type))
	}
	if p.Header.Flags != FlagRequest|FlagAck|FlagCreate {
		t.Errorf("unexpected flags: %s", p.Header.Flags)
	}
	if name, _ := p.Attrs.Get(2).Str(); name != "foo" {
		t.Errorf("unexpected name: %q", name)
	}
}

func TestFrameError(t *testing.T) {
	req := netlink.Header{Length: 20, Type: MessageType(3), Flags: FlagRequest | FlagAck, Sequence: 7}

	p, err := Unframe(FrameError(4103, req))
	if err != nil {
		t.Fatalf("failed to unframe: %v", err)
	}
	if !p.Ack || p.Errno != 4103 || p.Header.Sequence != 7 {
		t.Errorf("unexpected error packet: %+v", p)
	}

	p, err = Unframe(FrameError(0, req))
	if err != nil {
		t.Fatalf("failed to unframe: %v", err)
	}
	if !p.Ack || p.Errno != 0 {
		t.Errorf("unexpected ack packet: %+v", p)
	}

	p, err = Unframe(FrameDone(7))
	if err != nil {
		t.Fatalf("failed to unframe: %v", err)
	}
	if !p.Done {
		t.Errorf("expected done packet: %+v", p)
	}
}

func TestParseMessages(t *testing.T) {
	a, _ := Frame(7, FlagMulti, 1, attr.String(2, "a"))
	b, _ := Frame(7, FlagMulti, 1, attr.String(2, "bb"))
	dgram := append(append(append([]byte{}, a...), b...), FrameDone(1)...)

	msgs, err := ParseMessages(dgram)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[2].Header.Type != netlink.Done {
		t.Errorf("last message should be done: %+v", msgs[2].Header)
	}

	if _, err := ParseMessages(dgram[:len(a)+8+16]); errors.Cause(err) != ErrTruncated {
		t.Errorf("expected truncation error, got %v", err)
	}
}

func TestDecodeForeign(t *testing.T) {
	m := netlink.Message{
		Header: netlink.Header{Type: netlink.HeaderType(1<<8 | 1)},
		Data:   make([]byte, 4),
	}
	if _, err := Decode(m); errors.Cause(err) != ErrForeignMessage {
		t.Errorf("expected foreign message error, got %v", err)
	}
}
