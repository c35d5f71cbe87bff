package netlink

import (
	"fmt"
	"syscall"

	"github.com/delciotorres/pyroute2/netlink/attr"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/pkg/errors"
)

const (
	// NFNL_SUBSYS_IPSET is the nfnetlink subsystem of ipset.
	NFNL_SUBSYS_IPSET = 6
	// NFNETLINK_V0 is the only nfnetlink version.
	NFNETLINK_V0 = 0

	sizeofNlmsghdr = 16
	sizeofNfgenmsg = 4
	sizeofNlmsgerr = 4 + sizeofNlmsghdr
)

var (
	native = nlenc.NativeEndian()

	// ErrTruncated is returned when a message is shorter than its header says.
	ErrTruncated = errors.New("truncated netlink message")
	// ErrForeignMessage is returned for messages of another nfnetlink subsystem.
	ErrForeignMessage = errors.New("not an ipset message")
)

// Flags sent with ipset requests.
const (
	FlagRequest = netlink.Request
	FlagAck     = netlink.Acknowledge
	FlagExcl    = netlink.Excl
	FlagCreate  = netlink.Create
	FlagDump    = netlink.Dump
	FlagMulti   = netlink.Multi
)

// MessageType returns the nlmsghdr type of an ipset command.
func MessageType(cmd uint8) netlink.HeaderType {
	return netlink.HeaderType(NFNL_SUBSYS_IPSET<<8 | uint16(cmd))
}

// Packet is one decoded netlink message of an ipset exchange.
type Packet struct {
	Header  netlink.Header
	Command uint8
	// Errno is the positive error code carried by an NLMSG_ERROR; zero for
	// acknowledgements and data messages.
	Errno int
	// Ack is set on NLMSG_ERROR messages, successful or not.
	Ack   bool
	Done  bool
	Attrs *attr.Node
}

type writeBuffer struct {
	Bytes []byte
	pos   int
}

func (b *writeBuffer) Write(c byte) {
	b.Bytes[b.pos] = c
	b.pos++
}

func (b *writeBuffer) Next(n int) []byte {
	s := b.Bytes[b.pos : b.pos+n]
	b.pos += n
	return s
}

type readBuffer struct {
	Bytes []byte
	pos   int
}

func (b *readBuffer) Next(n int) []byte {
	s := b.Bytes[b.pos : b.pos+n]
	b.pos += n
	return s
}

func putHeader(b *writeBuffer, h netlink.Header) {
	native.PutUint32(b.Next(4), uint32(h.Length))
	native.PutUint16(b.Next(2), uint16(h.Type))
	native.PutUint16(b.Next(2), uint16(h.Flags))
	native.PutUint32(b.Next(4), h.Sequence)
	native.PutUint32(b.Next(4), h.PID)
}

func getHeader(b *readBuffer) netlink.Header {
	return netlink.Header{
		Length:   native.Uint32(b.Next(4)),
		Type:     netlink.HeaderType(native.Uint16(b.Next(2))),
		Flags:    netlink.HeaderFlags(native.Uint16(b.Next(2))),
		Sequence: native.Uint32(b.Next(4)),
		PID:      native.Uint32(b.Next(4)),
	}
}

// Frame builds an ipset message: nlmsghdr, nfgenmsg and the attributes.
func Frame(cmd uint8, flags netlink.HeaderFlags, seq uint32, attrs ...*attr.Node) ([]byte, error) {
	payload, err := attr.Encode(attrs...)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding command %d", cmd)
	}

	size := sizeofNlmsghdr + sizeofNfgenmsg + len(payload)
	b := writeBuffer{Bytes: make([]byte, size)}
	putHeader(&b, netlink.Header{
		Length:   uint32(size),
		Type:     MessageType(cmd),
		Flags:    flags,
		Sequence: seq,
	})
	b.Write(syscall.AF_INET)
	b.Write(NFNETLINK_V0)
	// res_id, big endian
	b.Next(2)
	copy(b.Next(len(payload)), payload)
	return b.Bytes, nil
}

// FrameError builds an NLMSG_ERROR answering req. errno 0 is an ack.
func FrameError(errno int, req netlink.Header) []byte {
	b := writeBuffer{Bytes: make([]byte, sizeofNlmsghdr+sizeofNlmsgerr)}
	putHeader(&b, netlink.Header{
		Length:   uint32(len(b.Bytes)),
		Type:     netlink.Error,
		Sequence: req.Sequence,
		PID:      req.PID,
	})
	native.PutUint32(b.Next(4), uint32(int32(-errno)))
	putHeader(&b, req)
	return b.Bytes
}

// FrameDone builds the NLMSG_DONE closing a dump.
func FrameDone(seq uint32) []byte {
	b := writeBuffer{Bytes: make([]byte, sizeofNlmsghdr+4)}
	putHeader(&b, netlink.Header{
		Length:   uint32(len(b.Bytes)),
		Type:     netlink.Done,
		Flags:    netlink.Multi,
		Sequence: seq,
	})
	return b.Bytes
}

// ParseMessages splits a datagram into netlink messages.
func ParseMessages(b []byte) ([]netlink.Message, error) {
	var msgs []netlink.Message
	for len(b) >= sizeofNlmsghdr {
		rb := readBuffer{Bytes: b}
		h := getHeader(&rb)
		l := int(h.Length)
		if l < sizeofNlmsghdr || l > len(b) {
			return nil, errors.Wrapf(ErrTruncated, "length %d, %d bytes left", l, len(b))
		}
		msgs = append(msgs, netlink.Message{Header: h, Data: b[sizeofNlmsghdr:l]})

		next := nlmsgAlign(l)
		if next > len(b) {
			break
		}
		b = b[next:]
	}
	return msgs, nil
}

func nlmsgAlign(l int) int {
	return (l + 3) &^ 3
}

// Decode turns a netlink message into a Packet.
func Decode(m netlink.Message) (*Packet, error) {
	p := &Packet{Header: m.Header}

	switch m.Header.Type {
	case netlink.Done:
		p.Done = true
		return p, nil
	case netlink.Error:
		if len(m.Data) < 4 {
			return nil, errors.Wrap(ErrTruncated, "nlmsgerr")
		}
		p.Ack = true
		p.Errno = -int(int32(native.Uint32(m.Data[:4])))
		return p, nil
	}

	if uint16(m.Header.Type)>>8 != NFNL_SUBSYS_IPSET {
		return nil, errors.Wrapf(ErrForeignMessage, "type 0x%x", uint16(m.Header.Type))
	}
	if len(m.Data) < sizeofNfgenmsg {
		return nil, errors.Wrap(ErrTruncated, "nfgenmsg")
	}
	p.Command = uint8(m.Header.Type & 0xff)

	attrs, err := attr.Decode(m.Data[sizeofNfgenmsg:])
	if err != nil {
		return nil, err
	}
	p.Attrs = attrs
	return p, nil
}

// Unframe decodes the first message of b.
func Unframe(b []byte) (*Packet, error) {
	msgs, err := ParseMessages(b)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, errors.Wrap(ErrTruncated, "empty datagram")
	}
	return Decode(msgs[0])
}

// KernelError is a nonzero error code answered by the kernel.
type KernelError struct {
	Errno int
}

func (e *KernelError) Error() string {
	if e.Errno < 4096 {
		return fmt.Sprintf("kernel error %d: %s", e.Errno, syscall.Errno(e.Errno).Error())
	}
	return fmt.Sprintf("kernel error %d", e.Errno)
}
