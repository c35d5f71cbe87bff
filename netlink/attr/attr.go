// Package attr encodes and decodes trees of netlink attributes (TLVs).
//
// A Node is either a leaf carrying raw bytes or a container carrying an
// ordered list of children. Encoding goes through mdlayher/netlink, which
// computes lengths and alignment. Decoding is done here because ipset replies
// may end with a few bytes of padding that a strict decoder would reject.
package attr

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/pkg/errors"
)

// Wire flags stored in the upper bits of the attribute type.
const (
	FlagNested       = netlink.Nested
	FlagNetByteOrder = netlink.NetByteOrder

	typeMask = ^uint16(FlagNested | FlagNetByteOrder)
	hdrLen   = 4
)

// ErrMalformed is returned when an attribute header overruns its buffer.
var ErrMalformed = errors.New("malformed netlink attribute")

// Node is one attribute of a tree.
type Node struct {
	Type     uint16
	Flags    uint16
	Value    []byte
	Children []*Node
}

// IsNested reports whether the node is a container.
func (n *Node) IsNested() bool {
	return n != nil && n.Flags&FlagNested != 0
}

// Uint8 returns a one byte leaf.
func Uint8(t uint16, v uint8) *Node {
	return &Node{Type: t, Value: []byte{v}}
}

// Uint32 returns a leaf in host byte order.
func Uint32(t uint16, v uint32) *Node {
	return &Node{Type: t, Value: nlenc.Uint32Bytes(v)}
}

// Uint16Net returns a big endian leaf flagged as network byte order.
func Uint16Net(t uint16, v uint16) *Node {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return &Node{Type: t, Flags: FlagNetByteOrder, Value: b}
}

// Uint32Net returns a big endian leaf flagged as network byte order.
func Uint32Net(t uint16, v uint32) *Node {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return &Node{Type: t, Flags: FlagNetByteOrder, Value: b}
}

// Uint64Net returns a big endian leaf flagged as network byte order.
func Uint64Net(t uint16, v uint64) *Node {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return &Node{Type: t, Flags: FlagNetByteOrder, Value: b}
}

// BytesNet returns a leaf holding b, flagged as network byte order.
// Used for addresses.
func BytesNet(t uint16, b []byte) *Node {
	return &Node{Type: t, Flags: FlagNetByteOrder, Value: b}
}

// String returns a NUL terminated string leaf.
func String(t uint16, s string) *Node {
	return &Node{Type: t, Value: nlenc.Bytes(s)}
}

// Nested returns a container holding children in order.
func Nested(t uint16, children ...*Node) *Node {
	return &Node{Type: t, Flags: FlagNested, Children: children}
}

// Add appends children to a container and returns it.
func (n *Node) Add(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// Get returns the first child with the given tag, or nil.
func (n *Node) Get(t uint16) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// GetAll returns every child with the given tag, in wire order.
func (n *Node) GetAll(t uint16) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// Path follows tags down the tree, returning nil if any step is missing.
func (n *Node) Path(tags ...uint16) *Node {
	cur := n
	for _, t := range tags {
		cur = cur.Get(t)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Uint8 reads a one byte leaf.
func (n *Node) Uint8() (uint8, bool) {
	if n == nil || len(n.Value) < 1 {
		return 0, false
	}
	return n.Value[0], true
}

// Uint16 reads a two byte leaf honouring its byte order flag.
func (n *Node) Uint16() (uint16, bool) {
	if n == nil || len(n.Value) < 2 {
		return 0, false
	}
	if n.Flags&FlagNetByteOrder != 0 {
		return binary.BigEndian.Uint16(n.Value), true
	}
	return nlenc.Uint16(n.Value[:2]), true
}

// Uint32 reads a four byte leaf honouring its byte order flag.
func (n *Node) Uint32() (uint32, bool) {
	if n == nil || len(n.Value) < 4 {
		return 0, false
	}
	if n.Flags&FlagNetByteOrder != 0 {
		return binary.BigEndian.Uint32(n.Value), true
	}
	return nlenc.Uint32(n.Value[:4]), true
}

// Uint64 reads an eight byte leaf honouring its byte order flag.
func (n *Node) Uint64() (uint64, bool) {
	if n == nil || len(n.Value) < 8 {
		return 0, false
	}
	if n.Flags&FlagNetByteOrder != 0 {
		return binary.BigEndian.Uint64(n.Value), true
	}
	return nlenc.Uint64(n.Value[:8]), true
}

// Str reads a string leaf, dropping the NUL terminator.
func (n *Node) Str() (string, bool) {
	if n == nil {
		return "", false
	}
	return nlenc.String(n.Value), true
}

// IP reads a 4 or 16 byte address leaf.
func (n *Node) IP() (net.IP, bool) {
	if n == nil {
		return nil, false
	}
	switch len(n.Value) {
	case net.IPv4len:
		return net.IPv4(n.Value[0], n.Value[1], n.Value[2], n.Value[3]).To4(), true
	case net.IPv6len:
		ip := make(net.IP, net.IPv6len)
		copy(ip, n.Value)
		return ip, true
	}
	return nil, false
}

// Encode serializes nodes into a padded attribute stream.
func Encode(nodes ...*Node) ([]byte, error) {
	attrs := make([]netlink.Attribute, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		data := n.Value
		if n.IsNested() {
			b, err := Encode(n.Children...)
			if err != nil {
				return nil, errors.Wrapf(err, "attribute %d", n.Type)
			}
			data = b
		}
		if data == nil {
			data = []byte{}
		}
		attrs = append(attrs, netlink.Attribute{
			Type: n.Type&typeMask | n.Flags,
			Data: data,
		})
	}
	return netlink.MarshalAttributes(attrs)
}

// Decode parses an attribute stream into a root node whose children are the
// top level attributes. Containers are only descended into when the wire type
// carries the nested flag.
func Decode(b []byte) (*Node, error) {
	root := &Node{Flags: FlagNested}
	children, err := decode(b)
	if err != nil {
		return nil, err
	}
	root.Children = children
	return root, nil
}

func decode(b []byte) ([]*Node, error) {
	var out []*Node
	for len(b) >= hdrLen {
		l := int(nlenc.Uint16(b[0:2]))
		t := nlenc.Uint16(b[2:4])
		if l == 0 {
			// zero length header: trailing padding
			break
		}
		if l < hdrLen || l > len(b) {
			return nil, errors.Wrapf(ErrMalformed, "type %d length %d, %d bytes left", t&typeMask, l, len(b))
		}

		n := &Node{
			Type:  t & typeMask,
			Flags: t &^ typeMask,
		}
		payload := b[hdrLen:l]
		if n.IsNested() {
			children, err := decode(payload)
			if err != nil {
				return nil, errors.Wrapf(err, "in nested attribute %d", n.Type)
			}
			n.Children = children
		} else {
			n.Value = make([]byte, len(payload))
			copy(n.Value, payload)
		}
		out = append(out, n)

		next := align(l)
		if next > len(b) {
			break
		}
		b = b[next:]
	}
	return out, nil
}

func align(l int) int {
	return (l + hdrLen - 1) &^ (hdrLen - 1)
}

// String renders the tree for debugging.
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb, 0)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	if n.IsNested() {
		fmt.Fprintf(sb, "%s[%d] {\n", indent, n.Type)
		for _, c := range n.Children {
			c.write(sb, depth+1)
		}
		fmt.Fprintf(sb, "%s}\n", indent)
		return
	}
	order := ""
	if n.Flags&FlagNetByteOrder != 0 {
		order = " net"
	}
	fmt.Fprintf(sb, "%s[%d]%s % x\n", indent, n.Type, order, n.Value)
}
