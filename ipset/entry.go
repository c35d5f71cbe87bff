package ipset

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/delciotorres/pyroute2/netlink/attr"
)

const physdevPrefix = "physdev:"

// Entry is one element of a set as listed by the kernel.
type Entry struct {
	Value   string  `xml:"elem" json:"elem"`
	Comment string  `xml:"comment,omitempty" json:"comment,omitempty"`
	Timeout *uint32 `xml:"timeout,omitempty" json:"timeout,omitempty"`
	Packets *uint64 `xml:"packets,omitempty" json:"packets,omitempty"`
	Bytes   *uint64 `xml:"bytes,omitempty" json:"bytes,omitempty"`
	Nomatch bool    `xml:"nomatch,omitempty" json:"nomatch,omitempty"`
	// SKBMark holds the mark in the upper 32 bits and the mask in the lower.
	SKBMark  *uint64 `xml:"skbmark,omitempty" json:"skbmark,omitempty"`
	SKBPrio  *uint32 `xml:"skbprio,omitempty" json:"skbprio,omitempty"`
	SKBQueue *uint16 `xml:"skbqueue,omitempty" json:"skbqueue,omitempty"`

	// Raw is the attribute tree the entry was decoded from.
	Raw *attr.Node `xml:"-" json:"-"`
}

// EntryOptions are the per entry extensions sent along with a value.
type EntryOptions struct {
	Comment  string
	Timeout  *uint32
	Packets  *uint64
	Bytes    *uint64
	Nomatch  bool
	SKBMark  *uint64
	SKBPrio  *uint32
	SKBQueue *uint16
}

// address attribute tags of the first and the second address of an entry.
var addrTags = [2]struct{ ip, cidr, to uint16 }{
	{IPSET_ATTR_IP, IPSET_ATTR_CIDR, IPSET_ATTR_IP_TO},
	{IPSET_ATTR_IP2, IPSET_ATTR_CIDR2, IPSET_ATTR_IP2_TO},
}

func encodeAddr(tag uint16, ip net.IP) *attr.Node {
	if ip4 := ip.To4(); ip4 != nil {
		return attr.Nested(tag, attr.BytesNet(IPSET_ATTR_IPADDR_IPV4, ip4))
	}
	return attr.Nested(tag, attr.BytesNet(IPSET_ATTR_IPADDR_IPV6, ip.To16()))
}

func decodeAddr(n *attr.Node) (net.IP, bool) {
	if n == nil {
		return nil, false
	}
	if ip, ok := n.Get(IPSET_ATTR_IPADDR_IPV4).IP(); ok {
		return ip, true
	}
	return n.Get(IPSET_ATTR_IPADDR_IPV6).IP()
}

func parseIP(s string) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, newError("parse", "", Unsupported, "invalid address %q", s)
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4, nil
	}
	return ip, nil
}

// encodeAddrComponent appends the attributes of "a", "a-b" or "a/n".
func encodeAddrComponent(data *attr.Node, idx int, text string) error {
	tags := addrTags[idx]
	if from, to, isRange := strings.Cut(text, "-"); isRange {
		a, err := parseIP(from)
		if err != nil {
			return err
		}
		b, err := parseIP(to)
		if err != nil {
			return err
		}
		data.Add(encodeAddr(tags.ip, a), encodeAddr(tags.to, b))
		return nil
	}

	addr, prefix, hasPrefix := strings.Cut(text, "/")
	ip, err := parseIP(addr)
	if err != nil {
		return err
	}
	data.Add(encodeAddr(tags.ip, ip))
	if hasPrefix {
		ones, err := strconv.ParseUint(prefix, 10, 8)
		if err != nil || int(ones) > len(ip)*8 {
			return newError("parse", "", Unsupported, "invalid prefix length in %q", text)
		}
		data.Add(attr.Uint8(tags.cidr, uint8(ones)))
	}
	return nil
}

// EncodeEntry builds the IPSET_ATTR_DATA tree of an entry given as text,
// its components joined by ",".
func EncodeEntry(et EntryType, value string, o EntryOptions) (*attr.Node, error) {
	parts := strings.Split(value, ",")
	if len(parts) != len(et) {
		return nil, newError("parse", "", Unsupported, "entry %q does not match type %s", value, et)
	}

	data := attr.Nested(IPSET_ATTR_DATA)
	var cadtFlags uint32
	addrs := 0
	for i, c := range et {
		part := strings.TrimSpace(parts[i])
		switch c {
		case ComponentIP, ComponentNet:
			if addrs >= len(addrTags) {
				return nil, newError("parse", "", Unsupported, "too many address components in %s", et)
			}
			if err := encodeAddrComponent(data, addrs, part); err != nil {
				return nil, err
			}
			addrs++
		case ComponentIface:
			if strings.HasPrefix(part, physdevPrefix) {
				part = strings.TrimPrefix(part, physdevPrefix)
				cadtFlags |= IPSET_FLAG_PHYSDEV
			}
			data.Add(attr.String(IPSET_ATTR_IFACE, part))
		default:
			return nil, newError("parse", "", Unsupported, "unknown component %s", c)
		}
	}

	if o.Nomatch {
		cadtFlags |= IPSET_FLAG_NOMATCH
	}
	if cadtFlags != 0 {
		data.Add(attr.Uint32Net(IPSET_ATTR_CADT_FLAGS, cadtFlags))
	}
	if o.Timeout != nil {
		data.Add(attr.Uint32Net(IPSET_ATTR_TIMEOUT, *o.Timeout))
	}
	if o.Comment != "" {
		data.Add(attr.String(IPSET_ATTR_COMMENT, o.Comment))
	}
	if o.Packets != nil {
		data.Add(attr.Uint64Net(IPSET_ATTR_PACKETS, *o.Packets))
	}
	if o.Bytes != nil {
		data.Add(attr.Uint64Net(IPSET_ATTR_BYTES, *o.Bytes))
	}
	if o.SKBMark != nil {
		data.Add(attr.Uint64Net(IPSET_ATTR_SKBMARK, *o.SKBMark))
	}
	if o.SKBPrio != nil {
		data.Add(attr.Uint32Net(IPSET_ATTR_SKBPRIO, *o.SKBPrio))
	}
	if o.SKBQueue != nil {
		data.Add(attr.Uint16Net(IPSET_ATTR_SKBQUEUE, *o.SKBQueue))
	}
	return data, nil
}

func hostPrefix(ip net.IP) uint8 {
	if ip.To4() != nil {
		return 32
	}
	return 128
}

func decodeAddrComponent(n *attr.Node, idx int, c Component) (string, error) {
	tags := addrTags[idx]
	ip, ok := decodeAddr(n.Get(tags.ip))
	if !ok {
		return "", newError("list", "", ProtocolMismatch, "entry without address %d", idx+1)
	}
	s := ip.String()
	if to, ok := decodeAddr(n.Get(tags.to)); ok {
		return s + "-" + to.String(), nil
	}
	if cidr, ok := n.Get(tags.cidr).Uint8(); ok && cidr != hostPrefix(ip) {
		s += fmt.Sprintf("/%d", cidr)
	}
	return s, nil
}

// DecodeEntry reads an IPSET_ATTR_DATA tree listed by the kernel.
func DecodeEntry(et EntryType, n *attr.Node) (Entry, error) {
	e := Entry{Raw: n}
	flags, _ := n.Get(IPSET_ATTR_CADT_FLAGS).Uint32()

	parts := make([]string, 0, len(et))
	addrs := 0
	for _, c := range et {
		switch c {
		case ComponentIP, ComponentNet:
			if addrs >= len(addrTags) {
				return e, newError("list", "", Unsupported, "too many address components in %s", et)
			}
			s, err := decodeAddrComponent(n, addrs, c)
			if err != nil {
				return e, err
			}
			parts = append(parts, s)
			addrs++
		case ComponentIface:
			name, ok := n.Get(IPSET_ATTR_IFACE).Str()
			if !ok {
				return e, newError("list", "", ProtocolMismatch, "entry without interface")
			}
			if flags&IPSET_FLAG_PHYSDEV != 0 {
				name = physdevPrefix + name
			}
			parts = append(parts, name)
		}
	}
	e.Value = strings.Join(parts, ",")
	e.Nomatch = flags&IPSET_FLAG_NOMATCH != 0

	if s, ok := n.Get(IPSET_ATTR_COMMENT).Str(); ok {
		e.Comment = s
	}
	if v, ok := n.Get(IPSET_ATTR_TIMEOUT).Uint32(); ok {
		e.Timeout = &v
	}
	if v, ok := n.Get(IPSET_ATTR_PACKETS).Uint64(); ok {
		e.Packets = &v
	}
	if v, ok := n.Get(IPSET_ATTR_BYTES).Uint64(); ok {
		e.Bytes = &v
	}
	if v, ok := n.Get(IPSET_ATTR_SKBMARK).Uint64(); ok {
		e.SKBMark = &v
	}
	if v, ok := n.Get(IPSET_ATTR_SKBPRIO).Uint32(); ok {
		e.SKBPrio = &v
	}
	if v, ok := n.Get(IPSET_ATTR_SKBQUEUE).Uint16(); ok {
		e.SKBQueue = &v
	}
	return e, nil
}

// Render returns the entry in ipset save syntax, without the command.
func (e Entry) Render() string {
	result := e.Value
	if e.Timeout != nil {
		result += fmt.Sprintf(" timeout %d", *e.Timeout)
	}
	if e.Packets != nil {
		result += fmt.Sprintf(" packets %d", *e.Packets)
	}
	if e.Bytes != nil {
		result += fmt.Sprintf(" bytes %d", *e.Bytes)
	}
	if e.Comment != "" {
		result += fmt.Sprintf(" comment %q", e.Comment)
	}
	if e.Nomatch {
		result += " nomatch"
	}
	if e.SKBMark != nil {
		result += fmt.Sprintf(" skbmark 0x%x/0x%x", *e.SKBMark>>32, *e.SKBMark&0xffffffff)
	}
	if e.SKBPrio != nil {
		result += fmt.Sprintf(" skbprio %x:%x", *e.SKBPrio>>16, *e.SKBPrio&0xffff)
	}
	if e.SKBQueue != nil {
		result += fmt.Sprintf(" skbqueue %d", *e.SKBQueue)
	}
	return result
}
