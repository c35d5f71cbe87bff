package testutil

import (
	"sync"
	"syscall"
	"time"

	"github.com/delciotorres/pyroute2/ipset"
	"github.com/delciotorres/pyroute2/netlink"
	"github.com/delciotorres/pyroute2/netlink/attr"
	"github.com/google/uuid"
	mdnetlink "github.com/mdlayher/netlink"
	"github.com/pkg/errors"
)

const (
	protocolVersion    = 7
	protocolMinVersion = 6
	defaultMaxelem     = 65536
	defaultHashsize    = 1024
)

// ErrWouldBlock is returned by Receive when no reply is pending.
var ErrWouldBlock = errors.New("no pending reply")

// SetName returns a random set name that fits the kernel limit.
func SetName() string {
	return uuid.New().String()[:16]
}

type kentry struct {
	value   string
	comment string
	expires time.Time
	packets uint64
	bytes   uint64
	nomatch bool

	skbMark  *uint64
	skbPrio  *uint32
	skbQueue *uint16
}

type kset struct {
	name       string
	typ        string
	family     uint8
	revision   uint8
	hashsize   uint32
	maxelem    uint32
	netmask    uint8
	timeout    *uint32
	cadtFlags  uint32
	references uint32
	etype      ipset.EntryType
	entries    []*kentry
}

func (s *kset) has(flag uint32) bool {
	return s.cadtFlags&flag != 0
}

func (s *kset) find(value string) int {
	for i, e := range s.entries {
		if e.value == value {
			return i
		}
	}
	return -1
}

// Kernel emulates the ipset netlink subsystem. It implements
// netlink.Transport: every datagram sent is answered immediately and the
// replies are queued for Receive.
type Kernel struct {
	mu     sync.Mutex
	sets   map[string]*kset
	order  []string
	queue  [][]byte
	offset time.Duration
	closed bool

	// Revisions lists the known types and their min and max revisions.
	Revisions map[string][2]uint8
	// EntriesPerMessage bounds the entries of a listing message, so that
	// long sets are split over continuation messages.
	EntriesPerMessage int
	// SequenceSkew is added to the sequence of every reply.
	SequenceSkew uint32
	// Requests records every request received.
	Requests []*netlink.Packet
}

// NewKernel returns an empty kernel.
func NewKernel() *Kernel {
	return &Kernel{
		sets: make(map[string]*kset),
		Revisions: map[string][2]uint8{
			"hash:ip":        {0, 6},
			"hash:net":       {0, 7},
			"hash:net,net":   {0, 3},
			"hash:ip,net":    {0, 3},
			"hash:net,iface": {0, 8},
		},
		EntriesPerMessage: 2,
	}
}

// Advance moves the kernel clock forward, expiring entries.
func (k *Kernel) Advance(d time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.offset += d
}

// Reference marks a set as used by a rule, as iptables -m set would.
func (k *Kernel) Reference(name string, delta int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok := k.sets[name]; ok {
		s.references = uint32(int(s.references) + delta)
	}
}

// Closed reports whether the transport was closed.
func (k *Kernel) Closed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

// LastRequest returns the last request received.
func (k *Kernel) LastRequest() *netlink.Packet {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.Requests) == 0 {
		return nil
	}
	return k.Requests[len(k.Requests)-1]
}

func (k *Kernel) now() time.Time {
	return time.Now().Add(k.offset)
}

// Send handles one request.
func (k *Kernel) Send(b []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return syscall.EBADF
	}

	req, err := netlink.Unframe(b)
	if err != nil {
		return err
	}
	k.Requests = append(k.Requests, req)
	k.expire()

	replies, errno := k.handle(req)
	h := req.Header
	h.Sequence += k.SequenceSkew
	if errno != 0 {
		k.queue = append(k.queue, netlink.FrameError(errno, h))
		return nil
	}
	k.queue = append(k.queue, replies...)
	if h.Flags&mdnetlink.Dump != 0 {
		k.queue = append(k.queue, netlink.FrameDone(h.Sequence))
	} else if h.Flags&mdnetlink.Acknowledge != 0 {
		k.queue = append(k.queue, netlink.FrameError(0, h))
	}
	return nil
}

// Receive returns the next pending datagram.
func (k *Kernel) Receive() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, syscall.EBADF
	}
	if len(k.queue) == 0 {
		return nil, ErrWouldBlock
	}
	b := k.queue[0]
	k.queue = k.queue[1:]
	return b, nil
}

// Close drops the pending replies.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	k.queue = nil
	return nil
}

func (k *Kernel) expire() {
	now := k.now()
	for _, s := range k.sets {
		kept := s.entries[:0]
		for _, e := range s.entries {
			if e.expires.IsZero() || now.Before(e.expires) {
				kept = append(kept, e)
			}
		}
		s.entries = kept
	}
}

func (k *Kernel) handle(req *netlink.Packet) ([][]byte, int) {
	if v, ok := req.Attrs.Get(ipset.IPSET_ATTR_PROTOCOL).Uint8(); !ok || v < protocolMinVersion || v > protocolVersion {
		return nil, ipset.IPSET_ERR_PROTOCOL
	}
	excl := req.Header.Flags&mdnetlink.Excl != 0
	name, hasName := req.Attrs.Get(ipset.IPSET_ATTR_SETNAME).Str()

	switch req.Command {
	case ipset.IPSET_CMD_PROTOCOL:
		return k.reply(req, 0,
			attr.Uint8(ipset.IPSET_ATTR_PROTOCOL, protocolVersion),
			attr.Uint8(ipset.IPSET_ATTR_PROTOCOL_MIN, protocolMinVersion),
		), 0
	case ipset.IPSET_CMD_TYPE:
		return k.typeInfo(req)
	case ipset.IPSET_CMD_CREATE:
		return nil, k.create(name, req.Attrs, excl)
	case ipset.IPSET_CMD_DESTROY:
		return nil, k.destroy(name, hasName)
	case ipset.IPSET_CMD_FLUSH:
		return nil, k.flush(name, hasName)
	case ipset.IPSET_CMD_RENAME:
		to, _ := req.Attrs.Get(ipset.IPSET_ATTR_SETNAME2).Str()
		return nil, k.rename(name, to)
	case ipset.IPSET_CMD_SWAP:
		to, _ := req.Attrs.Get(ipset.IPSET_ATTR_SETNAME2).Str()
		return nil, k.swap(name, to)
	case ipset.IPSET_CMD_ADD, ipset.IPSET_CMD_DEL, ipset.IPSET_CMD_TEST:
		return nil, k.adt(req.Command, name, req.Attrs.Get(ipset.IPSET_ATTR_DATA), excl)
	case ipset.IPSET_CMD_HEADER:
		s, ok := k.sets[name]
		if !ok {
			return nil, int(syscall.ENOENT)
		}
		return k.reply(req, 0,
			attr.String(ipset.IPSET_ATTR_SETNAME, s.name),
			attr.String(ipset.IPSET_ATTR_TYPENAME, s.typ),
			attr.Uint8(ipset.IPSET_ATTR_REVISION, s.revision),
			attr.Uint8(ipset.IPSET_ATTR_FAMILY, s.family),
		), 0
	case ipset.IPSET_CMD_LIST, ipset.IPSET_CMD_SAVE:
		return k.list(req, name, hasName)
	}
	return nil, int(syscall.EOPNOTSUPP)
}

func (k *Kernel) reply(req *netlink.Packet, flags mdnetlink.HeaderFlags, attrs ...*attr.Node) [][]byte {
	all := append([]*attr.Node{attr.Uint8(ipset.IPSET_ATTR_PROTOCOL, protocolVersion)}, attrs...)
	b, err := netlink.Frame(req.Command, flags, req.Header.Sequence+k.SequenceSkew, all...)
	if err != nil {
		panic(err)
	}
	return [][]byte{b}
}

func (k *Kernel) typeInfo(req *netlink.Packet) ([][]byte, int) {
	typ, _ := req.Attrs.Get(ipset.IPSET_ATTR_TYPENAME).Str()
	family, _ := req.Attrs.Get(ipset.IPSET_ATTR_FAMILY).Uint8()
	rev, ok := k.Revisions[typ]
	if !ok {
		return nil, ipset.IPSET_ERR_FIND_TYPE
	}
	return k.reply(req, 0,
		attr.String(ipset.IPSET_ATTR_TYPENAME, typ),
		attr.Uint8(ipset.IPSET_ATTR_FAMILY, family),
		attr.Uint8(ipset.IPSET_ATTR_REVISION, rev[1]),
		attr.Uint8(ipset.IPSET_ATTR_REVISION_MIN, rev[0]),
	), 0
}

func (k *Kernel) create(name string, attrs *attr.Node, excl bool) int {
	typ, _ := attrs.Get(ipset.IPSET_ATTR_TYPENAME).Str()
	rev, ok := k.Revisions[typ]
	if !ok {
		return ipset.IPSET_ERR_FIND_TYPE
	}
	revision, _ := attrs.Get(ipset.IPSET_ATTR_REVISION).Uint8()
	if revision < rev[0] || revision > rev[1] {
		return ipset.IPSET_ERR_FIND_TYPE
	}
	etype, err := ipset.EntryTypeFor(typ)
	if err != nil {
		return ipset.IPSET_ERR_FIND_TYPE
	}

	s := &kset{
		name:     name,
		typ:      typ,
		revision: revision,
		hashsize: defaultHashsize,
		maxelem:  defaultMaxelem,
		etype:    etype,
	}
	s.family, _ = attrs.Get(ipset.IPSET_ATTR_FAMILY).Uint8()
	data := attrs.Get(ipset.IPSET_ATTR_DATA)
	if v, ok := data.Get(ipset.IPSET_ATTR_HASHSIZE).Uint32(); ok {
		s.hashsize = v
	}
	if v, ok := data.Get(ipset.IPSET_ATTR_MAXELEM).Uint32(); ok {
		s.maxelem = v
	}
	if v, ok := data.Get(ipset.IPSET_ATTR_NETMASK).Uint8(); ok {
		s.netmask = v
	}
	if v, ok := data.Get(ipset.IPSET_ATTR_TIMEOUT).Uint32(); ok {
		s.timeout = &v
	}
	s.cadtFlags, _ = data.Get(ipset.IPSET_ATTR_CADT_FLAGS).Uint32()

	if old, exists := k.sets[name]; exists {
		if !excl && sameSet(old, s) {
			return 0
		}
		return int(syscall.EEXIST)
	}
	k.sets[name] = s
	k.order = append(k.order, name)
	return 0
}

func sameSet(a, b *kset) bool {
	sameTimeout := (a.timeout == nil) == (b.timeout == nil) &&
		(a.timeout == nil || *a.timeout == *b.timeout)
	return a.typ == b.typ && a.family == b.family && a.hashsize == b.hashsize &&
		a.maxelem == b.maxelem && a.netmask == b.netmask &&
		a.cadtFlags == b.cadtFlags && sameTimeout
}

func (k *Kernel) remove(name string) {
	delete(k.sets, name)
	for i, n := range k.order {
		if n == name {
			k.order = append(k.order[:i], k.order[i+1:]...)
			return
		}
	}
}

func (k *Kernel) destroy(name string, hasName bool) int {
	if !hasName {
		for _, s := range k.sets {
			if s.references > 0 {
				return ipset.IPSET_ERR_BUSY
			}
		}
		k.sets = make(map[string]*kset)
		k.order = nil
		return 0
	}
	s, ok := k.sets[name]
	if !ok {
		return int(syscall.ENOENT)
	}
	if s.references > 0 {
		return ipset.IPSET_ERR_BUSY
	}
	k.remove(name)
	return 0
}

func (k *Kernel) flush(name string, hasName bool) int {
	if !hasName {
		for _, s := range k.sets {
			s.entries = nil
		}
		return 0
	}
	s, ok := k.sets[name]
	if !ok {
		return int(syscall.ENOENT)
	}
	s.entries = nil
	return 0
}

func (k *Kernel) rename(from, to string) int {
	s, ok := k.sets[from]
	if !ok {
		return int(syscall.ENOENT)
	}
	if _, taken := k.sets[to]; taken {
		return ipset.IPSET_ERR_EXIST_SETNAME2
	}
	if s.references > 0 {
		return ipset.IPSET_ERR_REFERENCED
	}
	delete(k.sets, from)
	s.name = to
	k.sets[to] = s
	for i, n := range k.order {
		if n == from {
			k.order[i] = to
		}
	}
	return 0
}

func (k *Kernel) swap(a, b string) int {
	sa, ok := k.sets[a]
	if !ok {
		return int(syscall.ENOENT)
	}
	sb, ok := k.sets[b]
	if !ok {
		return ipset.IPSET_ERR_EXIST_SETNAME2
	}
	if sa.typ != sb.typ || sa.family != sb.family {
		return ipset.IPSET_ERR_TYPE_MISMATCH
	}
	sa.name, sb.name = b, a
	k.sets[a], k.sets[b] = sb, sa
	return 0
}

func (k *Kernel) adt(cmd uint8, name string, data *attr.Node, excl bool) int {
	s, ok := k.sets[name]
	if !ok {
		return int(syscall.ENOENT)
	}
	req, err := ipset.DecodeEntry(s.etype, data)
	if err != nil {
		return ipset.IPSET_ERR_PROTOCOL
	}
	if req.Comment != "" && !s.has(ipset.IPSET_FLAG_WITH_COMMENT) {
		return ipset.IPSET_ERR_COMMENT
	}
	if req.Timeout != nil && s.timeout == nil {
		return ipset.IPSET_ERR_TIMEOUT
	}
	if (req.Packets != nil || req.Bytes != nil) && !s.has(ipset.IPSET_FLAG_WITH_COUNTERS) {
		return ipset.IPSET_ERR_COUNTER
	}
	if (req.SKBMark != nil || req.SKBPrio != nil || req.SKBQueue != nil) && !s.has(ipset.IPSET_FLAG_WITH_SKBINFO) {
		return ipset.IPSET_ERR_SKBINFO
	}

	values := ipset.ExpandEntry(req.Value)
	switch cmd {
	case ipset.IPSET_CMD_TEST:
		for _, v := range values {
			if s.find(v) < 0 {
				return ipset.IPSET_ERR_EXIST
			}
		}
		return 0
	case ipset.IPSET_CMD_DEL:
		for _, v := range values {
			i := s.find(v)
			if i < 0 {
				if excl {
					return ipset.IPSET_ERR_EXIST
				}
				continue
			}
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
		}
		return 0
	}

	for _, v := range values {
		if i := s.find(v); i >= 0 {
			if excl {
				return ipset.IPSET_ERR_EXIST
			}
			k.update(s, s.entries[i], req)
			continue
		}
		if uint32(len(s.entries)) >= s.maxelem {
			if !s.has(ipset.IPSET_FLAG_WITH_FORCEADD) {
				return ipset.IPSET_ERR_HASH_FULL
			}
			s.entries = s.entries[1:]
		}
		e := &kentry{value: v}
		k.update(s, e, req)
		if req.Packets != nil {
			e.packets = *req.Packets
		}
		if req.Bytes != nil {
			e.bytes = *req.Bytes
		}
		s.entries = append(s.entries, e)
	}
	return 0
}

// update applies the mutable extensions of a request to an entry.
func (k *Kernel) update(s *kset, e *kentry, req ipset.Entry) {
	e.comment = req.Comment
	e.nomatch = req.Nomatch
	e.skbMark, e.skbPrio, e.skbQueue = req.SKBMark, req.SKBPrio, req.SKBQueue
	e.expires = time.Time{}
	timeout := s.timeout
	if req.Timeout != nil {
		timeout = req.Timeout
	}
	if timeout != nil && *timeout > 0 {
		e.expires = k.now().Add(time.Duration(*timeout) * time.Second)
	}
}

func (k *Kernel) header(s *kset) *attr.Node {
	data := attr.Nested(ipset.IPSET_ATTR_DATA,
		attr.Uint32Net(ipset.IPSET_ATTR_HASHSIZE, s.hashsize),
		attr.Uint32Net(ipset.IPSET_ATTR_MAXELEM, s.maxelem),
	)
	if s.netmask != 0 {
		data.Add(attr.Uint8(ipset.IPSET_ATTR_NETMASK, s.netmask))
	}
	if s.timeout != nil {
		data.Add(attr.Uint32Net(ipset.IPSET_ATTR_TIMEOUT, *s.timeout))
	}
	if s.cadtFlags != 0 {
		data.Add(attr.Uint32Net(ipset.IPSET_ATTR_CADT_FLAGS, s.cadtFlags))
	}
	return data.Add(
		attr.Uint32Net(ipset.IPSET_ATTR_REFERENCES, s.references),
		attr.Uint32Net(ipset.IPSET_ATTR_MEMSIZE, uint32(400+len(s.entries)*32)),
		attr.Uint32Net(ipset.IPSET_ATTR_ELEMENTS, uint32(len(s.entries))),
	)
}

func (k *Kernel) entry(s *kset, e *kentry) (*attr.Node, error) {
	o := ipset.EntryOptions{Comment: e.comment, Nomatch: e.nomatch}
	if s.timeout != nil {
		var left uint32
		if !e.expires.IsZero() {
			left = uint32((e.expires.Sub(k.now()) + time.Second - 1) / time.Second)
		}
		o.Timeout = &left
	}
	if s.has(ipset.IPSET_FLAG_WITH_COUNTERS) {
		packets, bytes := e.packets, e.bytes
		o.Packets, o.Bytes = &packets, &bytes
	}
	if s.has(ipset.IPSET_FLAG_WITH_SKBINFO) {
		o.SKBMark, o.SKBPrio, o.SKBQueue = e.skbMark, e.skbPrio, e.skbQueue
	}
	return ipset.EncodeEntry(s.etype, e.value, o)
}

func (k *Kernel) list(req *netlink.Packet, name string, hasName bool) ([][]byte, int) {
	names := k.order
	if hasName {
		if _, ok := k.sets[name]; !ok {
			return nil, int(syscall.ENOENT)
		}
		names = []string{name}
	}
	flags, _ := req.Attrs.Get(ipset.IPSET_ATTR_FLAGS).Uint32()

	var msgs [][]byte
	for _, n := range names {
		s := k.sets[n]
		if flags&ipset.IPSET_FLAG_LIST_SETNAME != 0 {
			msgs = append(msgs, k.reply(req, mdnetlink.Multi, attr.String(ipset.IPSET_ATTR_SETNAME, s.name))...)
			continue
		}

		first := true
		entries := s.entries
		for first || len(entries) > 0 {
			attrs := []*attr.Node{attr.String(ipset.IPSET_ATTR_SETNAME, s.name)}
			if first {
				attrs = append(attrs,
					attr.String(ipset.IPSET_ATTR_TYPENAME, s.typ),
					attr.Uint8(ipset.IPSET_ATTR_FAMILY, s.family),
					attr.Uint8(ipset.IPSET_ATTR_REVISION, s.revision),
					k.header(s),
				)
			}
			if flags&ipset.IPSET_FLAG_LIST_HEADER == 0 {
				adt := attr.Nested(ipset.IPSET_ATTR_ADT)
				for len(entries) > 0 && len(adt.Children) < k.EntriesPerMessage {
					node, err := k.entry(s, entries[0])
					if err != nil {
						panic(err)
					}
					adt.Add(node)
					entries = entries[1:]
				}
				attrs = append(attrs, adt)
			} else {
				entries = nil
			}
			msgs = append(msgs, k.reply(req, mdnetlink.Multi, attrs...)...)
			first = false
		}
	}

	// two messages per datagram
	var out [][]byte
	for i := 0; i < len(msgs); i += 2 {
		b := msgs[i]
		if i+1 < len(msgs) {
			b = append(append([]byte{}, b...), msgs[i+1]...)
		}
		out = append(out, b)
	}
	return out, 0
}

// NewClient returns a client speaking to a fresh Kernel.
func NewClient() (*ipset.Client, *Kernel) {
	k := NewKernel()
	return ipset.NewClient(netlink.NewConn(k)), k
}
