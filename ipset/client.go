package ipset

import (
	"time"

	"github.com/delciotorres/pyroute2/log"
	"github.com/delciotorres/pyroute2/netlink"
	"github.com/delciotorres/pyroute2/netlink/attr"
	mdnetlink "github.com/mdlayher/netlink"
)

// Client manages ipsets through one netlink channel. Calls block until the
// kernel has answered, and only one call may be in flight at a time: open
// more clients for concurrent use.
type Client struct {
	conn *netlink.Conn
}

// NewClient returns a client speaking over conn.
func NewClient(conn *netlink.Conn) *Client {
	return &Client{conn: conn}
}

// Open dials a netfilter socket and returns a client using it.
func Open(opts ...netlink.DialOpt) (*Client, error) {
	s, err := netlink.Dial(opts...)
	if err != nil {
		kind := ProtocolMismatch
		if err == netlink.ErrOsUnsupported {
			kind = Unsupported
		}
		return nil, &Error{Op: "open", Kind: kind, Err: err}
	}
	return NewClient(netlink.NewConn(s)), nil
}

// Close closes the channel.
func (c *Client) Close() error {
	return c.conn.Close()
}

func protocolAttr() *attr.Node {
	return attr.Uint8(IPSET_ATTR_PROTOCOL, IPSET_PROTOCOL)
}

// execute runs a command to completion and returns its data messages.
func (c *Client) execute(cmd uint8, set string, flags mdnetlink.HeaderFlags, attrs ...*attr.Node) ([]*attr.Node, error) {
	start := time.Now()
	trees, err := c.conn.Execute(cmd, flags, append([]*attr.Node{protocolAttr()}, attrs...)...)
	err = wrapError(cmd, set, err)
	observe(cmd, start, err)
	return trees, err
}

func checkName(op, name string) error {
	if name == "" {
		return newError(op, name, Unsupported, "empty set name")
	}
	if len(name) > MaxNameLength {
		return newError(op, name, Unsupported, "set name longer than %d characters", MaxNameLength)
	}
	return nil
}

// Create creates a set, of type hash:ip unless OptSetType says otherwise.
// With OptSetExclusive(false) creating an existing set of the same type and
// options succeeds without changing it.
func (c *Client) Create(name string, opts ...SetOpt) error {
	if err := checkName("create", name); err != nil {
		return err
	}
	o := CreateOptions{Type: SetHashIp, Family: FamilyInet, Exclusive: true}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return &Error{Op: "create", Set: name, Kind: Unsupported, Err: err}
		}
	}
	if err := o.validate(); err != nil {
		return &Error{Op: "create", Set: name, Kind: Unsupported, Err: err}
	}

	var revision uint8
	if o.Revision != nil {
		revision = *o.Revision
	} else {
		_, maxRev, err := c.TypeRevisions(o.Type, o.Family)
		if err != nil {
			return err
		}
		revision = maxRev
	}

	data := attr.Nested(IPSET_ATTR_DATA)
	if o.Hashsize != 0 {
		data.Add(attr.Uint32Net(IPSET_ATTR_HASHSIZE, o.Hashsize))
	}
	if o.Maxelem != 0 {
		data.Add(attr.Uint32Net(IPSET_ATTR_MAXELEM, o.Maxelem))
	}
	if o.Netmask != 0 {
		data.Add(attr.Uint8(IPSET_ATTR_NETMASK, o.Netmask))
	}
	if o.Timeout != nil {
		data.Add(attr.Uint32Net(IPSET_ATTR_TIMEOUT, *o.Timeout))
	}
	if flags := o.cadtFlags(); flags != 0 {
		data.Add(attr.Uint32Net(IPSET_ATTR_CADT_FLAGS, flags))
	}

	flags := netlink.FlagAck | netlink.FlagCreate
	if o.Exclusive {
		flags |= netlink.FlagExcl
	}
	_, err := c.execute(IPSET_CMD_CREATE, name, flags,
		attr.String(IPSET_ATTR_SETNAME, name),
		attr.String(IPSET_ATTR_TYPENAME, string(o.Type)),
		attr.Uint8(IPSET_ATTR_REVISION, revision),
		attr.Uint8(IPSET_ATTR_FAMILY, families[o.Family]),
		data,
	)
	if err == nil {
		log.Debug("ipset %s created, type %s revision %d", name, o.Type, revision)
	}
	return err
}

// Destroy removes a set. It fails with Busy while the set is referenced.
func (c *Client) Destroy(name string) error {
	if err := checkName("destroy", name); err != nil {
		return err
	}
	_, err := c.execute(IPSET_CMD_DESTROY, name, netlink.FlagAck, attr.String(IPSET_ATTR_SETNAME, name))
	return err
}

// DestroyAll removes every set. It fails with Busy if any is referenced.
func (c *Client) DestroyAll() error {
	_, err := c.execute(IPSET_CMD_DESTROY, "", netlink.FlagAck)
	return err
}

// Flush removes every entry of a set, or of all sets when name is empty.
func (c *Client) Flush(name string) error {
	var attrs []*attr.Node
	if name != "" {
		if err := checkName("flush", name); err != nil {
			return err
		}
		attrs = append(attrs, attr.String(IPSET_ATTR_SETNAME, name))
	}
	_, err := c.execute(IPSET_CMD_FLUSH, name, netlink.FlagAck, attrs...)
	return err
}

// Rename renames a set.
func (c *Client) Rename(from, to string) error {
	if err := checkName("rename", from); err != nil {
		return err
	}
	if err := checkName("rename", to); err != nil {
		return err
	}
	_, err := c.execute(IPSET_CMD_RENAME, from, netlink.FlagAck,
		attr.String(IPSET_ATTR_SETNAME, from),
		attr.String(IPSET_ATTR_SETNAME2, to),
	)
	return err
}

// Swap exchanges the contents of two sets. Sets of incompatible types are
// rejected by the kernel with TypeMismatch.
func (c *Client) Swap(a, b string) error {
	if err := checkName("swap", a); err != nil {
		return err
	}
	if err := checkName("swap", b); err != nil {
		return err
	}
	_, err := c.execute(IPSET_CMD_SWAP, a, netlink.FlagAck,
		attr.String(IPSET_ATTR_SETNAME, a),
		attr.String(IPSET_ATTR_SETNAME2, b),
	)
	return err
}

func (c *Client) entryRequest(op, name string, opts []EntryOpt) (*entryRequest, error) {
	if err := checkName(op, name); err != nil {
		return nil, err
	}
	r := &entryRequest{exclusive: true}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, &Error{Op: op, Set: name, Kind: Unsupported, Err: err}
		}
	}
	if r.etype != nil {
		return r, nil
	}

	info, err := c.Header(name)
	if err != nil {
		return nil, err
	}
	et, err := EntryTypeFor(info.Type)
	if err != nil {
		return nil, &Error{Op: op, Set: name, Kind: Unsupported, Err: err}
	}
	r.etype = et
	return r, nil
}

func (c *Client) adt(cmd uint8, name, value string, opts []EntryOpt) error {
	op := CommandName(cmd)
	r, err := c.entryRequest(op, name, opts)
	if err != nil {
		return err
	}
	data, err := EncodeEntry(r.etype, value, r.EntryOptions)
	if err != nil {
		return &Error{Op: op, Set: name, Kind: Unsupported, Err: err}
	}

	flags := netlink.FlagAck
	if r.exclusive {
		flags |= netlink.FlagExcl
	}
	_, err = c.execute(cmd, name, flags,
		attr.String(IPSET_ATTR_SETNAME, name),
		data,
		attr.Uint32(IPSET_ATTR_LINENO, 0),
	)
	return err
}

// Add adds an entry given as text, "10.0.0.0/24" or "10.0.0.0/24,eth0".
// By default an existing entry is an error; with OptExclusive(false) its
// comment and timeout are updated instead.
func (c *Client) Add(name, value string, opts ...EntryOpt) error {
	return c.adt(IPSET_CMD_ADD, name, value, opts)
}

// Delete removes an entry. A missing entry fails with NotFound unless
// OptExclusive(false) is given.
func (c *Client) Delete(name, value string, opts ...EntryOpt) error {
	return c.adt(IPSET_CMD_DEL, name, value, opts)
}

// Test reports whether an entry is in the set.
func (c *Client) Test(name, value string, opts ...EntryOpt) (bool, error) {
	err := c.adt(IPSET_CMD_TEST, name, value, opts)
	if Errno(err) == IPSET_ERR_EXIST {
		return false, nil
	}
	return err == nil, err
}

// Header returns the name, type, family and revision of a set.
func (c *Client) Header(name string) (*SetInfo, error) {
	if err := checkName("header", name); err != nil {
		return nil, err
	}
	trees, err := c.execute(IPSET_CMD_HEADER, name, 0, attr.String(IPSET_ATTR_SETNAME, name))
	if err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, newError("header", name, ProtocolMismatch, "empty reply")
	}
	info, err := newSetInfo(trees[0])
	if err != nil {
		return nil, &Error{Op: "header", Set: name, Kind: ProtocolMismatch, Err: err}
	}
	return info, nil
}

// Protocol returns the protocol version of the kernel and the oldest one it
// still speaks.
func (c *Client) Protocol() (version, minVersion uint8, err error) {
	trees, err := c.execute(IPSET_CMD_PROTOCOL, "", 0)
	if err != nil {
		return 0, 0, err
	}
	if len(trees) == 0 {
		return 0, 0, newError("protocol", "", ProtocolMismatch, "empty reply")
	}
	version, ok := trees[0].Get(IPSET_ATTR_PROTOCOL).Uint8()
	if !ok {
		return 0, 0, newError("protocol", "", ProtocolMismatch, "reply without protocol version")
	}
	minVersion, ok = trees[0].Get(IPSET_ATTR_PROTOCOL_MIN).Uint8()
	if !ok {
		minVersion = version
	}
	if IPSET_PROTOCOL < minVersion || IPSET_PROTOCOL > version {
		return version, minVersion, newError("protocol", "", ProtocolMismatch,
			"kernel speaks protocol %d to %d, client %d", minVersion, version, IPSET_PROTOCOL)
	}
	return version, minVersion, nil
}

// TypeRevisions returns the revisions of a set type supported by the kernel.
func (c *Client) TypeRevisions(t SetType, family string) (minRev, maxRev uint8, err error) {
	f, ok := families[family]
	if !ok {
		return 0, 0, newError("type", string(t), Unsupported, "unknown family %s", family)
	}
	trees, err := c.execute(IPSET_CMD_TYPE, string(t), 0,
		attr.String(IPSET_ATTR_TYPENAME, string(t)),
		attr.Uint8(IPSET_ATTR_FAMILY, f),
	)
	if err != nil {
		return 0, 0, err
	}
	if len(trees) == 0 {
		return 0, 0, newError("type", string(t), ProtocolMismatch, "empty reply")
	}
	maxRev, ok = trees[0].Get(IPSET_ATTR_REVISION).Uint8()
	if !ok {
		return 0, 0, newError("type", string(t), ProtocolMismatch, "reply without revision")
	}
	minRev, ok = trees[0].Get(IPSET_ATTR_REVISION_MIN).Uint8()
	if !ok {
		minRev = maxRev
	}
	return minRev, maxRev, nil
}

// ListNames returns the names of every set.
func (c *Client) ListNames() ([]string, error) {
	trees, err := c.execute(IPSET_CMD_LIST, "", netlink.FlagDump,
		attr.Uint32Net(IPSET_ATTR_FLAGS, IPSET_FLAG_LIST_SETNAME),
	)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, t := range trees {
		name, ok := t.Get(IPSET_ATTR_SETNAME).Str()
		if !ok {
			return nil, newError("list", "", ProtocolMismatch, "listing without set name")
		}
		if len(names) == 0 || names[len(names)-1] != name {
			names = append(names, name)
		}
	}
	return names, nil
}
