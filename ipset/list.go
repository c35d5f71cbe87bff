package ipset

import (
	"time"

	"github.com/delciotorres/pyroute2/netlink"
	"github.com/delciotorres/pyroute2/netlink/attr"
	"github.com/pkg/errors"
)

// newSetInfo reads the first listing message of a set.
func newSetInfo(tree *attr.Node) (*SetInfo, error) {
	name, ok := tree.Get(IPSET_ATTR_SETNAME).Str()
	if !ok {
		return nil, errors.New("listing without set name")
	}
	info := &SetInfo{Name: name, Type: string(SetHashIp)}
	if t, ok := tree.Get(IPSET_ATTR_TYPENAME).Str(); ok {
		info.Type = t
	}
	if rev, ok := tree.Get(IPSET_ATTR_REVISION).Uint8(); ok {
		info.Revision = rev
	}
	if f, ok := tree.Get(IPSET_ATTR_FAMILY).Uint8(); ok {
		info.Header.Family = familyName(f)
	}
	decodeHeader(&info.Header, tree.Get(IPSET_ATTR_DATA))
	return info, nil
}

// addEntries decodes the entries of one listing message into info.
// Entries of sets of unknown type keep only their raw tree.
func (info *SetInfo) addEntries(tree *attr.Node) error {
	info.Raw = append(info.Raw, tree)
	adt := tree.Get(IPSET_ATTR_ADT)
	if adt == nil {
		return nil
	}
	et, err := EntryTypeFor(info.Type)
	for _, n := range adt.GetAll(IPSET_ATTR_DATA) {
		if err != nil {
			info.Entries = append(info.Entries, Entry{Raw: n})
			continue
		}
		e, derr := DecodeEntry(et, n)
		if derr != nil {
			return derr
		}
		info.Entries = append(info.Entries, e)
	}
	return nil
}

// SetIterator yields the sets of a listing, one at a time. It must be
// closed when abandoned before Next returns false.
type SetIterator struct {
	name    string
	replies *netlink.Replies
	start   time.Time
	pending *SetInfo
	cur     *SetInfo
	err     error
	done    bool
}

// List lists every set, or only the named one. A missing named set yields
// an empty listing.
func (c *Client) List(name string) *SetIterator {
	it := &SetIterator{name: name, start: time.Now()}
	attrs := []*attr.Node{protocolAttr()}
	if name != "" {
		if err := checkName("list", name); err != nil {
			it.fail(err)
			return it
		}
		attrs = append(attrs, attr.String(IPSET_ATTR_SETNAME, name))
	}

	r, err := c.conn.Request(IPSET_CMD_LIST, netlink.FlagDump, attrs...)
	if err != nil {
		it.fail(wrapError(IPSET_CMD_LIST, name, err))
		return it
	}
	it.replies = r
	return it
}

// Next advances to the next set. Messages continuing the previous set are
// merged into it.
func (it *SetIterator) Next() bool {
	it.cur = nil
	if it.done {
		return false
	}

	for it.replies.Next() {
		tree := it.replies.Tree()
		name, ok := tree.Get(IPSET_ATTR_SETNAME).Str()
		if !ok {
			it.abort(newError("list", it.name, ProtocolMismatch, "listing without set name"))
			return false
		}

		if it.pending != nil && it.pending.Name == name {
			if err := it.pending.addEntries(tree); err != nil {
				it.abort(&Error{Op: "list", Set: name, Kind: ProtocolMismatch, Err: err})
				return false
			}
			continue
		}

		info, err := newSetInfo(tree)
		if err == nil {
			err = info.addEntries(tree)
		}
		if err != nil {
			it.abort(&Error{Op: "list", Set: name, Kind: ProtocolMismatch, Err: err})
			return false
		}
		prev := it.pending
		it.pending = info
		if prev != nil {
			it.cur = prev
			return true
		}
	}

	if err := it.replies.Err(); err != nil {
		err = wrapError(IPSET_CMD_LIST, it.name, err)
		if !(it.name != "" && IsKind(err, NotFound)) {
			it.fail(err)
			return false
		}
	}
	if it.pending != nil {
		it.cur = it.pending
		it.pending = nil
		return true
	}
	it.fail(nil)
	return false
}

// Set returns the current set.
func (it *SetIterator) Set() *SetInfo {
	return it.cur
}

// Err returns the error that ended the listing.
func (it *SetIterator) Err() error {
	return it.err
}

// Close abandons the listing. The client's channel is closed if the kernel
// had not finished answering.
func (it *SetIterator) Close() error {
	if it.done {
		return nil
	}
	it.fail(nil)
	return it.replies.Close()
}

// All drains the listing.
func (it *SetIterator) All() ([]*SetInfo, error) {
	defer it.Close()
	var sets []*SetInfo
	for it.Next() {
		sets = append(sets, it.Set())
	}
	return sets, it.Err()
}

func (it *SetIterator) fail(err error) {
	if it.done {
		return
	}
	it.done = true
	it.err = err
	it.pending = nil
	observe(IPSET_CMD_LIST, it.start, err)
}

// abort ends the listing on a malformed reply, dropping the channel.
func (it *SetIterator) abort(err error) {
	it.fail(err)
	if it.replies != nil {
		it.replies.Close()
	}
}
