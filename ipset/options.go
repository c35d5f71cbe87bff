package ipset

import (
	"syscall"

	"github.com/pkg/errors"
)

// Families accepted by OptSetFamily.
const (
	FamilyInet  = "inet"
	FamilyInet6 = "inet6"
)

var families = map[string]uint8{
	FamilyInet:  syscall.AF_INET,
	FamilyInet6: syscall.AF_INET6,
}

func familyName(f uint8) string {
	for name, v := range families {
		if v == f {
			return name
		}
	}
	return ""
}

// CreateOptions is the configuration of a new set.
type CreateOptions struct {
	Type      SetType
	Family    string
	Exclusive bool
	Counters  bool
	Comment   bool
	Forceadd  bool
	SKBInfo   bool
	Timeout   *uint32
	Maxelem   uint32
	Hashsize  uint32
	Netmask   uint8
	Revision  *uint8
}

// SetOpt configures Create.
type SetOpt func(*CreateOptions) error

// OptSetType sets the set type, hash:ip by default.
func OptSetType(t SetType) SetOpt {
	return func(o *CreateOptions) error {
		o.Type = t
		return nil
	}
}

// OptSetFamily sets the address family, inet or inet6.
func OptSetFamily(family string) SetOpt {
	return func(o *CreateOptions) error {
		if _, ok := families[family]; !ok {
			return errors.Errorf("unknown family %s", family)
		}
		o.Family = family
		return nil
	}
}

// OptSetExclusive makes Create fail when the set exists. Enabled by default.
func OptSetExclusive(exclusive bool) SetOpt {
	return func(o *CreateOptions) error {
		o.Exclusive = exclusive
		return nil
	}
}

// OptSetCounters enables packet and byte counters on entries.
func OptSetCounters() SetOpt {
	return func(o *CreateOptions) error {
		o.Counters = true
		return nil
	}
}

// OptSetComment enables entry comments.
func OptSetComment() SetOpt {
	return func(o *CreateOptions) error {
		o.Comment = true
		return nil
	}
}

// OptSetForceadd evicts a random entry when adding to a full set.
func OptSetForceadd() SetOpt {
	return func(o *CreateOptions) error {
		o.Forceadd = true
		return nil
	}
}

// OptSetSKBInfo enables skbmark, skbprio and skbqueue on entries.
func OptSetSKBInfo() SetOpt {
	return func(o *CreateOptions) error {
		o.SKBInfo = true
		return nil
	}
}

// OptSetTimeout sets the default entry timeout, in seconds.
func OptSetTimeout(timeout uint32) SetOpt {
	return func(o *CreateOptions) error {
		o.Timeout = &timeout
		return nil
	}
}

func OptSetMaxelem(maxelem uint32) SetOpt {
	return func(o *CreateOptions) error {
		o.Maxelem = maxelem
		return nil
	}
}

func OptSetHashsize(hashsize uint32) SetOpt {
	return func(o *CreateOptions) error {
		o.Hashsize = hashsize
		return nil
	}
}

func OptSetNetmask(netmask uint8) SetOpt {
	return func(o *CreateOptions) error {
		o.Netmask = netmask
		return nil
	}
}

// OptSetRevision skips the revision lookup and uses the given one.
func OptSetRevision(revision uint8) SetOpt {
	return func(o *CreateOptions) error {
		o.Revision = &revision
		return nil
	}
}

// validate checks the options against the type registry.
func (o *CreateOptions) validate() error {
	if !o.Type.Known() {
		return errors.Errorf("unknown set type %s", o.Type)
	}
	used := []struct {
		name string
		set  bool
	}{
		{"family", o.Family != FamilyInet},
		{"hashsize", o.Hashsize != 0},
		{"maxelem", o.Maxelem != 0},
		{"netmask", o.Netmask != 0},
		{"timeout", o.Timeout != nil},
		{"counters", o.Counters},
		{"comment", o.Comment},
		{"skbinfo", o.SKBInfo},
		{"forceadd", o.Forceadd},
	}
	for _, u := range used {
		if u.set && !o.Type.accepts(u.name) {
			return errors.Errorf("set of type %s incompatible with option %s", o.Type, u.name)
		}
	}
	return nil
}

func (o *CreateOptions) cadtFlags() uint32 {
	var flags uint32
	if o.Counters {
		flags |= IPSET_FLAG_WITH_COUNTERS
	}
	if o.Comment {
		flags |= IPSET_FLAG_WITH_COMMENT
	}
	if o.Forceadd {
		flags |= IPSET_FLAG_WITH_FORCEADD
	}
	if o.SKBInfo {
		flags |= IPSET_FLAG_WITH_SKBINFO
	}
	return flags
}

type entryRequest struct {
	EntryOptions
	exclusive bool
	etype     EntryType
}

// EntryOpt configures Add, Delete and Test.
type EntryOpt func(*entryRequest) error

// OptComment attaches a comment to the entry.
func OptComment(comment string) EntryOpt {
	return func(r *entryRequest) error {
		r.Comment = comment
		return nil
	}
}

// OptTimeout overrides the set's default timeout, in seconds.
func OptTimeout(timeout uint32) EntryOpt {
	return func(r *entryRequest) error {
		r.Timeout = &timeout
		return nil
	}
}

// OptExclusive controls whether an existing entry is an error (Add) or a
// missing one is (Delete). Enabled by default.
func OptExclusive(exclusive bool) EntryOpt {
	return func(r *entryRequest) error {
		r.exclusive = exclusive
		return nil
	}
}

// OptEntryType skips the set type lookup and uses the given components,
// "net,iface".
func OptEntryType(etype string) EntryOpt {
	return func(r *entryRequest) error {
		et, err := ParseEntryType(etype)
		if err != nil {
			return err
		}
		r.etype = et
		return nil
	}
}

func OptPackets(packets uint64) EntryOpt {
	return func(r *entryRequest) error {
		r.Packets = &packets
		return nil
	}
}

func OptBytes(bytes uint64) EntryOpt {
	return func(r *entryRequest) error {
		r.Bytes = &bytes
		return nil
	}
}

// OptNomatch adds the entry as an exception.
func OptNomatch() EntryOpt {
	return func(r *entryRequest) error {
		r.Nomatch = true
		return nil
	}
}

func OptSKBMark(mark, mask uint32) EntryOpt {
	return func(r *entryRequest) error {
		v := uint64(mark)<<32 | uint64(mask)
		r.SKBMark = &v
		return nil
	}
}

func OptSKBPrio(major, minor uint16) EntryOpt {
	return func(r *entryRequest) error {
		v := uint32(major)<<16 | uint32(minor)
		r.SKBPrio = &v
		return nil
	}
}

func OptSKBQueue(queue uint16) EntryOpt {
	return func(r *entryRequest) error {
		r.SKBQueue = &queue
		return nil
	}
}
