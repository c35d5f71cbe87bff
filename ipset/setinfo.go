package ipset

import (
	"encoding/xml"
	"fmt"

	"github.com/delciotorres/pyroute2/netlink/attr"
)

// Header is the configuration and state of a set, as listed.
type Header struct {
	Family     string  `xml:"family,omitempty" json:"family,omitempty"`
	Hashsize   uint32  `xml:"hashsize,omitempty" json:"hashsize,omitempty"`
	Maxelem    uint32  `xml:"maxelem,omitempty" json:"maxelem,omitempty"`
	Netmask    uint8   `xml:"netmask,omitempty" json:"netmask,omitempty"`
	Timeout    *uint32 `xml:"timeout,omitempty" json:"timeout,omitempty"`
	Memsize    uint32  `xml:"memsize,omitempty" json:"memsize,omitempty"`
	References uint32  `xml:"references" json:"references"`
	Elements   uint32  `xml:"numentries" json:"numentries"`
	Counters   bool    `xml:"counters,omitempty" json:"counters,omitempty"`
	Comment    bool    `xml:"comment,omitempty" json:"comment,omitempty"`
	SKBInfo    bool    `xml:"skbinfo,omitempty" json:"skbinfo,omitempty"`
	Forceadd   bool    `xml:"forceadd,omitempty" json:"forceadd,omitempty"`
}

func decodeHeader(h *Header, n *attr.Node) {
	if n == nil {
		return
	}
	if v, ok := n.Get(IPSET_ATTR_HASHSIZE).Uint32(); ok {
		h.Hashsize = v
	}
	if v, ok := n.Get(IPSET_ATTR_MAXELEM).Uint32(); ok {
		h.Maxelem = v
	}
	if v, ok := n.Get(IPSET_ATTR_NETMASK).Uint8(); ok {
		h.Netmask = v
	}
	if v, ok := n.Get(IPSET_ATTR_TIMEOUT).Uint32(); ok {
		h.Timeout = &v
	}
	if v, ok := n.Get(IPSET_ATTR_MEMSIZE).Uint32(); ok {
		h.Memsize = v
	}
	if v, ok := n.Get(IPSET_ATTR_REFERENCES).Uint32(); ok {
		h.References = v
	}
	if v, ok := n.Get(IPSET_ATTR_ELEMENTS).Uint32(); ok {
		h.Elements = v
	}
	if flags, ok := n.Get(IPSET_ATTR_CADT_FLAGS).Uint32(); ok {
		h.Counters = flags&IPSET_FLAG_WITH_COUNTERS != 0
		h.Comment = flags&IPSET_FLAG_WITH_COMMENT != 0
		h.Forceadd = flags&IPSET_FLAG_WITH_FORCEADD != 0
		h.SKBInfo = flags&IPSET_FLAG_WITH_SKBINFO != 0
	}
}

// render returns the creation options in ipset save syntax.
func (h *Header) render() string {
	var result string

	if h.Family != "" {
		result += fmt.Sprintf(" family %s", h.Family)
	}
	if h.Hashsize != 0 {
		result += fmt.Sprintf(" hashsize %d", h.Hashsize)
	}
	if h.Maxelem != 0 {
		result += fmt.Sprintf(" maxelem %d", h.Maxelem)
	}
	if h.Netmask != 0 {
		result += fmt.Sprintf(" netmask %d", h.Netmask)
	}
	if h.Timeout != nil {
		result += fmt.Sprintf(" timeout %d", *h.Timeout)
	}
	if h.Counters {
		result += " counters"
	}
	if h.Comment {
		result += " comment"
	}
	if h.SKBInfo {
		result += " skbinfo"
	}
	if h.Forceadd {
		result += " forceadd"
	}
	return result
}

// String returns the creation options as listed by ipset.
func (h *Header) String() string {
	return h.render()
}

// SetInfo describes a set and its entries.
type SetInfo struct {
	XMLName  xml.Name `xml:"ipset" json:"-"`
	Name     string   `xml:"name,attr" json:"name"`
	Type     string   `xml:"type" json:"type"`
	Revision uint8    `xml:"revision" json:"revision"`
	Header   Header   `xml:"header" json:"header"`
	Entries  []Entry  `xml:"members>member" json:"members,omitempty"`

	// Raw holds the listing messages the set was decoded from.
	Raw []*attr.Node `xml:"-" json:"-"`
}

// RenderType selects what Render outputs.
type RenderType int

const (
	// Render the set and its entries, same as ipset save.
	RenderSave RenderType = iota

	// Render the set creation only.
	RenderCreate

	// Render the entries for addition.
	RenderAdd

	// Render the entries for deletion.
	RenderDelete

	// Render the flush of the set.
	RenderFlush

	// Render the destruction of the set.
	RenderDestroy
)

// Render returns the set in ipset restore syntax.
func (s *SetInfo) Render(rType RenderType) string {
	var result string

	if s == nil {
		return result
	}

	switch rType {
	case RenderCreate:
		result += fmt.Sprintf("create %s %s%s\n", s.Name, s.Type, s.Header.render())
	case RenderSave:
		result += fmt.Sprintf("create %s %s%s\n", s.Name, s.Type, s.Header.render())
		for _, e := range s.Entries {
			result += fmt.Sprintf("add %s %s\n", s.Name, e.Render())
		}
	case RenderAdd:
		for _, e := range s.Entries {
			result += fmt.Sprintf("add %s %s\n", s.Name, e.Render())
		}
	case RenderDelete:
		for _, e := range s.Entries {
			result += fmt.Sprintf("del %s %s\n", s.Name, e.Value)
		}
	case RenderFlush:
		result += fmt.Sprintf("flush %s\n", s.Name)
	case RenderDestroy:
		result += fmt.Sprintf("destroy %s\n", s.Name)
	}

	return result
}

// Entry returns the entry with the given value, or nil.
func (s *SetInfo) Entry(value string) *Entry {
	for i := range s.Entries {
		if s.Entries[i].Value == value {
			return &s.Entries[i]
		}
	}
	return nil
}

// Sets is a listing of several sets.
type Sets struct {
	XMLName xml.Name   `xml:"ipsets" json:"-"`
	Sets    []*SetInfo `xml:"ipset" json:"ipsets"`
}

// SetByName returns the set with the given name, or nil.
func (s *Sets) SetByName(name string) *SetInfo {
	for i, set := range s.Sets {
		if set.Name == name {
			return s.Sets[i]
		}
	}
	return nil
}

// Render renders every set.
func (s *Sets) Render(rType RenderType) string {
	var result string
	for _, set := range s.Sets {
		result += set.Render(rType)
	}
	return result
}
