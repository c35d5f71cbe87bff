package ipset

import (
	"strings"
)

// Component is one part of an entry.
type Component int

const (
	ComponentIP Component = iota
	ComponentNet
	ComponentIface
)

func (c Component) String() string {
	switch c {
	case ComponentIP:
		return "ip"
	case ComponentNet:
		return "net"
	case ComponentIface:
		return "iface"
	}
	return "unknown"
}

// EntryType is the ordered list of components of a set's entries.
type EntryType []Component

func (et EntryType) String() string {
	parts := make([]string, len(et))
	for i, c := range et {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// DefaultEntryType is used when the kernel does not say the set type.
var DefaultEntryType = EntryType{ComponentIP}

var components = map[string]Component{
	"ip":    ComponentIP,
	"net":   ComponentNet,
	"iface": ComponentIface,
}

// ParseEntryType parses a comma separated list of components, "net,iface".
func ParseEntryType(s string) (EntryType, error) {
	var et EntryType
	for _, part := range strings.Split(s, ",") {
		c, ok := components[strings.TrimSpace(part)]
		if !ok {
			return nil, newError("parse", "", Unsupported, "unknown entry component %q in %q", part, s)
		}
		et = append(et, c)
	}
	return et, nil
}

// EntryTypeFor derives the entry type of a set type, "hash:net,iface".
func EntryTypeFor(setType string) (EntryType, error) {
	if setType == "" {
		return DefaultEntryType, nil
	}
	method, comps, found := strings.Cut(setType, ":")
	if !found || method != "hash" {
		return nil, newError("parse", "", Unsupported, "unsupported set type %q", setType)
	}
	return ParseEntryType(comps)
}

// SetType is the kernel type name of a set.
type SetType string

const (
	SetHashIp       SetType = "hash:ip"
	SetHashNet      SetType = "hash:net"
	SetHashNetNet   SetType = "hash:net,net"
	SetHashIpNet    SetType = "hash:ip,net"
	SetHashNetIface SetType = "hash:net,iface"
)

// HeaderValidationMap lists the creation options each known type accepts.
var HeaderValidationMap = map[SetType]string{
	SetHashIp:       "-family-hashsize-maxelem-netmask-timeout-counters-comment-skbinfo-forceadd-",
	SetHashNet:      "-family-hashsize-maxelem-timeout-counters-comment-skbinfo-forceadd-",
	SetHashNetNet:   "-family-hashsize-maxelem-timeout-counters-comment-skbinfo-forceadd-",
	SetHashIpNet:    "-family-hashsize-maxelem-timeout-counters-comment-skbinfo-forceadd-",
	SetHashNetIface: "-family-hashsize-maxelem-timeout-counters-comment-skbinfo-forceadd-",
}

// Known reports whether the type is in the registry.
func (t SetType) Known() bool {
	_, ok := HeaderValidationMap[t]
	return ok
}

func (t SetType) accepts(option string) bool {
	return strings.Contains(HeaderValidationMap[t], "-"+option+"-")
}
