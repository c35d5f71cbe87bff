package ipset

import (
	"bytes"
	"net"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
)

// ExpandRange splits the address range [from, to] into the CIDR aligned
// blocks the kernel stores it as.
func ExpandRange(from, to net.IP) ([]*net.IPNet, error) {
	bits := 32
	if from.To4() != nil && to.To4() != nil {
		from, to = from.To4(), to.To4()
	} else {
		bits = 128
		from, to = from.To16(), to.To16()
	}
	if from == nil || to == nil || bytes.Compare(from, to) > 0 {
		return nil, newError("parse", "", Unsupported, "invalid range %s-%s", from, to)
	}

	var out []*net.IPNet
	start := from
	for {
		var block *net.IPNet
		for ones := 0; ones <= bits; ones++ {
			mask := net.CIDRMask(ones, bits)
			if !start.Mask(mask).Equal(start) {
				continue
			}
			n := &net.IPNet{IP: start, Mask: mask}
			if _, last := cidr.AddressRange(n); bytes.Compare(last, to) > 0 {
				continue
			}
			block = n
			break
		}
		out = append(out, block)

		_, last := cidr.AddressRange(block)
		if bytes.Equal(last, to) {
			return out, nil
		}
		start = cidr.Inc(last)
	}
}

// ExpandValue returns the blocks a textual "a-b" value is stored as, or the
// value itself when it is not a range.
func ExpandValue(value string) []string {
	from, to, isRange := strings.Cut(value, "-")
	if !isRange {
		return []string{value}
	}
	a, errA := parseIP(from)
	b, errB := parseIP(to)
	if errA != nil || errB != nil {
		return []string{value}
	}
	blocks, err := ExpandRange(a, b)
	if err != nil {
		return []string{value}
	}
	out := make([]string, len(blocks))
	for i, n := range blocks {
		ones, bits := n.Mask.Size()
		if ones == bits {
			out[i] = n.IP.String()
			continue
		}
		out[i] = n.String()
	}
	return out
}

// ExpandEntry returns the entries the kernel stores for a textual entry
// value: every range component is split with ExpandValue, and single host
// prefixes are dropped as listings do.
func ExpandEntry(value string) []string {
	out := []string{""}
	for i, part := range strings.Split(value, ",") {
		var next []string
		for _, prefix := range out {
			for _, v := range ExpandValue(part) {
				v = trimHostPrefix(v)
				if i > 0 {
					v = prefix + "," + v
				}
				next = append(next, v)
			}
		}
		out = next
	}
	return out
}

func trimHostPrefix(v string) string {
	ip, n, err := net.ParseCIDR(v)
	if err != nil {
		return v
	}
	if ones, bits := n.Mask.Size(); ones == bits {
		return ip.String()
	}
	return v
}
