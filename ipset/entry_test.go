package ipset

import (
	"net"
	"testing"

	"github.com/delciotorres/pyroute2/netlink/attr"
	"github.com/google/go-cmp/cmp"
)

// wire encodes a node and decodes it back, as the kernel would see it.
func wire(t *testing.T, n *attr.Node) *attr.Node {
	t.Helper()
	b, err := attr.Encode(n)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	root, err := attr.Decode(b)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	return root.Get(IPSET_ATTR_DATA)
}

func TestEncodeEntryLayout(t *testing.T) {
	et := EntryType{ComponentNet, ComponentIface}
	data, err := EncodeEntry(et, "10.0.0.0/24,physdev:eth0", EntryOptions{Comment: "lan"})
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	n := wire(t, data)

	ip, ok := n.Path(IPSET_ATTR_IP, IPSET_ATTR_IPADDR_IPV4).IP()
	if !ok || !ip.Equal(net.ParseIP("10.0.0.0")) {
		t.Errorf("unexpected address: %v", ip)
	}
	if n.Path(IPSET_ATTR_IP, IPSET_ATTR_IPADDR_IPV4).Flags&attr.FlagNetByteOrder == 0 {
		t.Error("address should be flagged as network byte order")
	}
	if cidr, _ := n.Get(IPSET_ATTR_CIDR).Uint8(); cidr != 24 {
		t.Errorf("unexpected cidr: %d", cidr)
	}
	if iface, _ := n.Get(IPSET_ATTR_IFACE).Str(); iface != "eth0" {
		t.Errorf("unexpected iface: %q", iface)
	}
	if flags, _ := n.Get(IPSET_ATTR_CADT_FLAGS).Uint32(); flags != IPSET_FLAG_PHYSDEV {
		t.Errorf("unexpected cadt flags: %d", flags)
	}
	if comment, _ := n.Get(IPSET_ATTR_COMMENT).Str(); comment != "lan" {
		t.Errorf("unexpected comment: %q", comment)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	timeout := uint32(30)
	zero := uint64(0)

	tests := []struct {
		etype EntryType
		value string
		opts  EntryOptions
		want  string
	}{
		{EntryType{ComponentIP}, "192.168.1.1", EntryOptions{}, "192.168.1.1"},
		{EntryType{ComponentIP}, "2001:db8::1", EntryOptions{}, "2001:db8::1"},
		{EntryType{ComponentNet}, "10.0.0.0/8", EntryOptions{}, "10.0.0.0/8"},
		{EntryType{ComponentNet}, "10.0.0.1/32", EntryOptions{}, "10.0.0.1"},
		{EntryType{ComponentNet}, "2001:db8::/64", EntryOptions{}, "2001:db8::/64"},
		{EntryType{ComponentNet}, "2001:db8::1/128", EntryOptions{}, "2001:db8::1"},
		{EntryType{ComponentNet}, "10.0.0.1-10.0.0.6", EntryOptions{}, "10.0.0.1-10.0.0.6"},
		{EntryType{ComponentNet, ComponentNet}, "10.0.0.0/24,192.168.0.0/16", EntryOptions{}, "10.0.0.0/24,192.168.0.0/16"},
		{EntryType{ComponentIP, ComponentNet}, "10.0.0.1,192.168.0.0/16", EntryOptions{}, "10.0.0.1,192.168.0.0/16"},
		{EntryType{ComponentNet, ComponentIface}, "10.0.0.0/24,eth0", EntryOptions{}, "10.0.0.0/24,eth0"},
		{EntryType{ComponentNet, ComponentIface}, "10.0.0.0/24,physdev:eth1", EntryOptions{}, "10.0.0.0/24,physdev:eth1"},
		{EntryType{ComponentIP}, "10.1.1.1", EntryOptions{Comment: "foo", Timeout: &timeout, Packets: &zero, Bytes: &zero}, "10.1.1.1"},
	}

	for _, test := range tests {
		data, err := EncodeEntry(test.etype, test.value, test.opts)
		if err != nil {
			t.Errorf("%s: failed to encode: %v", test.value, err)
			continue
		}
		e, err := DecodeEntry(test.etype, wire(t, data))
		if err != nil {
			t.Errorf("%s: failed to decode: %v", test.value, err)
			continue
		}
		if e.Value != test.want {
			t.Errorf("%s: got %q, expected %q", test.value, e.Value, test.want)
		}
		if e.Comment != test.opts.Comment {
			t.Errorf("%s: got comment %q", test.value, e.Comment)
		}
		if diff := cmp.Diff(test.opts.Timeout, e.Timeout); diff != "" {
			t.Errorf("%s: unexpected timeout (-want +got):\n%s", test.value, diff)
		}
		if diff := cmp.Diff(test.opts.Packets, e.Packets); diff != "" {
			t.Errorf("%s: unexpected packets (-want +got):\n%s", test.value, diff)
		}
	}
}

func TestEntrySKBInfo(t *testing.T) {
	var o EntryOptions
	r := &entryRequest{}
	for _, opt := range []EntryOpt{OptSKBMark(0x10, 0xff), OptSKBPrio(1, 2), OptSKBQueue(3)} {
		if err := opt(r); err != nil {
			t.Fatal(err)
		}
	}
	o = r.EntryOptions

	data, err := EncodeEntry(EntryType{ComponentIP}, "10.0.0.1", o)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	e, err := DecodeEntry(EntryType{ComponentIP}, wire(t, data))
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if e.SKBMark == nil || *e.SKBMark != 0x10<<32|0xff {
		t.Errorf("unexpected skbmark: %v", e.SKBMark)
	}
	if e.SKBPrio == nil || *e.SKBPrio != 1<<16|2 {
		t.Errorf("unexpected skbprio: %v", e.SKBPrio)
	}
	if e.SKBQueue == nil || *e.SKBQueue != 3 {
		t.Errorf("unexpected skbqueue: %v", e.SKBQueue)
	}
	if got, want := e.Render(), "10.0.0.1 skbmark 0x10/0xff skbprio 1:2 skbqueue 3"; got != want {
		t.Errorf("got %q, expected %q", got, want)
	}
}

func TestEncodeEntryErrors(t *testing.T) {
	tests := []struct {
		etype EntryType
		value string
	}{
		{EntryType{ComponentIP}, "not-an-ip"},
		{EntryType{ComponentIP}, "10.0.0.1,eth0"},
		{EntryType{ComponentNet, ComponentIface}, "10.0.0.0/24"},
		{EntryType{ComponentNet}, "10.0.0.0/33"},
		{EntryType{ComponentNet, ComponentNet, ComponentNet}, "1.1.1.1,2.2.2.2,3.3.3.3"},
	}

	for _, test := range tests {
		if _, err := EncodeEntry(test.etype, test.value, EntryOptions{}); !IsKind(err, Unsupported) {
			t.Errorf("%s as %s: expected Unsupported, got %v", test.value, test.etype, err)
		}
	}
}

func TestDecodeEntryMissingAddress(t *testing.T) {
	n := attr.Nested(IPSET_ATTR_DATA, attr.String(IPSET_ATTR_IFACE, "eth0"))
	if _, err := DecodeEntry(EntryType{ComponentNet, ComponentIface}, n); !IsKind(err, ProtocolMismatch) {
		t.Errorf("expected ProtocolMismatch, got %v", err)
	}
}

func TestExpandRange(t *testing.T) {
	tests := []struct {
		from, to string
		want     []string
	}{
		{"10.0.0.0", "10.0.0.255", []string{"10.0.0.0/24"}},
		{"10.0.0.1", "10.0.0.1", []string{"10.0.0.1/32"}},
		{"10.0.0.1", "10.0.0.6", []string{"10.0.0.1/32", "10.0.0.2/31", "10.0.0.4/31", "10.0.0.6/32"}},
		{"192.168.0.0", "192.168.2.255", []string{"192.168.0.0/23", "192.168.2.0/24"}},
		{"255.255.255.254", "255.255.255.255", []string{"255.255.255.254/31"}},
		{"2001:db8::", "2001:db8::3", []string{"2001:db8::/126"}},
	}

	for _, test := range tests {
		blocks, err := ExpandRange(net.ParseIP(test.from), net.ParseIP(test.to))
		if err != nil {
			t.Errorf("%s-%s: %v", test.from, test.to, err)
			continue
		}
		var got []string
		for _, b := range blocks {
			got = append(got, b.String())
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("%s-%s: unexpected blocks (-want +got):\n%s", test.from, test.to, diff)
		}
	}

	if _, err := ExpandRange(net.ParseIP("10.0.0.2"), net.ParseIP("10.0.0.1")); err == nil {
		t.Error("reversed range should fail")
	}
}

func TestExpandValue(t *testing.T) {
	got := ExpandValue("10.0.0.1-10.0.0.3")
	if diff := cmp.Diff([]string{"10.0.0.1", "10.0.0.2/31"}, got); diff != "" {
		t.Errorf("unexpected values (-want +got):\n%s", diff)
	}
	if got := ExpandValue("10.0.0.0/24"); len(got) != 1 || got[0] != "10.0.0.0/24" {
		t.Errorf("non range values should be kept: %v", got)
	}
	if got := ExpandValue("veth-1"); len(got) != 1 || got[0] != "veth-1" {
		t.Errorf("interface names should be kept: %v", got)
	}
}

func TestExpandEntry(t *testing.T) {
	tests := []struct {
		value    string
		expected []string
	}{
		{"10.0.0.1/32", []string{"10.0.0.1"}},
		{"10.0.0.0/24,eth0", []string{"10.0.0.0/24,eth0"}},
		{"10.0.0.0-10.0.0.2,veth-1", []string{"10.0.0.0/31,veth-1", "10.0.0.2,veth-1"}},
		{"10.0.0.0-10.0.0.1,10.1.0.0-10.1.0.2", []string{
			"10.0.0.0/31,10.1.0.0/31",
			"10.0.0.0/31,10.1.0.2",
		}},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.expected, ExpandEntry(test.value)); diff != "" {
			t.Errorf("%s: unexpected entries (-want +got):\n%s", test.value, diff)
		}
	}
}
