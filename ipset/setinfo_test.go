package ipset

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/delciotorres/pyroute2/netlink/attr"
)

func testSet() *SetInfo {
	timeout := uint32(600)
	left := uint32(599)
	zero := uint64(0)
	return &SetInfo{
		Name:     "blocked",
		Type:     "hash:net",
		Revision: 7,
		Header: Header{
			Family:   FamilyInet,
			Hashsize: 1024,
			Maxelem:  65536,
			Timeout:  &timeout,
			Counters: true,
			Comment:  true,
		},
		Entries: []Entry{
			{Value: "10.0.0.0/8", Comment: "rfc1918", Timeout: &left, Packets: &zero, Bytes: &zero},
			{Value: "192.168.1.1", Timeout: &left, Packets: &zero, Bytes: &zero},
		},
	}
}

func TestRender(t *testing.T) {
	s := testSet()

	want := "create blocked hash:net family inet hashsize 1024 maxelem 65536 timeout 600 counters comment\n" +
		"add blocked 10.0.0.0/8 timeout 599 packets 0 bytes 0 comment \"rfc1918\"\n" +
		"add blocked 192.168.1.1 timeout 599 packets 0 bytes 0\n"
	if got := s.Render(RenderSave); got != want {
		t.Errorf("unexpected save output:\n%s\nexpected:\n%s", got, want)
	}

	mark, prio, queue := uint64(1)<<32|0xffffffff, uint32(0x10002), uint16(7)
	marked := &SetInfo{
		Name:    "marks",
		Type:    "hash:ip",
		Header:  Header{Family: FamilyInet, SKBInfo: true},
		Entries: []Entry{{Value: "10.0.0.1", SKBMark: &mark, SKBPrio: &prio, SKBQueue: &queue}},
	}
	wantMarked := "create marks hash:ip family inet skbinfo\n" +
		"add marks 10.0.0.1 skbmark 0x1/0xffffffff skbprio 1:2 skbqueue 7\n"
	if got := marked.Render(RenderSave); got != wantMarked {
		t.Errorf("unexpected skbinfo output:\n%s\nexpected:\n%s", got, wantMarked)
	}

	if got := s.Render(RenderDelete); got != "del blocked 10.0.0.0/8\ndel blocked 192.168.1.1\n" {
		t.Errorf("unexpected delete output:\n%s", got)
	}
	if got := s.Render(RenderDestroy); got != "destroy blocked\n" {
		t.Errorf("unexpected destroy output: %q", got)
	}

	sets := &Sets{Sets: []*SetInfo{s, {Name: "other", Type: "hash:ip"}}}
	if got := sets.Render(RenderFlush); got != "flush blocked\nflush other\n" {
		t.Errorf("unexpected flush output: %q", got)
	}
	if sets.SetByName("other") == nil || sets.SetByName("missing") != nil {
		t.Error("SetByName failed")
	}
}

func TestMarshal(t *testing.T) {
	s := testSet()

	b, err := xml.Marshal(&Sets{Sets: []*SetInfo{s}})
	if err != nil {
		t.Fatalf("xml: %v", err)
	}
	out := string(b)
	for _, want := range []string{`<ipsets><ipset name="blocked">`, `<type>hash:net</type>`, `<member><elem>10.0.0.0/8</elem>`, `<comment>rfc1918</comment>`} {
		if !strings.Contains(out, want) {
			t.Errorf("xml output misses %s:\n%s", want, out)
		}
	}

	b, err = json.Marshal(s)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var back SetInfo
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if back.Name != "blocked" || len(back.Entries) != 2 || back.Entries[0].Comment != "rfc1918" {
		t.Errorf("unexpected json round trip: %+v", back)
	}
}

func TestListingMessages(t *testing.T) {
	entry := attr.Nested(IPSET_ATTR_DATA,
		attr.Nested(IPSET_ATTR_IP, attr.BytesNet(IPSET_ATTR_IPADDR_IPV4, []byte{10, 0, 0, 1})),
		attr.Uint16Net(IPSET_ATTR_PORT, 80),
	)
	first := attr.Nested(0,
		attr.String(IPSET_ATTR_SETNAME, "web"),
		attr.String(IPSET_ATTR_TYPENAME, "hash:ip,port"),
		attr.Uint8(IPSET_ATTR_FAMILY, 2),
		attr.Nested(IPSET_ATTR_ADT, entry),
	)

	info, err := newSetInfo(first)
	if err != nil {
		t.Fatalf("failed to read listing: %v", err)
	}
	if err := info.addEntries(first); err != nil {
		t.Fatalf("entries of unknown types should not fail: %v", err)
	}
	if len(info.Entries) != 1 || info.Entries[0].Value != "" || info.Entries[0].Raw != entry {
		t.Errorf("unknown entry should only keep its raw tree: %+v", info.Entries)
	}

	cont := attr.Nested(0, attr.String(IPSET_ATTR_SETNAME, "plain"))
	info, err = newSetInfo(cont)
	if err != nil {
		t.Fatalf("failed to read listing: %v", err)
	}
	if info.Type != "hash:ip" {
		t.Errorf("missing type should default to hash:ip, got %s", info.Type)
	}

	if _, err := newSetInfo(attr.Nested(0, attr.String(IPSET_ATTR_TYPENAME, "hash:ip"))); err == nil {
		t.Error("listing without set name should fail")
	}
}
