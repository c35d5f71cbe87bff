package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const testJSON = `{
  "sets": [
    {"name": "blocked", "type": "hash:net", "comment": true, "timeout": 600,
     "entries": [{"value": "10.0.0.0/8", "comment": "rfc1918"}, {"value": "192.168.1.1", "timeout": 30}]},
    {"name": "plain"}
  ]
}`

const testYAML = `
sets:
  - name: blocked
    type: hash:net
    comment: true
    timeout: 600
    entries:
      - value: 10.0.0.0/8
        comment: rfc1918
      - value: 192.168.1.1
        timeout: 30
  - name: plain
`

func u32(v uint32) *uint32 { return &v }

func TestParse(t *testing.T) {
	expected := &Config{Sets: []SetConfig{
		{
			Name: "blocked", Type: "hash:net", Comment: true, Timeout: u32(600),
			Entries: []EntryConfig{
				{Value: "10.0.0.0/8", Comment: "rfc1918"},
				{Value: "192.168.1.1", Timeout: u32(30)},
			},
		},
		{Name: "plain"},
	}}

	for name, test := range map[string]struct {
		raw    string
		format Format
	}{
		"json": {testJSON, FormatJSON},
		"yaml": {testYAML, FormatYAML},
	} {
		cfg, err := Parse([]byte(test.raw), test.format)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if diff := cmp.Diff(expected, cfg); diff != "" {
			t.Errorf("%s: unexpected config (-want +got):\n%s", name, diff)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  string
	}{
		{"no name", `{"sets":[{"type":"hash:ip"}]}`, "no name"},
		{"long name", `{"sets":[{"name":"` + strings.Repeat("x", 32) + `"}]}`, "longer than"},
		{"duplicate", `{"sets":[{"name":"a"},{"name":"a"}]}`, "more than once"},
		{"bad type", `{"sets":[{"name":"a","type":"bitmap:port"}]}`, "unsupported type"},
		{"bad family", `{"sets":[{"name":"a","family":"inet7"}]}`, "unknown family"},
		{"empty entry", `{"sets":[{"name":"a","entries":[{}]}]}`, "without value"},
		{"comment", `{"sets":[{"name":"a","entries":[{"value":"1.1.1.1","comment":"x"}]}]}`, "no comment support"},
		{"timeout", `{"sets":[{"name":"a","entries":[{"value":"1.1.1.1","timeout":1}]}]}`, "has none"},
	}
	for _, test := range tests {
		_, err := Parse([]byte(test.raw), FormatJSON)
		if err == nil || !strings.Contains(err.Error(), test.err) {
			t.Errorf("%s: expected error containing %q, got %v", test.name, test.err, err)
		}
	}
}

func TestFormatFor(t *testing.T) {
	for path, expected := range map[string]Format{
		"sets.json": FormatJSON,
		"sets.yaml": FormatYAML,
		"sets.YML":  FormatYAML,
		"sets":      FormatJSON,
	} {
		if got := FormatFor(path); got != expected {
			t.Errorf("%s: got %d, expected %d", path, got, expected)
		}
	}
}

func TestOptions(t *testing.T) {
	cfg, err := Parse([]byte(testJSON), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Sets[1].SetType(); got != "hash:ip" {
		t.Errorf("default type: got %s", got)
	}
	// type, exclusive(false), comment, timeout
	if n := len(cfg.Sets[0].CreateOptions()); n != 4 {
		t.Errorf("expected 4 create options, got %d", n)
	}
	if n := len(cfg.Sets[0].Entries[0].Options()); n != 2 {
		t.Errorf("expected 2 entry options, got %d", n)
	}
}

func TestLoadSettings(t *testing.T) {
	os.Setenv("IPSET_NETNS", "blue")
	os.Setenv("IPSET_RECV_TIMEOUT", "250ms")
	os.Setenv("IPSET_RECV_BUFFER", "65536")
	defer os.Unsetenv("IPSET_NETNS")
	defer os.Unsetenv("IPSET_RECV_TIMEOUT")
	defer os.Unsetenv("IPSET_RECV_BUFFER")

	s, err := LoadSettings()
	if err != nil {
		t.Fatal(err)
	}
	if s.Netns != "blue" || s.RecvTimeout != 250*time.Millisecond || s.LogLevel != "info" ||
		s.RecvBuffer != 65536 || s.LogFormat != "text" {
		t.Errorf("unexpected settings: %+v", s)
	}
}

func TestWatcher(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sets.json")
	if err := ioutil.WriteFile(file, []byte(`{"sets":[{"name":"first"}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(file)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := w.Start()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sets[0].Name != "first" {
		t.Errorf("unexpected initial config: %+v", cfg)
	}

	// an invalid file is skipped, the following valid one is delivered
	if err := ioutil.WriteFile(file, []byte(`{"sets":[{}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(file, []byte(`{"sets":[{"name":"second"}]}`), 0644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case cfg := <-w.ReloadConfChan:
			if cfg == nil {
				t.Fatal("reload channel closed")
			}
			if len(cfg.Sets) == 1 && cfg.Sets[0].Name == "second" {
				done = true
			}
		case <-timeout:
			t.Fatal("configuration not reloaded")
		}
	}

	w.Stop()
	select {
	case _, ok := <-w.ReloadConfChan:
		for ok {
			_, ok = <-w.ReloadConfChan
		}
	case <-time.After(5 * time.Second):
		t.Error("reload channel not closed after Stop")
	}
}
