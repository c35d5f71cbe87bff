package config

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/delciotorres/pyroute2/ipset"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EntryConfig is one member of a set.
type EntryConfig struct {
	Value   string  `json:"value" yaml:"value"`
	Comment string  `json:"comment,omitempty" yaml:"comment,omitempty"`
	Timeout *uint32 `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SetConfig describes a set and the entries it must hold.
type SetConfig struct {
	Name     string        `json:"name" yaml:"name"`
	Type     string        `json:"type,omitempty" yaml:"type,omitempty"`
	Family   string        `json:"family,omitempty" yaml:"family,omitempty"`
	Counters bool          `json:"counters,omitempty" yaml:"counters,omitempty"`
	Comment  bool          `json:"comment,omitempty" yaml:"comment,omitempty"`
	Forceadd bool          `json:"forceadd,omitempty" yaml:"forceadd,omitempty"`
	SKBInfo  bool          `json:"skbinfo,omitempty" yaml:"skbinfo,omitempty"`
	Timeout  *uint32       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Maxelem  uint32        `json:"maxelem,omitempty" yaml:"maxelem,omitempty"`
	Hashsize uint32        `json:"hashsize,omitempty" yaml:"hashsize,omitempty"`
	Entries  []EntryConfig `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// Config is the desired state of the managed sets.
type Config struct {
	Sets []SetConfig `json:"sets" yaml:"sets"`
}

// Format of a configuration file.
type Format int

// Supported formats.
const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from the file extension. Anything that isn't
// .yaml or .yml is parsed as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	cfg, err := Parse(raw, FormatFor(path))
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration.
func Parse(raw []byte, format Format) (*Config, error) {
	cfg := &Config{}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(raw, cfg)
	default:
		err = json.Unmarshal(raw, cfg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "parsing configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetType returns the configured type, hash:ip when empty.
func (s *SetConfig) SetType() ipset.SetType {
	if s.Type == "" {
		return ipset.SetHashIp
	}
	return ipset.SetType(s.Type)
}

// Validate checks the configuration against what the client can express.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sets))
	for i := range c.Sets {
		s := &c.Sets[i]
		if s.Name == "" {
			return errors.Errorf("set #%d has no name", i)
		}
		if len(s.Name) > ipset.MaxNameLength {
			return errors.Errorf("set %s: name longer than %d characters", s.Name, ipset.MaxNameLength)
		}
		if seen[s.Name] {
			return errors.Errorf("set %s: defined more than once", s.Name)
		}
		seen[s.Name] = true

		if !s.SetType().Known() {
			return errors.Errorf("set %s: unsupported type %q", s.Name, s.Type)
		}
		if s.Family != "" && s.Family != ipset.FamilyInet && s.Family != ipset.FamilyInet6 {
			return errors.Errorf("set %s: unknown family %q", s.Name, s.Family)
		}
		for _, e := range s.Entries {
			if e.Value == "" {
				return errors.Errorf("set %s: entry without value", s.Name)
			}
			if e.Comment != "" && !s.Comment {
				return errors.Errorf("set %s: entry %s has a comment but the set has no comment support", s.Name, e.Value)
			}
			if e.Timeout != nil && s.Timeout == nil {
				return errors.Errorf("set %s: entry %s has a timeout but the set has none", s.Name, e.Value)
			}
		}
	}
	return nil
}

// CreateOptions translates the set definition into Create options.
// Creation is never exclusive.
func (s *SetConfig) CreateOptions() []ipset.SetOpt {
	opts := []ipset.SetOpt{
		ipset.OptSetType(s.SetType()),
		ipset.OptSetExclusive(false),
	}
	if s.Family != "" {
		opts = append(opts, ipset.OptSetFamily(s.Family))
	}
	if s.Counters {
		opts = append(opts, ipset.OptSetCounters())
	}
	if s.Comment {
		opts = append(opts, ipset.OptSetComment())
	}
	if s.Forceadd {
		opts = append(opts, ipset.OptSetForceadd())
	}
	if s.SKBInfo {
		opts = append(opts, ipset.OptSetSKBInfo())
	}
	if s.Timeout != nil {
		opts = append(opts, ipset.OptSetTimeout(*s.Timeout))
	}
	if s.Maxelem != 0 {
		opts = append(opts, ipset.OptSetMaxelem(s.Maxelem))
	}
	if s.Hashsize != 0 {
		opts = append(opts, ipset.OptSetHashsize(s.Hashsize))
	}
	return opts
}

// Options translates the entry into non exclusive Add options, so an
// existing entry gets its comment and timeout refreshed.
func (e *EntryConfig) Options() []ipset.EntryOpt {
	opts := []ipset.EntryOpt{ipset.OptExclusive(false)}
	if e.Comment != "" {
		opts = append(opts, ipset.OptComment(e.Comment))
	}
	if e.Timeout != nil {
		opts = append(opts, ipset.OptTimeout(*e.Timeout))
	}
	return opts
}
