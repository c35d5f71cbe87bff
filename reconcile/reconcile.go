// Package reconcile brings the kernel sets in line with a desired
// configuration, the way "ipset restore" does.
package reconcile

import (
	"fmt"

	"github.com/delciotorres/pyroute2/config"
	"github.com/delciotorres/pyroute2/ipset"
	"github.com/delciotorres/pyroute2/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Mode selects how a set is brought to its desired state.
type Mode int

const (
	// Sync edits the live set in place: missing entries are added, extra
	// ones deleted. Sets whose type or options changed are replaced.
	Sync Mode = iota
	// Replace fills a temporary set and swaps it with the live one.
	Replace
)

func (m Mode) String() string {
	if m == Replace {
		return "replace"
	}
	return "sync"
}

// ParseMode parses "sync" or "replace".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "sync":
		return Sync, nil
	case "replace":
		return Replace, nil
	}
	return Sync, errors.Errorf("unknown mode %q", s)
}

// Client is the subset of the ipset client the reconciler drives.
type Client interface {
	Create(name string, opts ...ipset.SetOpt) error
	Destroy(name string) error
	Rename(from, to string) error
	Swap(a, b string) error
	Add(name, value string, opts ...ipset.EntryOpt) error
	Delete(name, value string, opts ...ipset.EntryOpt) error
	Header(name string) (*ipset.SetInfo, error)
	List(name string) *ipset.SetIterator
}

// SetResult summarizes the changes made to one set.
type SetResult struct {
	Name     string
	Created  bool
	Replaced bool
	Added    int
	Updated  int
	Deleted  int
}

func (r SetResult) String() string {
	switch {
	case r.Created:
		return fmt.Sprintf("%s: created, %d entries", r.Name, r.Added)
	case r.Replaced:
		return fmt.Sprintf("%s: replaced, %d entries", r.Name, r.Added)
	}
	return fmt.Sprintf("%s: +%d ~%d -%d", r.Name, r.Added, r.Updated, r.Deleted)
}

// Apply reconciles every set of cfg. Sets not named in cfg are left alone.
// It stops at the first set that fails.
func Apply(c Client, cfg *config.Config, mode Mode) ([]SetResult, error) {
	results := make([]SetResult, 0, len(cfg.Sets))
	for i := range cfg.Sets {
		s := &cfg.Sets[i]
		var (
			res SetResult
			err error
		)
		if mode == Replace {
			res, err = replace(c, s)
		} else {
			res, err = syncSet(c, s)
		}
		if err != nil {
			return results, errors.Wrapf(err, "reconciling set %s", s.Name)
		}
		log.Info("ipset %s (%s)", res, mode)
		results = append(results, res)
	}
	return results, nil
}

type desiredEntry struct {
	entry *config.EntryConfig
	value string
}

// desired lists the entries the kernel will hold for s, keyed by the
// listed value.
func desired(s *config.SetConfig) ([]desiredEntry, map[string]*config.EntryConfig) {
	var order []desiredEntry
	index := make(map[string]*config.EntryConfig)
	for i := range s.Entries {
		e := &s.Entries[i]
		for _, v := range ipset.ExpandEntry(e.Value) {
			if _, dup := index[v]; !dup {
				order = append(order, desiredEntry{entry: e, value: v})
			}
			index[v] = e
		}
	}
	return order, index
}

func family(s *config.SetConfig) string {
	if s.Family == "" {
		return ipset.FamilyInet
	}
	return s.Family
}

func syncSet(c Client, s *config.SetConfig) (SetResult, error) {
	res := SetResult{Name: s.Name}

	info, err := c.Header(s.Name)
	switch {
	case ipset.IsKind(err, ipset.NotFound):
		if err := c.Create(s.Name, s.CreateOptions()...); err != nil {
			return res, err
		}
		res.Created = true
	case err != nil:
		return res, err
	case info.Type != string(s.SetType()) || info.Header.Family != family(s):
		log.Warning("ipset %s changed from %s %s, replacing it", s.Name, info.Type, info.Header.Family)
		return replace(c, s)
	default:
		err := c.Create(s.Name, s.CreateOptions()...)
		if ipset.IsKind(err, ipset.AlreadyExists) {
			log.Warning("ipset %s options changed, replacing it", s.Name)
			return replace(c, s)
		}
		if err != nil {
			return res, err
		}
	}

	current := map[string]ipset.Entry{}
	if !res.Created {
		sets, err := c.List(s.Name).All()
		if err != nil {
			return res, err
		}
		for _, set := range sets {
			for _, e := range set.Entries {
				current[e.Value] = e
			}
		}
	}

	order, index := desired(s)
	for _, d := range order {
		have, exists := current[d.value]
		if exists && have.Comment == d.entry.Comment && d.entry.Timeout == nil {
			continue
		}
		if err := c.Add(s.Name, d.value, d.entry.Options()...); err != nil {
			return res, err
		}
		if exists {
			res.Updated++
		} else {
			res.Added++
		}
	}
	for value := range current {
		if _, keep := index[value]; keep {
			continue
		}
		err := c.Delete(s.Name, value, ipset.OptExclusive(false))
		if err != nil {
			return res, err
		}
		res.Deleted++
	}
	return res, nil
}

// temporaryName returns a set name unlikely to be taken.
func temporaryName() string {
	return "tmp-" + uuid.New().String()[:18]
}

func replace(c Client, s *config.SetConfig) (SetResult, error) {
	res := SetResult{Name: s.Name}

	var live *ipset.SetInfo
	info, err := c.Header(s.Name)
	switch {
	case ipset.IsKind(err, ipset.NotFound):
	case err != nil:
		return res, err
	default:
		live = info
	}

	tmp := temporaryName()
	opts := append(s.CreateOptions(), ipset.OptSetExclusive(true))
	if err := c.Create(tmp, opts...); err != nil {
		return res, err
	}
	cleanup := func(cause error) (SetResult, error) {
		if err := c.Destroy(tmp); err != nil {
			log.Warning("could not destroy temporary set %s: %s", tmp, err)
		}
		return res, cause
	}

	order, _ := desired(s)
	for _, d := range order {
		if err := c.Add(tmp, d.value, d.entry.Options()...); err != nil {
			return cleanup(err)
		}
		res.Added++
	}

	switch {
	case live == nil:
		if err := c.Rename(tmp, s.Name); err != nil {
			return cleanup(err)
		}
		res.Created = true
		return res, nil
	case live.Type == string(s.SetType()) && live.Header.Family == family(s):
		if err := c.Swap(tmp, s.Name); err != nil {
			return cleanup(err)
		}
		res.Replaced = true
		return cleanup(nil)
	}

	// incompatible sets can't be swapped
	log.Warning("ipset %s is %s %s, destroying it before renaming %s", s.Name, live.Type, live.Header.Family, tmp)
	if err := c.Destroy(s.Name); err != nil {
		return cleanup(err)
	}
	if err := c.Rename(tmp, s.Name); err != nil {
		return cleanup(err)
	}
	res.Replaced = true
	return res, nil
}
