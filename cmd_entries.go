package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/delciotorres/pyroute2/ipset"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func addEntryFlags(fs *pflag.FlagSet, withData bool) {
	fs.Bool("exist", false, "Don't fail if the entry already exists or is missing.")
	fs.String("etype", "", "Entry components, e.g. net,iface. Looked up from the set when empty.")
	if !withData {
		return
	}
	fs.String("comment", "", "Entry comment.")
	fs.Uint32("timeout", 0, "Entry timeout in seconds.")
	fs.Bool("nomatch", false, "Exclude the entry from matches.")
	fs.Uint64("packets", 0, "Initial packet counter.")
	fs.Uint64("bytes", 0, "Initial byte counter.")
	fs.String("skbmark", "", "Packet mark to set on match, as MARK[/MASK].")
	fs.String("skbprio", "", "Traffic control class to set on match, as MAJOR:MINOR (hex).")
	fs.Uint16("skbqueue", 0, "Hardware queue to set on match.")
}

func parseSKBMark(s string) (mark, mask uint32, err error) {
	markStr, maskStr, hasMask := strings.Cut(s, "/")
	m, err := strconv.ParseUint(markStr, 0, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "skbmark %s", s)
	}
	mask = 0xffffffff
	if hasMask {
		v, err := strconv.ParseUint(maskStr, 0, 32)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "skbmark mask %s", s)
		}
		mask = uint32(v)
	}
	return uint32(m), mask, nil
}

func parseSKBPrio(s string) (major, minor uint16, err error) {
	majStr, minStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, errors.Errorf("skbprio %s: expected MAJOR:MINOR", s)
	}
	maj, err := strconv.ParseUint(majStr, 16, 16)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "skbprio %s", s)
	}
	mn, err := strconv.ParseUint(minStr, 16, 16)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "skbprio %s", s)
	}
	return uint16(maj), uint16(mn), nil
}

// entryOptions reads the flags registered by addEntryFlags.
func entryOptions(fs *pflag.FlagSet) ([]ipset.EntryOpt, error) {
	var opts []ipset.EntryOpt
	if exist, _ := fs.GetBool("exist"); exist {
		opts = append(opts, ipset.OptExclusive(false))
	}
	if etype, _ := fs.GetString("etype"); etype != "" {
		opts = append(opts, ipset.OptEntryType(etype))
	}
	if fs.Lookup("comment") == nil {
		return opts, nil
	}
	if comment, _ := fs.GetString("comment"); comment != "" {
		opts = append(opts, ipset.OptComment(comment))
	}
	if fs.Changed("timeout") {
		v, _ := fs.GetUint32("timeout")
		opts = append(opts, ipset.OptTimeout(v))
	}
	if nomatch, _ := fs.GetBool("nomatch"); nomatch {
		opts = append(opts, ipset.OptNomatch())
	}
	if fs.Changed("packets") {
		v, _ := fs.GetUint64("packets")
		opts = append(opts, ipset.OptPackets(v))
	}
	if fs.Changed("bytes") {
		v, _ := fs.GetUint64("bytes")
		opts = append(opts, ipset.OptBytes(v))
	}
	if v, _ := fs.GetString("skbmark"); v != "" {
		mark, mask, err := parseSKBMark(v)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ipset.OptSKBMark(mark, mask))
	}
	if v, _ := fs.GetString("skbprio"); v != "" {
		major, minor, err := parseSKBPrio(v)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ipset.OptSKBPrio(major, minor))
	}
	if fs.Changed("skbqueue") {
		v, _ := fs.GetUint16("skbqueue")
		opts = append(opts, ipset.OptSKBQueue(v))
	}
	return opts, nil
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add NAME ENTRY",
		Short: "Add an entry to a set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := entryOptions(cmd.Flags())
			if err != nil {
				return err
			}
			return withClient(func(c *ipset.Client) error {
				return c.Add(args[0], args[1], opts...)
			})
		},
	}
	addEntryFlags(cmd.Flags(), true)
	return cmd
}

func newDelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "del NAME ENTRY",
		Short: "Delete an entry from a set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := entryOptions(cmd.Flags())
			if err != nil {
				return err
			}
			return withClient(func(c *ipset.Client) error {
				return c.Delete(args[0], args[1], opts...)
			})
		},
	}
	addEntryFlags(cmd.Flags(), false)
	return cmd
}

// errNotInSet makes "test" exit with a failure status, as ipset(8) does.
var errNotInSet = errors.New("entry is NOT in set")

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test NAME ENTRY",
		Short: "Test whether an entry is in a set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := entryOptions(cmd.Flags())
			if err != nil {
				return err
			}
			return withClient(func(c *ipset.Client) error {
				found, err := c.Test(args[0], args[1], opts...)
				if err != nil {
					return err
				}
				if !found {
					return errNotInSet
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is in set %s.\n", args[1], args[0])
				return nil
			})
		},
	}
	addEntryFlags(cmd.Flags(), false)
	return cmd
}
