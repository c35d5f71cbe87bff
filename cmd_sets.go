package main

import (
	"fmt"

	"github.com/delciotorres/pyroute2/ipset"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func addCreateFlags(fs *pflag.FlagSet) {
	fs.String("type", string(ipset.SetHashIp), "Set type.")
	fs.String("family", ipset.FamilyInet, "Address family (inet, inet6).")
	fs.Bool("exist", false, "Don't fail if an identical set already exists.")
	fs.Bool("counters", false, "Keep packet and byte counters per entry.")
	fs.Bool("comment", false, "Allow entry comments.")
	fs.Bool("forceadd", false, "Evict a random entry when the set is full.")
	fs.Bool("skbinfo", false, "Allow skb mark, priority and queue per entry.")
	fs.Uint32("timeout", 0, "Default entry timeout in seconds.")
	fs.Uint32("maxelem", 0, "Maximum number of entries.")
	fs.Uint32("hashsize", 0, "Initial hash size.")
	fs.Uint8("netmask", 0, "Store addresses masked to this prefix length.")
	fs.Uint8("revision", 0, "Force the type revision.")
}

// createOptions reads the flags registered by addCreateFlags.
func createOptions(fs *pflag.FlagSet) ([]ipset.SetOpt, error) {
	stype, err := fs.GetString("type")
	if err != nil {
		return nil, err
	}
	family, err := fs.GetString("family")
	if err != nil {
		return nil, err
	}
	exist, err := fs.GetBool("exist")
	if err != nil {
		return nil, err
	}
	opts := []ipset.SetOpt{
		ipset.OptSetType(ipset.SetType(stype)),
		ipset.OptSetFamily(family),
		ipset.OptSetExclusive(!exist),
	}

	toggles := map[string]func() ipset.SetOpt{
		"counters": ipset.OptSetCounters,
		"comment":  ipset.OptSetComment,
		"forceadd": ipset.OptSetForceadd,
		"skbinfo":  ipset.OptSetSKBInfo,
	}
	for name, opt := range toggles {
		if on, _ := fs.GetBool(name); on {
			opts = append(opts, opt())
		}
	}

	if fs.Changed("timeout") {
		v, _ := fs.GetUint32("timeout")
		opts = append(opts, ipset.OptSetTimeout(v))
	}
	if v, _ := fs.GetUint32("maxelem"); v != 0 {
		opts = append(opts, ipset.OptSetMaxelem(v))
	}
	if v, _ := fs.GetUint32("hashsize"); v != 0 {
		opts = append(opts, ipset.OptSetHashsize(v))
	}
	if v, _ := fs.GetUint8("netmask"); v != 0 {
		opts = append(opts, ipset.OptSetNetmask(v))
	}
	if fs.Changed("revision") {
		v, _ := fs.GetUint8("revision")
		opts = append(opts, ipset.OptSetRevision(v))
	}
	return opts, nil
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := createOptions(cmd.Flags())
			if err != nil {
				return err
			}
			return withClient(func(c *ipset.Client) error {
				return c.Create(args[0], opts...)
			})
		},
	}
	addCreateFlags(cmd.Flags())
	return cmd
}

func newDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy [NAME]",
		Short: "Destroy a set, or every set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *ipset.Client) error {
				if len(args) == 0 {
					return c.DestroyAll()
				}
				return c.Destroy(args[0])
			})
		},
	}
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush [NAME]",
		Short: "Remove the entries of a set, or of every set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withClient(func(c *ipset.Client) error {
				return c.Flush(name)
			})
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename FROM TO",
		Short: "Rename a set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *ipset.Client) error {
				return c.Rename(args[0], args[1])
			})
		},
	}
}

func newSwapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swap A B",
		Short: "Swap the contents of two sets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *ipset.Client) error {
				return c.Swap(args[0], args[1])
			})
		},
	}
}

func newProtocolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protocol",
		Short: "Show the kernel protocol version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *ipset.Client) error {
				version, minVersion, err := c.Protocol()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "protocol %d (min %d), client %d\n", version, minVersion, ipset.IPSET_PROTOCOL)
				return nil
			})
		},
	}
}
