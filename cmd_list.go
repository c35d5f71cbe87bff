package main

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/delciotorres/pyroute2/ipset"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func optUint32(v *uint32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func optUint64(v *uint64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(*v, 10)
}

func printTable(w io.Writer, s *ipset.SetInfo) {
	fmt.Fprintf(w, "Name: %s\nType: %s\nRevision: %d\nHeader:%s\nReferences: %d\nNumber of entries: %d\n",
		s.Name, s.Type, s.Revision, s.Header.String(), s.Header.References, s.Header.Elements)

	if len(s.Entries) == 0 {
		fmt.Fprintln(w)
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Entry", "Comment", "Timeout", "Packets", "Bytes"})
	table.SetBorder(false)
	for _, e := range s.Entries {
		value := e.Value
		if e.Nomatch {
			value += " nomatch"
		}
		table.Append([]string{value, e.Comment, optUint32(e.Timeout), optUint64(e.Packets), optUint64(e.Bytes)})
	}
	table.Render()
	fmt.Fprintln(w)
}

func newListCmd() *cobra.Command {
	var (
		output string
		raw    bool
		names  bool
	)
	cmd := &cobra.Command{
		Use:   "list [NAME]",
		Short: "List sets and their entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			w := cmd.OutOrStdout()

			return withClient(func(c *ipset.Client) error {
				if names {
					all, err := c.ListNames()
					if err != nil {
						return err
					}
					for _, n := range all {
						fmt.Fprintln(w, n)
					}
					return nil
				}

				it := c.List(name)
				defer it.Close()

				sets := &ipset.Sets{}
				for it.Next() {
					s := it.Set()
					switch {
					case raw:
						spew.Fdump(w, s.Raw)
					case output == "table":
						printTable(w, s)
					default:
						sets.Sets = append(sets.Sets, s)
					}
				}
				if err := it.Err(); err != nil {
					return err
				}
				if raw || output == "table" {
					return nil
				}

				switch output {
				case "save":
					fmt.Fprint(w, sets.Render(ipset.RenderSave))
				case "json":
					b, err := json.MarshalIndent(sets, "", "  ")
					if err != nil {
						return errors.Wrap(err, "encoding json")
					}
					fmt.Fprintf(w, "%s\n", b)
				case "xml":
					b, err := xml.MarshalIndent(sets, "", "  ")
					if err != nil {
						return errors.Wrap(err, "encoding xml")
					}
					fmt.Fprintf(w, "%s\n", b)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, save, json or xml.")
	cmd.Flags().BoolVar(&raw, "raw", false, "Dump the netlink attribute trees.")
	cmd.Flags().BoolVarP(&names, "name", "n", false, "List set names only.")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		switch output {
		case "table", "save", "json", "xml":
			return nil
		}
		return errors.Errorf("unknown output format %q", output)
	}
	return cmd
}
