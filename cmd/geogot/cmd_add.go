package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/revtree"
)

// prefixFilter accepts everything when no prefixes are given.
func prefixFilter(prefixes []string) revtree.Filter {
	if len(prefixes) == 0 {
		return nil
	}
	return revtree.PrefixFilter(prefixes...)
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [prefix...]",
		Short: "Stage working tree changes",
		Long:  "Stage working tree changes. With prefixes, only features whose names start with one of them are staged.",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			n, err := r.Stage(prefixFilter(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staged %d changes\n", n)
			return nil
		},
	}
}
