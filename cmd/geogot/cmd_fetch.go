package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/object"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <remote> [branch...]",
		Short: "Copy branches from another repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			b, err := r.Fetch(args[0], args[1:]...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fetched %d new objects from %s\n", b.Written, args[0])
			for _, name := range sortedKeys(b.Branches) {
				fmt.Fprintf(out, "  %s %s/%s\n", b.Branches[name].Short(), args[0], name)
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]object.ID) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
