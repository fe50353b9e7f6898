package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/revtree"
)

func newLsTreeCmd() *cobra.Command {
	var staged, work, debug bool
	var depth int
	var prefixes []string

	cmd := &cobra.Command{
		Use:   "ls-tree [revision]",
		Short: "List the features of a tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			var treeID object.ID
			switch {
			case staged:
				treeID, err = r.StageTree()
			case work:
				treeID, err = r.WorkTree()
			case len(args) == 1:
				treeID, err = revisionTree(r, args[0])
			default:
				treeID, err = r.HeadTree()
			}
			if err != nil {
				return err
			}

			t, err := revtree.Load(r.Source(), treeID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if debug {
				return t.Dump(out, depth)
			}
			for ref, err := range t.Iterate(prefixFilter(prefixes)) {
				if err != nil {
					return err
				}
				line := fmt.Sprintf("%s %s %s", ref.Type, ref.ID, ref.Name)
				if ref.Bounds != nil {
					b := ref.Bounds
					line += fmt.Sprintf(" [%g %g %g %g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
				}
				if ref.CRS != "" {
					line += " " + ref.CRS
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "list the staged tree")
	cmd.Flags().BoolVar(&work, "work", false, "list the working tree")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the bucket structure instead of the entries")
	cmd.Flags().IntVar(&depth, "depth", -1, "with --debug, expand buckets down to this depth")
	cmd.Flags().StringSliceVar(&prefixes, "prefix", nil, "only features with these name prefixes")
	return cmd
}
