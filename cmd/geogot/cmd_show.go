package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/object"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [revision[:feature]]",
		Short: "Show a commit and its changes, or one feature",
		Long: `Show a commit with the property-level patch against its first parent.
With "revision:name", print the named feature as stored in that commit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			target := "HEAD"
			if len(args) == 1 {
				target = args[0]
			}
			out := cmd.OutOrStdout()

			if rev, name, ok := strings.Cut(target, ":"); ok {
				if rev == "" {
					rev = "HEAD"
				}
				tree, err := revisionTree(r, rev)
				if err != nil {
					return err
				}
				f, ref, err := r.GetFeature(tree, name)
				if err != nil {
					return fmt.Errorf("show %s: %w", target, err)
				}
				fmt.Fprintf(out, "feature %s %s\n", ref.ID, ref.Name)
				if ref.CRS != "" {
					fmt.Fprintf(out, "crs = %s\n", ref.CRS)
				}
				fmt.Fprint(out, f.String())
				return nil
			}

			id, err := r.ResolveRevision(target)
			if err != nil {
				return err
			}
			c, err := r.GetCommit(id)
			if err != nil {
				return err
			}
			head, _ := r.HeadCommit()
			branch, _ := r.CurrentBranch()
			printCommit(out, c, buildDecoration(c.ID, head, branch), false)

			// A root commit is compared with the empty tree.
			parentTree := object.NullID
			if !c.IsRoot() {
				if parentTree, err = revisionTree(r, c.FirstParent().String()); err != nil {
					return err
				}
			}
			changes, err := diff.Collect(r.Source(), parentTree, c.TreeID, nil)
			if err != nil {
				return err
			}
			return diff.FormatPatch(out, changes, r.ReadFeature)
		},
	}
}
