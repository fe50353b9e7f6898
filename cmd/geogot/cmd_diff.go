package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/repo"
)

// revisionTree resolves rev to a commit and returns its tree.
func revisionTree(r *repo.Repo, rev string) (object.ID, error) {
	id, err := r.ResolveRevision(rev)
	if err != nil {
		return object.NullID, err
	}
	c, err := r.GetCommit(id)
	if err != nil {
		return object.NullID, err
	}
	return c.TreeID, nil
}

func newDiffCmd() *cobra.Command {
	var staged, nameStatus, stat, patch bool
	var prefixes []string

	cmd := &cobra.Command{
		Use:   "diff [old-revision [new-revision]]",
		Short: "Show feature changes between trees",
		Long: `Without revisions, compare the staged tree with the working tree
(--staged: HEAD with the staged tree). One revision compares it with the
working tree; two revisions compare their trees.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			var oldTree, newTree object.ID
			switch len(args) {
			case 0:
				if staged {
					oldTree, err = r.HeadTree()
					if err == nil {
						newTree, err = r.StageTree()
					}
				} else {
					oldTree, err = r.StageTree()
					if err == nil {
						newTree, err = r.WorkTree()
					}
				}
			case 1:
				oldTree, err = revisionTree(r, args[0])
				if err == nil {
					newTree, err = r.WorkTree()
				}
			case 2:
				oldTree, err = revisionTree(r, args[0])
				if err == nil {
					newTree, err = revisionTree(r, args[1])
				}
			}
			if err != nil {
				return err
			}

			changes, err := diff.Collect(r.Source(), oldTree, newTree, prefixFilter(prefixes))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case stat:
				fmt.Fprintln(out, diff.FormatSummary(diff.Summarize(changes)))
				return nil
			case nameStatus:
				return diff.FormatNameStatus(out, changes)
			case patch:
				return diff.FormatPatch(out, changes, r.ReadFeature)
			default:
				return diff.Format(out, changes)
			}
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "compare HEAD with the staged tree")
	cmd.Flags().BoolVar(&nameStatus, "name-status", false, "print change type, ids and name")
	cmd.Flags().BoolVar(&stat, "stat", false, "print change counts only")
	cmd.Flags().BoolVarP(&patch, "patch", "p", false, "print property-level patches")
	cmd.Flags().StringSliceVar(&prefixes, "prefix", nil, "only features with these name prefixes")
	return cmd
}
