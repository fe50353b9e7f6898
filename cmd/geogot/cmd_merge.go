package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/repo"
)

// mergeStrategy maps a --strategy value to a repo.MergeStrategy.
func mergeStrategy(name, policy string) (repo.MergeStrategy, error) {
	p, err := repo.ParseConflictPolicy(policy)
	if err != nil {
		return nil, err
	}
	switch name {
	case "", "three-way":
		return repo.ThreeWay{Policy: p}, nil
	case "ff-only":
		return repo.FastForward{}, nil
	case "rebase":
		return repo.Rebase{Policy: p}, nil
	default:
		return nil, fmt.Errorf("unknown merge strategy %q (want three-way, ff-only or rebase)", name)
	}
}

func newMergeCmd() *cobra.Command {
	var strategy, policy, message string

	cmd := &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge a branch into the current branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := mergeStrategy(strategy, policy)
			if err != nil {
				return err
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			res, err := r.Merge(repo.MergeOp{Branch: args[0], Comment: message}, s)
			return printMergeResult(cmd.OutOrStdout(), args[0], res, err)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "three-way", "three-way, ff-only or rebase")
	cmd.Flags().StringVar(&policy, "conflict", "fail", "conflict policy: fail, ours or theirs")
	cmd.Flags().StringVarP(&message, "message", "m", "", "merge commit message")
	return cmd
}

func printMergeResult(out io.Writer, branch string, res *repo.MergeResult, err error) error {
	if errors.Is(err, repo.ErrMergeConflict) && res != nil {
		fmt.Fprintf(out, "merging %s stopped: %d conflicting features\n", branch, len(res.Conflicts))
		for _, c := range res.Conflicts {
			fmt.Fprintf(out, "  ! %s\n", c.Path)
		}
		fmt.Fprintln(out, "nothing was written; retry with --conflict ours or --conflict theirs")
		return err
	}
	if err != nil {
		return err
	}

	switch {
	case res.UpToDate:
		fmt.Fprintln(out, "already up to date")
		return nil
	case res.FastForward:
		fmt.Fprintf(out, "fast-forward to %s\n", res.Commit.Short())
	case res.Replayed > 0:
		fmt.Fprintf(out, "rebased %d commits onto %s, now at %s\n", res.Replayed, branch, res.Commit.Short())
	default:
		fmt.Fprintf(out, "merged %s as %s\n", branch, res.Commit.Short())
	}
	for _, c := range res.Conflicts {
		fmt.Fprintf(out, "  resolved conflict %s\n", c.Path)
	}
	if err := diff.Format(out, res.Changes); err != nil {
		return err
	}
	fmt.Fprintln(out, diff.FormatSummary(diff.Summarize(res.Changes)))
	return nil
}
