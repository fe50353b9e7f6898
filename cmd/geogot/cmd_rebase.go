package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/repo"
)

func newRebaseCmd() *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:   "rebase <branch>",
		Short: "Replay local commits on top of a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := repo.ParseConflictPolicy(policy)
			if err != nil {
				return err
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			res, err := r.Merge(repo.MergeOp{Branch: args[0]}, repo.Rebase{Policy: p})
			return printMergeResult(cmd.OutOrStdout(), args[0], res, err)
		},
	}

	cmd.Flags().StringVar(&policy, "conflict", "fail", "conflict policy: fail, ours or theirs")
	return cmd
}
