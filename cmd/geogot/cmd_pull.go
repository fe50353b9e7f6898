package main

import (
	"github.com/spf13/cobra"
)

func newPullCmd() *cobra.Command {
	var strategy, policy string

	cmd := &cobra.Command{
		Use:   "pull <remote> [branch]",
		Short: "Fetch a branch and merge it into the current branch",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := mergeStrategy(strategy, policy)
			if err != nil {
				return err
			}
			branch := ""
			if len(args) == 2 {
				branch = args[1]
			}

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			res, err := r.Pull(args[0], branch, s)
			return printMergeResult(cmd.OutOrStdout(), args[0], res, err)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "three-way", "three-way, ff-only or rebase")
	cmd.Flags().StringVar(&policy, "conflict", "fail", "conflict policy: fail, ours or theirs")
	return cmd
}
