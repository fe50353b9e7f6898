package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckoutCmd() *cobra.Command {
	var newBranch, force bool

	cmd := &cobra.Command{
		Use:   "checkout <branch|revision>",
		Short: "Switch branches or detach HEAD at a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			target := args[0]
			out := cmd.OutOrStdout()
			if newBranch {
				if err := r.CheckoutNewBranch(target); err != nil {
					return err
				}
				fmt.Fprintf(out, "switched to a new branch '%s'\n", target)
				return nil
			}

			if err := r.Checkout(target, force); err != nil {
				return err
			}
			if branch, _ := r.CurrentBranch(); branch != "" {
				fmt.Fprintf(out, "switched to branch '%s'\n", branch)
			} else {
				head, _ := r.HeadCommit()
				fmt.Fprintf(out, "HEAD is now at %s (detached)\n", head.Short())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&newBranch, "branch", "b", false, "create the branch at HEAD and switch to it")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "discard staged and unstaged changes")
	return cmd
}
