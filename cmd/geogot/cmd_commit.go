package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message, author string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record staged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			id, err := r.Commit(message, author)
			if err != nil {
				return err
			}
			branch, _ := r.CurrentBranch()
			if branch == "" {
				branch = "detached HEAD"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, id.Short(), firstLine(message))
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "override the configured author")
	return cmd
}
