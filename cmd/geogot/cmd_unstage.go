package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUnstageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unstage [prefix...]",
		Short: "Move staged changes back to the working tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			n, err := r.Unstage(prefixFilter(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unstaged %d changes\n", n)
			return nil
		},
	}
}
