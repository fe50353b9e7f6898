package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRevParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rev-parse <revision>...",
		Short: "Print the full ids revisions name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			for _, rev := range args {
				id, err := r.ResolveRevision(rev)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
