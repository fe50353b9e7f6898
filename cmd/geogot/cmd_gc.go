package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGcCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete objects no ref can reach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			summary, err := r.GC(dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if summary.Removed == 0 {
				fmt.Fprintf(out, "nothing to remove (%d reachable objects)\n", summary.Reachable)
				return nil
			}
			if dryRun {
				for _, id := range summary.RemovedIDs {
					fmt.Fprintf(out, "would remove %s\n", id)
				}
				fmt.Fprintf(out, "would remove %d objects, keeping %d\n", summary.Removed, summary.Reachable)
				return nil
			}
			fmt.Fprintf(out, "removed %d objects, kept %d\n", summary.Removed, summary.Reachable)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list unreachable objects without deleting them")
	return cmd
}
