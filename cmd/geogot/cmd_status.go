package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/diff"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staged and unstaged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			st, err := r.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case st.Branch == "":
				fmt.Fprintf(out, "HEAD detached at %s\n", st.Head.Short())
			case st.Head.IsNull():
				fmt.Fprintf(out, "on %s (no commits yet)\n", st.Branch)
			default:
				fmt.Fprintf(out, "on %s\n", st.Branch)
			}

			if len(st.Staged) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "staged:")
				if err := diff.Format(out, st.Staged); err != nil {
					return err
				}
			}
			if len(st.Unstaged) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "unstaged:")
				if err := diff.Format(out, st.Unstaged); err != nil {
					return err
				}
			}
			if st.Clean() {
				fmt.Fprintln(out, "nothing to commit, working tree clean")
			}
			return nil
		},
	}
}
