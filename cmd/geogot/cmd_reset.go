package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/repo"
)

func newResetCmd() *cobra.Command {
	var soft, hard bool

	cmd := &cobra.Command{
		Use:   "reset [revision]",
		Short: "Move the current branch and reset the staged tree",
		Long: `Move the current branch to revision (HEAD by default). --soft keeps
the staged and working trees, the default also resets the staged tree and
--hard resets both.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if soft && hard {
				return fmt.Errorf("--soft and --hard are mutually exclusive")
			}
			mode := repo.ResetMixed
			switch {
			case soft:
				mode = repo.ResetSoft
			case hard:
				mode = repo.ResetHard
			}
			rev := "HEAD"
			if len(args) == 1 {
				rev = args[0]
			}

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			id, err := r.Reset(rev, mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s (%s reset)\n", id.Short(), mode)
			return nil
		},
	}

	cmd.Flags().BoolVar(&soft, "soft", false, "move the branch only")
	cmd.Flags().BoolVar(&hard, "hard", false, "also reset the working tree")
	return cmd
}
