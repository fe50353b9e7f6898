package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage remotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			names := make([]string, 0, len(r.Config.Remotes))
			for name := range r.Config.Remotes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, r.Config.Remotes[name].Path)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <path>",
		Short: "Add or update a remote repository on the local filesystem",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[1])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.SetRemote(args[0], path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remote %s -> %s\n", args[0], path)
			return nil
		},
	})
	return cmd
}
