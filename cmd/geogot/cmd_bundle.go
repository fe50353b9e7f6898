package main

import (
	"fmt"
	"os"

	"github.com/google/renameio"
	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/remote"
)

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export or import branches as a single file",
	}
	cmd.AddCommand(newBundleExportCmd(), newBundleImportCmd(), newBundleHeadsCmd())
	return cmd
}

func newBundleExportCmd() *cobra.Command {
	var have []string
	var haveList string
	var noCompress bool

	cmd := &cobra.Command{
		Use:   "export <file> [branch...]",
		Short: "Write branches and the objects they reach to a bundle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			haveIDs := make([]object.ID, 0, len(have))
			for _, rev := range have {
				id, err := r.ResolveRevision(rev)
				if err != nil {
					return err
				}
				haveIDs = append(haveIDs, id)
			}
			// Listed heads may be unknown here; the bundle writer skips those.
			heads, err := remote.ParseBranchList(haveList)
			if err != nil {
				return err
			}
			for _, id := range heads {
				haveIDs = append(haveIDs, id)
			}

			f, err := renameio.TempFile("", args[0])
			if err != nil {
				return fmt.Errorf("bundle export: %w", err)
			}
			defer f.Cleanup()
			stats, err := r.ExportBundle(f, args[1:], haveIDs, !noCompress)
			if err != nil {
				return err
			}
			if err := f.CloseAtomicallyReplace(); err != nil {
				return fmt.Errorf("bundle export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d commits, %d trees, %d features, %d branches\n",
				args[0], stats.Commits, stats.Trees, stats.Features, stats.Branches)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&have, "have", nil, "revisions the receiver already has")
	cmd.Flags().StringVar(&haveList, "have-list", "", "branch list printed by the receiver's 'bundle heads'")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "write an uncompressed stream")
	return cmd
}

func newBundleImportCmd() *cobra.Command {
	var remoteName string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a bundle's objects and record its branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("bundle import: %w", err)
			}
			defer f.Close()

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			b, err := r.ImportBundle(f, remoteName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d objects (%d new)\n", b.Stats.Objects(), b.Written)
			for _, name := range sortedKeys(b.Branches) {
				fmt.Fprintf(out, "  %s %s\n", b.Branches[name].Short(), name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&remoteName, "remote", "bundle", "record branches under refs/remotes/<remote>/")
	return cmd
}

func newBundleHeadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heads",
		Short: "Print the refs this repository holds, for a sender's --have-list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			list, err := r.HaveList()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), list)
			return nil
		},
	}
}
