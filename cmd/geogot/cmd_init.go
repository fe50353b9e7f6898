package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/repo"
)

func newInitCmd() *cobra.Command {
	var storage, branch string
	var noCompress bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty geogot repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			r, err := repo.Init(abs, repo.InitOptions{
				Storage:  storage,
				Compress: !noCompress,
				Branch:   branch,
			}, repo.WithLogger(newLogger()))
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty geogot repository in %s (%s storage)\n",
				r.Dir+string(filepath.Separator), r.Config.Core.Storage)
			return nil
		},
	}

	cmd.Flags().StringVar(&storage, "storage", repo.StorageLoose, "object storage backend: loose or sqlite")
	cmd.Flags().StringVarP(&branch, "initial-branch", "b", repo.DefaultBranch, "name of the initial branch")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "store loose objects uncompressed")
	return cmd
}
