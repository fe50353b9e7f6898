package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odvcencio/geogot/pkg/repo"
)

const version = "geogot 0.1.0-dev"

// verbose switches the CLI logger to development output at debug level.
var verbose bool

func main() {
	root := &cobra.Command{
		Use:           "geogot",
		Short:         "Version control for feature collections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log repository operations to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newInsertCmd())
	root.AddCommand(newRmCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newUnstageCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newLsTreeCmd())
	root.AddCommand(newRevParseCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newTagCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newRebaseCmd())
	root.AddCommand(newRemoteCmd())
	root.AddCommand(newBundleCmd())
	root.AddCommand(newFetchCmd())
	root.AddCommand(newPullCmd())
	root.AddCommand(newReflogCmd())
	root.AddCommand(newGcCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// newLogger builds the CLI logger: development output with --verbose,
// otherwise JSON at warn level.
func newLogger() *zap.SugaredLogger {
	if verbose {
		return zap.Must(zap.NewDevelopment()).Sugar()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// openRepo opens the repository containing the working directory.
func openRepo() (*repo.Repo, error) {
	return repo.Open(".", repo.WithLogger(newLogger()))
}

func shortID(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
