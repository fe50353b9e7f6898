package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/object"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int
	var prefixes []string

	cmd := &cobra.Command{
		Use:   "log [revision]",
		Short: "Show commit history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			rev := "HEAD"
			if len(args) == 1 {
				rev = args[0]
			}
			start, err := r.ResolveRevision(rev)
			if err != nil {
				return err
			}
			head, _ := r.HeadCommit()
			branch, _ := r.CurrentBranch()
			out := cmd.OutOrStdout()

			if len(prefixes) > 0 {
				entries, err := r.LogFeatures(start, limit, prefixFilter(prefixes))
				if err != nil {
					return err
				}
				for _, e := range entries {
					printCommit(out, e.Commit, buildDecoration(e.Commit.ID, head, branch), oneline)
					if !oneline {
						if err := diff.Format(out, e.Changes); err != nil {
							return err
						}
						fmt.Fprintln(out)
					}
				}
				return nil
			}

			commits, err := r.Log(start, limit)
			if err != nil {
				return err
			}
			if len(commits) == 0 {
				fmt.Fprintln(out, "no commits yet")
				return nil
			}
			for _, c := range commits {
				printCommit(out, c, buildDecoration(c.ID, head, branch), oneline)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits to show")
	cmd.Flags().StringSliceVar(&prefixes, "prefix", nil, "only commits that changed features with these name prefixes")
	return cmd
}

func printCommit(out io.Writer, c *object.Commit, decoration string, oneline bool) {
	if oneline {
		if decoration != "" {
			fmt.Fprintf(out, "%s %s %s\n", c.ID.Short(), decoration, firstLine(c.Message))
		} else {
			fmt.Fprintf(out, "%s %s\n", c.ID.Short(), firstLine(c.Message))
		}
		return
	}
	if decoration != "" {
		fmt.Fprintf(out, "commit %s %s\n", c.ID, decoration)
	} else {
		fmt.Fprintf(out, "commit %s\n", c.ID)
	}
	if len(c.Parents) > 1 {
		parents := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			parents[i] = p.Short()
		}
		fmt.Fprintf(out, "Merge:  %s\n", strings.Join(parents, " "))
	}
	fmt.Fprintf(out, "Author: %s\n", c.Author)
	fmt.Fprintf(out, "Date:   %s\n", time.UnixMilli(c.Timestamp).Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out)
	for _, line := range strings.Split(c.Message, "\n") {
		fmt.Fprintf(out, "    %s\n", line)
	}
	fmt.Fprintln(out)
}

// buildDecoration returns "(HEAD -> main)" for the current head commit and
// "" otherwise.
func buildDecoration(id, head object.ID, branch string) string {
	if id != head {
		return ""
	}
	if branch != "" {
		return "(HEAD -> " + branch + ")"
	}
	return "(HEAD)"
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
