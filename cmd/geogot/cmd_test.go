package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/repo"
)

func chdirForTest(t *testing.T, dir string) func() {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%s): %v", dir, err)
	}
	return func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore cwd %s: %v", wd, err)
		}
	}
}

// runCmd executes cmd with args and returns its combined output.
func runCmd(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%s %s: %v\noutput:\n%s", cmd.Name(), strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Fatalf("output = %q, want to contain %q", got, want)
	}
}

func initCmdRepo(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	restore := chdirForTest(t, dir)
	t.Cleanup(restore)
	requireContains(t, runCmd(t, newInitCmd(), args...), "initialized empty geogot repository")
	return dir
}

func TestInsertAddCommitLog(t *testing.T) {
	initCmdRepo(t)

	requireContains(t, runCmd(t, newInsertCmd(), "parcels/1", "owner=Ada", "area=412.5",
		"--wkt", "POINT(4.89 52.37)", "--crs", "EPSG:4326"), "inserted parcels/1")

	status := runCmd(t, newStatusCmd())
	requireContains(t, status, "on main (no commits yet)")
	requireContains(t, status, "unstaged:")
	requireContains(t, status, "parcels/1")

	requireContains(t, runCmd(t, newAddCmd()), "staged 1 changes")
	requireContains(t, runCmd(t, newCommitCmd(), "-m", "first parcel"), "[main ")
	requireContains(t, runCmd(t, newStatusCmd()), "working tree clean")

	requireContains(t, runCmd(t, newLogCmd(), "--oneline"), "(HEAD -> main) first parcel")

	show := runCmd(t, newShowCmd(), "HEAD:parcels/1")
	requireContains(t, show, `owner = "Ada"`)
	requireContains(t, show, "area = 412.5")
	requireContains(t, show, "crs = EPSG:4326")
	requireContains(t, show, "geometry = POINT")

	requireContains(t, runCmd(t, newShowCmd()), "+++ b/parcels/1")

	ls := runCmd(t, newLsTreeCmd())
	requireContains(t, ls, "feature ")
	requireContains(t, ls, "parcels/1 [4.89 52.37 4.89 52.37] EPSG:4326")
	requireContains(t, runCmd(t, newLsTreeCmd(), "--debug"), "leaf size=1")
}

func TestDiffAndReset(t *testing.T) {
	initCmdRepo(t)
	runCmd(t, newInsertCmd(), "roads/1", "lanes=2")
	runCmd(t, newAddCmd())
	runCmd(t, newCommitCmd(), "-m", "road")

	runCmd(t, newInsertCmd(), "roads/1", "lanes=4")
	runCmd(t, newInsertCmd(), "roads/2", "lanes=1")
	requireContains(t, runCmd(t, newDiffCmd(), "--stat"), "1 added, 1 modified, 0 removed")
	requireContains(t, runCmd(t, newDiffCmd(), "--patch", "--prefix", "roads/1"), "+lanes = 4")

	runCmd(t, newAddCmd(), "roads/2")
	requireContains(t, runCmd(t, newDiffCmd(), "--staged", "--name-status"), "ADD")
	requireContains(t, runCmd(t, newUnstageCmd()), "unstaged 1 changes")

	requireContains(t, runCmd(t, newResetCmd(), "--hard"), "hard reset")
	requireContains(t, runCmd(t, newStatusCmd()), "working tree clean")
}

func TestBranchCheckoutMerge(t *testing.T) {
	initCmdRepo(t)
	runCmd(t, newInsertCmd(), "a", "v=1")
	runCmd(t, newAddCmd())
	runCmd(t, newCommitCmd(), "-m", "base")

	requireContains(t, runCmd(t, newBranchCmd(), "feature"), "created branch 'feature'")
	requireContains(t, runCmd(t, newCheckoutCmd(), "feature"), "switched to branch 'feature'")
	runCmd(t, newInsertCmd(), "b", "v=1")
	runCmd(t, newAddCmd())
	runCmd(t, newCommitCmd(), "-m", "feature work")
	runCmd(t, newCheckoutCmd(), "main")

	branches := runCmd(t, newBranchCmd())
	requireContains(t, branches, "  feature")
	requireContains(t, branches, "* main")

	requireContains(t, runCmd(t, newMergeCmd(), "feature"), "fast-forward to")
	requireContains(t, runCmd(t, newMergeCmd(), "feature"), "already up to date")

	runCmd(t, newTagCmd(), "v1")
	requireContains(t, runCmd(t, newTagCmd()), "v1")
	requireContains(t, runCmd(t, newReflogCmd()), "merge feature: fast-forward")

	r, err := repo.Open(".")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	head, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	requireContains(t, runCmd(t, newRevParseCmd(), "v1"), head.String())
}

func TestMergeConflictReportsAndFails(t *testing.T) {
	initCmdRepo(t)
	runCmd(t, newInsertCmd(), "a", "v=1")
	runCmd(t, newAddCmd())
	runCmd(t, newCommitCmd(), "-m", "base")
	runCmd(t, newCheckoutCmd(), "-b", "feature")
	runCmd(t, newInsertCmd(), "a", "v=2")
	runCmd(t, newAddCmd())
	runCmd(t, newCommitCmd(), "-m", "theirs")
	runCmd(t, newCheckoutCmd(), "main")
	runCmd(t, newInsertCmd(), "a", "v=3")
	runCmd(t, newAddCmd())
	runCmd(t, newCommitCmd(), "-m", "ours")

	var out bytes.Buffer
	cmd := newMergeCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"feature"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("merge succeeded despite a conflict:\n%s", out.String())
	}
	requireContains(t, out.String(), "  ! a")

	requireContains(t, runCmd(t, newMergeCmd(), "feature", "--conflict", "theirs"), "resolved conflict a")
	requireContains(t, runCmd(t, newShowCmd(), "HEAD:a"), "v = 2")
}

func TestBundleRoundTripAndGC(t *testing.T) {
	src := initCmdRepo(t, "--storage", "sqlite")
	runCmd(t, newInsertCmd(), "a", "v=1")
	runCmd(t, newAddCmd())
	runCmd(t, newCommitCmd(), "-m", "first")

	bundle := filepath.Join(t.TempDir(), "main.bundle")
	requireContains(t, runCmd(t, newBundleCmd(), "export", bundle), "1 commits, 1 trees, 1 features, 1 branches")
	requireContains(t, runCmd(t, newGcCmd(), "--dry-run"), "nothing to remove")

	dst := t.TempDir()
	restore := chdirForTest(t, dst)
	defer restore()
	runCmd(t, newInitCmd())
	requireContains(t, runCmd(t, newBundleCmd(), "import", bundle, "--remote", "origin"), "imported 3 objects (3 new)")
	requireContains(t, runCmd(t, newMergeCmd(), "origin/main"), "fast-forward")
	requireContains(t, runCmd(t, newShowCmd(), "HEAD:a"), "v = 1")

	heads := strings.TrimSpace(runCmd(t, newBundleCmd(), "heads"))
	requireContains(t, heads, "refs/remotes/origin/main:")
	again := filepath.Join(t.TempDir(), "again.bundle")
	requireContains(t, runCmd(t, newBundleCmd(), "export", again, "--have-list", heads),
		"0 commits, 0 trees, 0 features, 1 branches")

	runCmd(t, newRemoteCmd(), "add", "upstream", src)
	requireContains(t, runCmd(t, newRemoteCmd()), "upstream\t"+src)
	requireContains(t, runCmd(t, newFetchCmd(), "upstream"), "fetched 0 new objects from upstream")
}
