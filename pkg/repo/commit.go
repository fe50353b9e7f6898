package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
)

// Commit records the staged tree as a new commit on the current branch (or
// on HEAD itself when detached) and returns its id.
//
//  1. Compare the staged tree with HEAD's tree; equal means nothing to commit.
//  2. Write a commit whose only parent is the current head (none on an
//     unborn branch).
//  3. Move the branch ref with compare-and-swap against the old head.
func (r *Repo) Commit(message, author string) (object.ID, error) {
	if strings.TrimSpace(message) == "" {
		return object.NullID, fmt.Errorf("commit: empty message")
	}
	if author == "" {
		author = r.Config.Identity()
	}

	head, err := r.HeadCommit()
	if err != nil {
		return object.NullID, fmt.Errorf("commit: %w", err)
	}
	headTree, err := r.commitTree(head)
	if err != nil {
		return object.NullID, fmt.Errorf("commit: %w", err)
	}
	stageTree, err := r.StageTree()
	if err != nil {
		return object.NullID, fmt.Errorf("commit: %w", err)
	}
	same, err := r.sameTree(headTree, stageTree)
	if err != nil {
		return object.NullID, fmt.Errorf("commit: %w", err)
	}
	if same {
		return object.NullID, fmt.Errorf("commit: %w", ErrNothingToCommit)
	}

	var parents []object.ID
	if !head.IsNull() {
		parents = []object.ID{head}
	}
	c := &object.Commit{
		TreeID:    stageTree,
		Parents:   parents,
		Author:    author,
		Committer: author,
		Timestamp: r.now().UnixMilli(),
		Message:   message,
	}
	id, err := r.WriteCommit(c)
	if err != nil {
		return object.NullID, fmt.Errorf("commit: %w", err)
	}
	if err := r.moveHead(id, head, "commit: "+firstLine(message)); err != nil {
		return object.NullID, fmt.Errorf("commit: %w", err)
	}
	r.log.Infow("committed", "commit", id.Short(), "tree", stageTree.Short(), "parents", len(parents))
	return id, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
