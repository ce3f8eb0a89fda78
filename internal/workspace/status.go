package workspace

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
)

// FileState classifies one staged file.
type FileState string

const (
	FileAdded    FileState = "added"
	FileModified FileState = "modified"
	FileDeleted  FileState = "deleted"
	FileRenamed  FileState = "renamed"
	FileCopied   FileState = "copied"
	FileConflict FileState = "conflict"
)

// StagedStatus is a derived, read-only view of a workspace's stage. It is
// recomputed from the worktree on every call and never cached.
type StagedStatus struct {
	Files              map[string]FileState `json:"files"`
	HasStagedChanges   bool                 `json:"has_staged_changes"`
	HasUnstagedChanges bool                 `json:"has_unstaged_changes"`
}

// Paths returns the staged file paths in sorted order.
func (s StagedStatus) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Status computes the staged status view for the workspace.
func (w *Workspace) Status(ctx context.Context) (StagedStatus, error) {
	if err := ctx.Err(); err != nil {
		return StagedStatus{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	wt, err := w.repo.Worktree()
	if err != nil {
		return StagedStatus{}, fmt.Errorf("opening worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return StagedStatus{}, fmt.Errorf("reading status: %w", err)
	}

	view := StagedStatus{Files: make(map[string]FileState)}
	for path, st := range status {
		if state, ok := stagedState(st.Staging); ok {
			view.Files[path] = state
			view.HasStagedChanges = true
		}
		if st.Worktree != git.Unmodified {
			// Untracked files count as unstaged: they are changes not yet
			// marked for the next checkpoint.
			view.HasUnstagedChanges = true
		}
	}
	return view, nil
}

// stagedState maps a go-git staging code onto the review-facing file state.
// Unmodified and untracked entries are not part of the stage.
func stagedState(code git.StatusCode) (FileState, bool) {
	switch code {
	case git.Added:
		return FileAdded, true
	case git.Modified:
		return FileModified, true
	case git.Deleted:
		return FileDeleted, true
	case git.Renamed:
		return FileRenamed, true
	case git.Copied:
		return FileCopied, true
	case git.UpdatedButUnmerged:
		return FileConflict, true
	default:
		return "", false
	}
}

// hasStaged reports whether any entry in status is staged.
func hasStaged(status git.Status) bool {
	for _, st := range status {
		if _, ok := stagedState(st.Staging); ok {
			return true
		}
	}
	return false
}
