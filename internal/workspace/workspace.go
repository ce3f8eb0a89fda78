// Package workspace provides git-backed working trees for the specification
// and for every generation target.
//
// Each workspace is a directory under independent revision control. The
// update pipeline writes generated files into it, the review service stages,
// commits or reverts it, and the status view reports what is pending review.
// All revision-control mechanics go through go-git; callers only see the
// checkpoint contract: discard-unstaged, stage-all, commit-if-staged,
// reset-hard and the staged status view.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Commit author recorded on every checkpoint created by the daemon.
const (
	commitAuthorName  = "blacksmith"
	commitAuthorEmail = "blacksmith@stack-auth.com"
)

// baselineCommitMessage is the empty checkpoint created when a workspace is
// initialized, so reset and clean always have a HEAD to return to.
const baselineCommitMessage = "Initialize workspace"

// Workspace is one directory plus its revision history.
//
// A workspace is mutated by at most one logical actor at a time by protocol
// (the orchestrator during a run, the review service between runs). The mutex
// is a defensive guard on top of that sequencing, not the primary mechanism.
type Workspace struct {
	id     string
	path   string
	repo   *git.Repository
	mu     sync.Mutex
	logger *zap.Logger
}

// Open opens the workspace at path, creating the directory and initializing
// an empty history with a baseline checkpoint when either is absent.
func Open(id, path string, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if id == "" {
		return nil, errors.New("workspace id is required")
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace directory %s: %w", path, err)
	}

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = initRepository(path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening workspace %s: %w", id, err)
	}

	ws := &Workspace{
		id:     id,
		path:   path,
		repo:   repo,
		logger: logger.With(zap.String("workspace", id)),
	}
	return ws, nil
}

// initRepository initializes a fresh repository with a baseline commit.
// The baseline may be empty; it exists so that HardReset and Clean have a
// checkpoint to restore even before the first approval.
func initRepository(path string) (*git.Repository, error) {
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("initializing repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("staging initial contents: %w", err)
	}

	_, err = wt.Commit(baselineCommitMessage, &git.CommitOptions{
		Author:            signature(),
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating baseline commit: %w", err)
	}

	return repo, nil
}

func signature() *object.Signature {
	return &object.Signature{
		Name:  commitAuthorName,
		Email: commitAuthorEmail,
		When:  time.Now(),
	}
}

// ID returns the workspace identifier.
func (w *Workspace) ID() string { return w.id }

// Exists reports whether the workspace directory is present on disk.
func (w *Workspace) Exists() bool {
	info, err := os.Stat(w.path)
	return err == nil && info.IsDir()
}

// Ensure recreates the workspace directory and its history if either was
// removed out from under the daemon. A fresh history gets a new baseline
// checkpoint; an intact workspace is left untouched.
func (w *Workspace) Ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.path, 0o755); err != nil {
		return fmt.Errorf("creating workspace directory %s: %w", w.path, err)
	}

	repo, err := git.PlainOpen(w.path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = initRepository(w.path)
	}
	if err != nil {
		return fmt.Errorf("ensuring workspace %s: %w", w.id, err)
	}
	w.repo = repo
	return nil
}

// Path returns the workspace root directory.
func (w *Workspace) Path() string { return w.path }

// DiscardUnstaged restores every worktree file to its staged (or committed)
// content and removes untracked files. The stage itself is preserved, which
// is what distinguishes this from ResetHard: content a reviewer is looking
// at survives, edits nobody asked for do not.
func (w *Workspace) DiscardUnstaged(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}

	idx, err := w.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("reading index: %w", err)
	}

	for path, st := range status {
		if st.Worktree == git.Unmodified || st.Worktree == git.Untracked {
			continue
		}
		if err := w.restoreFromIndex(idx, path); err != nil {
			return fmt.Errorf("restoring %s: %w", path, err)
		}
	}

	// Untracked files are stray by definition here; remove them.
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning untracked files: %w", err)
	}

	return nil
}

// restoreFromIndex writes the index entry's blob content back into the
// worktree, or deletes the file when it is not in the index at all.
func (w *Workspace) restoreFromIndex(idx *index.Index, path string) error {
	entry, err := idx.Entry(path)
	if errors.Is(err, index.ErrEntryNotFound) {
		// Tracked nowhere: the file only exists in the worktree.
		if rmErr := os.Remove(filepath.Join(w.path, path)); rmErr != nil && !os.IsNotExist(rmErr) {
			return rmErr
		}
		return nil
	}
	if err != nil {
		return err
	}

	blob, err := w.repo.BlobObject(entry.Hash)
	if err != nil {
		return fmt.Errorf("reading blob: %w", err)
	}

	reader, err := blob.Reader()
	if err != nil {
		return fmt.Errorf("opening blob: %w", err)
	}
	defer reader.Close()

	abs := filepath.Join(w.path, path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return err
	}
	return nil
}

// ResetHard discards the stage and the worktree back to the last checkpoint
// and removes untracked files. Used by reject and by cancellation unwinding.
func (w *Workspace) ResetHard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("hard reset: %w", err)
	}

	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning untracked files: %w", err)
	}

	w.logger.Debug("workspace reset to last checkpoint")
	return nil
}

// StageAll stages every change in the workspace, additions and deletions
// included. Staging is always workspace-wide so that approve and reject
// operate on everything changed since the last checkpoint.
func (w *Workspace) StageAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	return nil
}

// CommitIfStaged creates a checkpoint from the stage. When nothing is staged
// it reports committed=false without error; an empty stage is a normal
// outcome, not a failure.
func (w *Workspace) CommitIfStaged(ctx context.Context, message string) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	wt, err := w.repo.Worktree()
	if err != nil {
		return false, "", fmt.Errorf("opening worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return false, "", fmt.Errorf("reading status: %w", err)
	}
	if !hasStaged(status) {
		return false, "", nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{Author: signature()})
	if err != nil {
		return false, "", fmt.Errorf("committing: %w", err)
	}

	w.logger.Info("checkpoint created",
		zap.String("checkpoint", hash.String()),
		zap.String("message", message))
	return true, hash.String(), nil
}

// HasStagedChanges reports whether anything is staged for the next checkpoint.
func (w *Workspace) HasStagedChanges(ctx context.Context) (bool, error) {
	st, err := w.Status(ctx)
	if err != nil {
		return false, err
	}
	return st.HasStagedChanges, nil
}

// ReadFiles returns the current worktree contents as a path to content map.
// Revision-control internals are excluded.
func (w *Workspace) ReadFiles(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make(map[string]string)
	err := filepath.WalkDir(w.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == git.GitDirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(w.path, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace %s: %w", w.id, err)
	}
	return files, nil
}

// WriteFile writes content at the given workspace-relative path, creating
// parent directories as needed. The path is validated against escaping the
// workspace root before anything is touched.
func (w *Workspace) WriteFile(ctx context.Context, rel, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := SafeJoin(w.path, rel)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// WriteFiles writes every entry of files verbatim into the workspace.
func (w *Workspace) WriteFiles(ctx context.Context, files map[string]string) error {
	for rel, content := range files {
		if err := w.WriteFile(ctx, rel, content); err != nil {
			return err
		}
	}
	return nil
}
