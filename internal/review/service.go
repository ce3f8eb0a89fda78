// Package review finalizes or discards the staged output of a target
// workspace: approve commits the staged diff as a new checkpoint, reject
// hard-reverts the workspace to its last checkpoint.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/stack-auth/blacksmith/internal/workspace"
)

// ErrWorkspaceNotFound is returned when a target is configured but its
// workspace directory does not exist on disk; the caller must run an update
// first.
var ErrWorkspaceNotFound = errors.New("workspace not found; run an update first")

// defaultApproveMessage is used when the reviewer supplies no message.
const defaultApproveMessage = "Approve generated changes"

var (
	approvals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blacksmith",
		Subsystem: "review",
		Name:      "approvals_total",
		Help:      "Approve calls that created a checkpoint.",
	})

	rejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blacksmith",
		Subsystem: "review",
		Name:      "rejections_total",
		Help:      "Reject calls that reverted staged changes.",
	})
)

// CommitResult is the outcome of an approve call. Committed is false when
// nothing was staged, which is a normal outcome rather than an error.
type CommitResult struct {
	Committed    bool   `json:"committed"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// RevertResult is the outcome of a reject call.
type RevertResult struct {
	Reverted bool `json:"reverted"`
}

// TargetStatus pairs a target id with its staged/unstaged booleans, for the
// target listing.
type TargetStatus struct {
	ID                 string `json:"id"`
	HasStagedChanges   bool   `json:"has_staged_changes"`
	HasUnstagedChanges bool   `json:"has_unstaged_changes"`
}

// Service exposes the per-target checkpoint lifecycle over the workspace
// store.
type Service struct {
	store  *workspace.Store
	logger *zap.Logger
}

// NewService creates a review service.
func NewService(store *workspace.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("workspace store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger.Named("review"),
	}, nil
}

// target resolves a target id and verifies its workspace exists on disk.
func (s *Service) target(id string) (*workspace.Workspace, error) {
	ws, err := s.store.Target(id)
	if err != nil {
		return nil, err
	}
	if !ws.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	return ws, nil
}

// Approve commits the staged changes of the target as a new checkpoint.
//
// Unstaged changes are discarded first: only staged content is ever
// approved, because unstaged edits were never part of the reviewed diff.
// With nothing staged the call reports Committed=false and succeeds.
func (s *Service) Approve(ctx context.Context, targetID, message string) (CommitResult, error) {
	ws, err := s.target(targetID)
	if err != nil {
		return CommitResult{}, err
	}

	if err := ws.DiscardUnstaged(ctx); err != nil {
		return CommitResult{}, fmt.Errorf("discarding unstaged changes: %w", err)
	}

	if message == "" {
		message = defaultApproveMessage
	}

	committed, checkpointID, err := ws.CommitIfStaged(ctx, message)
	if err != nil {
		return CommitResult{}, fmt.Errorf("approving %s: %w", targetID, err)
	}
	if !committed {
		return CommitResult{Committed: false}, nil
	}

	approvals.Inc()
	s.logger.Info("target approved",
		zap.String("target", targetID),
		zap.String("checkpoint", checkpointID))
	return CommitResult{Committed: true, CheckpointID: checkpointID}, nil
}

// Reject discards the staged changes of the target, restoring the workspace
// to its last checkpoint and removing untracked files. With nothing staged
// it reports Reverted=false and mutates nothing.
func (s *Service) Reject(ctx context.Context, targetID string) (RevertResult, error) {
	ws, err := s.target(targetID)
	if err != nil {
		return RevertResult{}, err
	}

	staged, err := ws.HasStagedChanges(ctx)
	if err != nil {
		return RevertResult{}, fmt.Errorf("checking staged status: %w", err)
	}
	if !staged {
		return RevertResult{Reverted: false}, nil
	}

	if err := ws.ResetHard(ctx); err != nil {
		return RevertResult{}, fmt.Errorf("rejecting %s: %w", targetID, err)
	}

	rejections.Inc()
	s.logger.Info("target rejected", zap.String("target", targetID))
	return RevertResult{Reverted: true}, nil
}

// SaveFile writes content at a workspace-relative path in the target or
// specification workspace and then stages the entire workspace. Staging is
// workspace-wide by design: approve and reject always operate on everything
// changed since the last checkpoint, never a file-level subset.
//
// The path is validated before any side effect; a traversal attempt writes
// nothing anywhere.
func (s *Service) SaveFile(ctx context.Context, id, relPath, content string) error {
	ws, err := s.store.Get(id)
	if err != nil {
		return err
	}

	if _, err := workspace.SafeJoin(ws.Path(), relPath); err != nil {
		return err
	}

	if err := ws.WriteFile(ctx, relPath, content); err != nil {
		return fmt.Errorf("saving %s in %s: %w", relPath, id, err)
	}
	if err := ws.StageAll(ctx); err != nil {
		return fmt.Errorf("staging %s after save: %w", id, err)
	}

	s.logger.Debug("file saved",
		zap.String("workspace", id),
		zap.String("path", relPath))
	return nil
}

// Status returns the freshly computed staged status of the target.
func (s *Service) Status(ctx context.Context, targetID string) (workspace.StagedStatus, error) {
	ws, err := s.target(targetID)
	if err != nil {
		return workspace.StagedStatus{}, err
	}
	return ws.Status(ctx)
}

// ListTargets returns every configured target in declaration order with its
// staged/unstaged booleans.
func (s *Service) ListTargets(ctx context.Context) ([]TargetStatus, error) {
	targets := s.store.Targets()
	out := make([]TargetStatus, 0, len(targets))
	for _, ws := range targets {
		st, err := ws.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("status for %s: %w", ws.ID(), err)
		}
		out = append(out, TargetStatus{
			ID:                 ws.ID(),
			HasStagedChanges:   st.HasStagedChanges,
			HasUnstagedChanges: st.HasUnstagedChanges,
		})
	}
	return out, nil
}
