package workspace

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// EnglishID is the identifier of the specification workspace. It shares the
// workspace mechanics with targets but is not itself a generation target.
const EnglishID = "english"

// ErrUnknownTarget is returned for identifiers outside the configured set.
var ErrUnknownTarget = errors.New("unknown target")

// Store holds the fixed set of workspaces: one per configured target plus
// the specification workspace. The set is built once at startup and never
// changes at runtime.
type Store struct {
	root    string
	english *Workspace
	targets map[string]*Workspace
	order   []string
}

// NewStore opens (creating as needed) the specification workspace and one
// workspace per target id under root. Target order is preserved: it fixes
// the processing order of every update run.
func NewStore(root string, targetIDs []string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(targetIDs) == 0 {
		return nil, errors.New("at least one target is required")
	}

	english, err := Open(EnglishID, filepath.Join(root, EnglishID), logger)
	if err != nil {
		return nil, fmt.Errorf("opening specification workspace: %w", err)
	}

	s := &Store{
		root:    root,
		english: english,
		targets: make(map[string]*Workspace, len(targetIDs)),
		order:   make([]string, 0, len(targetIDs)),
	}
	for _, id := range targetIDs {
		if id == EnglishID {
			return nil, fmt.Errorf("target id %q is reserved for the specification workspace", EnglishID)
		}
		if _, dup := s.targets[id]; dup {
			return nil, fmt.Errorf("duplicate target id %q", id)
		}
		ws, err := Open(id, filepath.Join(root, id), logger)
		if err != nil {
			return nil, fmt.Errorf("opening target workspace %s: %w", id, err)
		}
		s.targets[id] = ws
		s.order = append(s.order, id)
	}
	return s, nil
}

// English returns the specification workspace.
func (s *Store) English() *Workspace { return s.english }

// Target returns the workspace for a target id.
func (s *Store) Target(id string) (*Workspace, error) {
	ws, ok := s.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	return ws, nil
}

// Get resolves either a target id or the specification id.
func (s *Store) Get(id string) (*Workspace, error) {
	if id == EnglishID {
		return s.english, nil
	}
	return s.Target(id)
}

// TargetIDs returns the configured target ids in declaration order.
func (s *Store) TargetIDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Targets returns the target workspaces in declaration order.
func (s *Store) Targets() []*Workspace {
	out := make([]*Workspace, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.targets[id])
	}
	return out
}
