package review

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stack-auth/blacksmith/internal/workspace"
)

func newTestService(t *testing.T, targets ...string) (*Service, *workspace.Store) {
	t.Helper()
	if len(targets) == 0 {
		targets = []string{"t1"}
	}
	store, err := workspace.NewStore(t.TempDir(), targets, zap.NewNop())
	require.NoError(t, err)
	svc, err := NewService(store, zap.NewNop())
	require.NoError(t, err)
	return svc, store
}

// stage writes a file in the target and stages it, simulating the state a
// regeneration run leaves behind.
func stage(t *testing.T, store *workspace.Store, targetID, path, content string) {
	t.Helper()
	ctx := context.Background()
	ws, err := store.Target(targetID)
	require.NoError(t, err)
	require.NoError(t, ws.WriteFile(ctx, path, content))
	require.NoError(t, ws.StageAll(ctx))
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("commits staged changes as a checkpoint", func(t *testing.T) {
		svc, store := newTestService(t)
		stage(t, store, "t1", "gen.ts", "export {}")

		result, err := svc.Approve(ctx, "t1", "looks good")
		require.NoError(t, err)
		assert.True(t, result.Committed)
		assert.NotEmpty(t, result.CheckpointID)

		status, err := svc.Status(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, status.HasStagedChanges)
	})

	t.Run("nothing staged succeeds without committing", func(t *testing.T) {
		svc, _ := newTestService(t)

		result, err := svc.Approve(ctx, "t1", "")
		require.NoError(t, err)
		assert.False(t, result.Committed)
		assert.Empty(t, result.CheckpointID)
	})

	t.Run("commits only staged content", func(t *testing.T) {
		svc, store := newTestService(t)
		stage(t, store, "t1", "gen.ts", "staged")

		// An unstaged edit lands after staging; it was never reviewed and
		// must not be part of the checkpoint.
		ws, err := store.Target("t1")
		require.NoError(t, err)
		require.NoError(t, ws.WriteFile(ctx, "gen.ts", "unreviewed rewrite"))
		require.NoError(t, ws.WriteFile(ctx, "untracked.ts", "x"))

		result, err := svc.Approve(ctx, "t1", "")
		require.NoError(t, err)
		assert.True(t, result.Committed)

		files, err := ws.ReadFiles(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"gen.ts": "staged"}, files)
	})

	t.Run("unknown target", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Approve(ctx, "nope", "")
		assert.ErrorIs(t, err, workspace.ErrUnknownTarget)
	})

	t.Run("missing workspace directory", func(t *testing.T) {
		svc, store := newTestService(t)
		ws, err := store.Target("t1")
		require.NoError(t, err)
		require.NoError(t, os.RemoveAll(ws.Path()))

		_, err = svc.Approve(ctx, "t1", "")
		assert.ErrorIs(t, err, ErrWorkspaceNotFound)
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts staged changes to last checkpoint", func(t *testing.T) {
		svc, store := newTestService(t)
		stage(t, store, "t1", "keep.ts", "v1")
		_, err := svc.Approve(ctx, "t1", "v1")
		require.NoError(t, err)

		stage(t, store, "t1", "keep.ts", "v2")
		stage(t, store, "t1", "new.ts", "x")

		result, err := svc.Reject(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, result.Reverted)

		ws, err := store.Target("t1")
		require.NoError(t, err)
		files, err := ws.ReadFiles(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"keep.ts": "v1"}, files)
	})

	t.Run("nothing staged is a no-op", func(t *testing.T) {
		svc, store := newTestService(t)
		stage(t, store, "t1", "keep.ts", "v1")
		_, err := svc.Approve(ctx, "t1", "v1")
		require.NoError(t, err)

		result, err := svc.Reject(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, result.Reverted)

		// Repeating the call stays a no-op.
		result, err = svc.Reject(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, result.Reverted)

		ws, err := store.Target("t1")
		require.NoError(t, err)
		files, err := ws.ReadFiles(ctx)
		require.NoError(t, err)
		assert.Equal(t, "v1", files["keep.ts"])
	})

	t.Run("unknown target", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Reject(ctx, "nope")
		assert.ErrorIs(t, err, workspace.ErrUnknownTarget)
	})
}

func TestSaveFile(t *testing.T) {
	ctx := context.Background()

	t.Run("writes and stages the whole workspace", func(t *testing.T) {
		svc, store := newTestService(t)

		// A pre-existing unstaged file gets swept into the stage by the
		// save; staging is workspace-wide.
		ws, err := store.Target("t1")
		require.NoError(t, err)
		require.NoError(t, ws.WriteFile(ctx, "other.ts", "y"))

		require.NoError(t, svc.SaveFile(ctx, "t1", "src/edit.ts", "fixed"))

		status, err := svc.Status(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, status.HasStagedChanges)
		assert.Equal(t, workspace.FileAdded, status.Files["src/edit.ts"])
		assert.Equal(t, workspace.FileAdded, status.Files["other.ts"])
	})

	t.Run("saves into the specification workspace", func(t *testing.T) {
		svc, store := newTestService(t)
		require.NoError(t, svc.SaveFile(ctx, workspace.EnglishID, "spec.md", "# API"))

		files, err := store.English().ReadFiles(ctx)
		require.NoError(t, err)
		assert.Equal(t, "# API", files["spec.md"])
	})

	t.Run("traversal writes nothing", func(t *testing.T) {
		svc, store := newTestService(t)
		ws, err := store.Target("t1")
		require.NoError(t, err)

		err = svc.SaveFile(ctx, "t1", "../outside.txt", "x")
		assert.ErrorIs(t, err, workspace.ErrPathEscapesWorkspace)

		_, statErr := os.Stat(filepath.Join(filepath.Dir(ws.Path()), "outside.txt"))
		assert.True(t, os.IsNotExist(statErr))

		status, err := svc.Status(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, status.HasStagedChanges)
	})

	t.Run("unknown workspace", func(t *testing.T) {
		svc, _ := newTestService(t)
		err := svc.SaveFile(ctx, "nope", "a.txt", "x")
		assert.ErrorIs(t, err, workspace.ErrUnknownTarget)
	})
}

func TestListTargets(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, "ts", "py", "go")
	stage(t, store, "py", "gen.py", "pass")

	targets, err := svc.ListTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 3)

	assert.Equal(t, "ts", targets[0].ID)
	assert.Equal(t, "py", targets[1].ID)
	assert.Equal(t, "go", targets[2].ID)

	assert.False(t, targets[0].HasStagedChanges)
	assert.True(t, targets[1].HasStagedChanges)
	assert.False(t, targets[2].HasStagedChanges)
}
