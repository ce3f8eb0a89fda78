package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStager struct {
	path   string
	staged atomic.Int32
}

func (f *fakeStager) Path() string { return f.path }

func (f *fakeStager) StageAll(context.Context) error {
	f.staged.Add(1)
	return nil
}

func newStartedWatcher(t *testing.T, debounce time.Duration) (*Watcher, *fakeStager) {
	t.Helper()
	stager := &fakeStager{path: t.TempDir()}

	w, err := New(stager, debounce, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, stager
}

func TestWatcher(t *testing.T) {
	t.Run("stages after an edit settles", func(t *testing.T) {
		_, stager := newStartedWatcher(t, 20*time.Millisecond)

		require.NoError(t, os.WriteFile(filepath.Join(stager.path, "spec.md"), []byte("v1"), 0o644))

		require.Eventually(t, func() bool {
			return stager.staged.Load() >= 1
		}, 5*time.Second, 5*time.Millisecond)
	})

	t.Run("a burst of edits stages once", func(t *testing.T) {
		_, stager := newStartedWatcher(t, 100*time.Millisecond)

		for i := 0; i < 5; i++ {
			require.NoError(t, os.WriteFile(filepath.Join(stager.path, "spec.md"), []byte{byte('0' + i)}, 0o644))
			time.Sleep(5 * time.Millisecond)
		}

		require.Eventually(t, func() bool {
			return stager.staged.Load() >= 1
		}, 5*time.Second, 5*time.Millisecond)

		// No further staging after the burst is flushed.
		time.Sleep(300 * time.Millisecond)
		assert.LessOrEqual(t, stager.staged.Load(), int32(2))
	})

	t.Run("picks up new subdirectories", func(t *testing.T) {
		_, stager := newStartedWatcher(t, 20*time.Millisecond)

		sub := filepath.Join(stager.path, "chapters")
		require.NoError(t, os.Mkdir(sub, 0o755))

		// Give the watcher a moment to register the new directory, then
		// edit below it.
		require.Eventually(t, func() bool {
			return stager.staged.Load() >= 1
		}, 5*time.Second, 5*time.Millisecond)

		before := stager.staged.Load()
		require.NoError(t, os.WriteFile(filepath.Join(sub, "intro.md"), []byte("x"), 0o644))

		require.Eventually(t, func() bool {
			return stager.staged.Load() > before
		}, 5*time.Second, 5*time.Millisecond)
	})

	t.Run("ignores git internals", func(t *testing.T) {
		w, _ := newStartedWatcher(t, 20*time.Millisecond)

		assert.True(t, w.ignored(filepath.Join("ws", ".git", "index")))
		assert.True(t, w.ignored(filepath.Join("ws", ".git")))
		assert.False(t, w.ignored(filepath.Join("ws", "spec.md")))
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		w, _ := newStartedWatcher(t, 20*time.Millisecond)
		w.Stop()
		w.Stop()
	})
}
