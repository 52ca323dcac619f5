package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 3 * time.Second

func expectEvent(t *testing.T, w *Watcher, path string) {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok)
		assert.Equal(t, path, ev.Path)
	case <-time.After(eventTimeout):
		t.Fatalf("no event for %s", path)
	}
}

func expectNoEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	tracked := filepath.Join(dir, "notes.txt")
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(tracked, []byte("a\n"), 0644))

	w, err := New(tracked, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	t.Run("write is reported", func(t *testing.T) {
		require.NoError(t, os.WriteFile(tracked, []byte("b\n"), 0644))
		expectEvent(t, w, tracked)
	})

	t.Run("other files are ignored", func(t *testing.T) {
		require.NoError(t, os.WriteFile(other, []byte("x\n"), 0644))
		expectNoEvent(t, w)
	})

	t.Run("unchanged content is not reported", func(t *testing.T) {
		require.NoError(t, os.WriteFile(tracked, []byte("b\n"), 0644))
		expectNoEvent(t, w)
	})

	t.Run("save through rename is reported", func(t *testing.T) {
		tmp := filepath.Join(dir, ".notes.swp")
		require.NoError(t, os.WriteFile(tmp, []byte("c\n"), 0644))
		require.NoError(t, os.Rename(tmp, tracked))
		expectEvent(t, w, tracked)
	})

	t.Run("retarget", func(t *testing.T) {
		sub := filepath.Join(dir, "sub")
		require.NoError(t, os.Mkdir(sub, 0755))
		moved := filepath.Join(sub, "notes.txt")
		require.NoError(t, os.WriteFile(moved, []byte("c\n"), 0644))

		require.NoError(t, w.Retarget(moved))
		assert.Equal(t, moved, w.Path())

		require.NoError(t, os.WriteFile(moved, []byte("d\n"), 0644))
		expectEvent(t, w, moved)
	})
}

func TestWatcherClose(t *testing.T) {
	tracked := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(tracked, nil, 0644))

	w, err := New(tracked, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, ok := <-w.Events()
	assert.False(t, ok)
}
