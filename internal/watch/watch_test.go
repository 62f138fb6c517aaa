package watch

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcher(t *testing.T) *Watcher {
	w, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func waitChanges(t *testing.T, w *Watcher, n int) []Change {
	t.Helper()
	var got []Change
	require.Eventually(t, func() bool {
		got = append(got, w.Changes()...)
		return len(got) >= n
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	other := filepath.Join(dir, "other.txt")
	for _, p := range []string{a, b, other} {
		require.NoError(t, os.WriteFile(p, []byte("x\n"), 0644))
	}

	w := newWatcher(t)
	require.NoError(t, w.Add(a))
	require.NoError(t, w.Add(b))
	require.NoError(t, w.Add(a))
	assert.Empty(t, w.Changes())

	require.NoError(t, os.WriteFile(other, []byte("y\n"), 0644))
	require.NoError(t, os.WriteFile(a, []byte("y\n"), 0644))
	got := waitChanges(t, w, 1)
	assert.Equal(t, []Change{{Path: a}}, got)
	// a write may come as several events
	time.Sleep(100 * time.Millisecond)
	w.Changes()

	require.NoError(t, os.Remove(b))
	got = waitChanges(t, w, 1)
	assert.Equal(t, []Change{{Path: b, Removed: true}}, got)
}

func TestWatcherRemove(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(a, []byte("x\n"), 0644))

	w := newWatcher(t)
	require.NoError(t, w.Add(a))
	w.Remove(a)
	w.Remove(a)
	require.NoError(t, os.WriteFile(a, []byte("y\n"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, w.Changes())
	assert.Empty(t, w.dirs)
}

func TestWatcherMissingDir(t *testing.T) {
	w := newWatcher(t)
	assert.Error(t, w.Add(filepath.Join(t.TempDir(), "nosuchdir", "a.txt")))
}
