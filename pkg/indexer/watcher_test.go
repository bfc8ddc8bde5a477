package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/compreg/pkg/util"
)

const watchTimeout = 5 * time.Second

func startWatcher(t *testing.T, dir string, exclude []string) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatchOptions{
		Roots:       []string{dir},
		ProjectRoot: dir,
		Exclude:     exclude,
		Debounce:    100 * time.Millisecond,
	}, util.NopLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func nextBatch(t *testing.T, w *Watcher) []string {
	t.Helper()
	select {
	case batch := <-w.Batches():
		return batch
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for change batch")
		return nil
	}
}

func TestWatcher_DebouncesIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, nil)

	card := filepath.Join(dir, "Card.tsx")
	button := filepath.Join(dir, "Button.tsx")
	require.NoError(t, os.WriteFile(card, []byte(cardSource), 0644))
	require.NoError(t, os.WriteFile(button, []byte(buttonSource), 0644))
	require.NoError(t, os.WriteFile(card, []byte(cardSource+"\n"), 0644))

	assert.Equal(t, []string{button, card}, nextBatch(t, w))

	select {
	case extra := <-w.Batches():
		t.Fatalf("unexpected second batch: %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_FiltersIneligibleAndExcluded(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, []string{"**/*.stories.*"})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Button.test.tsx"), []byte(buttonSource), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Button.stories.tsx"), []byte(buttonSource), 0644))
	button := filepath.Join(dir, "Button.tsx")
	require.NoError(t, os.WriteFile(button, []byte(buttonSource), 0644))

	assert.Equal(t, []string{button}, nextBatch(t, w))
}

func TestWatcher_RemovalIsImmediate(t *testing.T) {
	dir := t.TempDir()
	card := filepath.Join(dir, "Card.tsx")
	require.NoError(t, os.WriteFile(card, []byte(cardSource), 0644))

	w, err := NewWatcher(WatchOptions{
		Roots:       []string{dir},
		ProjectRoot: dir,
		Debounce:    time.Hour,
	}, util.NopLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.Remove(card))

	select {
	case removed := <-w.Removals():
		assert.Equal(t, card, removed)
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for removal")
	}
}

func TestWatcher_DirectoryMovedOutIsRemoved(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "molecules")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "Card.tsx"), []byte(cardSource), 0644))

	w := startWatcher(t, dir, nil)
	require.NoError(t, os.Rename(sub, filepath.Join(t.TempDir(), "molecules")))

	deadline := time.After(watchTimeout)
	for {
		select {
		case removed := <-w.Removals():
			if removed == sub {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for directory removal")
		}
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, nil)

	sub := filepath.Join(dir, "molecules")
	require.NoError(t, os.Mkdir(sub, 0755))
	// Give the watcher a chance to register the directory.
	time.Sleep(50 * time.Millisecond)

	card := filepath.Join(sub, "Card.tsx")
	require.NoError(t, os.WriteFile(card, []byte(cardSource), 0644))

	assert.Equal(t, []string{card}, nextBatch(t, w))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(WatchOptions{Roots: []string{dir}, ProjectRoot: dir}, util.NopLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.Error(t, w.Start())
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	w, err := NewWatcher(WatchOptions{}, util.NopLogger())
	require.NoError(t, err)
	require.NoError(t, w.Stop())
}
