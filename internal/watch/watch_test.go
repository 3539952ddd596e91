package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, inbox string, h Handler) {
	t.Helper()
	w := New(Config{
		Inbox:    inbox,
		Debounce: 20 * time.Millisecond,
		Match:    func(p string) bool { return strings.HasSuffix(p, ".jpg") },
	}, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func TestWatcher_HandlesExistingAndNewFiles(t *testing.T) {
	inbox := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "early.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "early.jpg.json"), []byte("{}"), 0o644))

	seen := make(chan string, 8)
	startWatcher(t, inbox, HandlerFunc(func(_ context.Context, path string) error {
		seen <- filepath.Base(path)
		if filepath.Base(path) == "bad.jpg" {
			return errors.New("cannot decode")
		}
		return nil
	}))

	waitFor := func(name string) {
		t.Helper()
		select {
		case got := <-seen:
			assert.Equal(t, name, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", name)
		}
	}
	waitFor("early.jpg")

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "late.jpg"), []byte("x"), 0o644))
	waitFor("late.jpg")

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "bad.jpg"), []byte("x"), 0o644))
	waitFor("bad.jpg")

	assert.Eventually(t, func() bool {
		_, e1 := os.Stat(filepath.Join(inbox, DoneDir, "early.jpg"))
		_, e2 := os.Stat(filepath.Join(inbox, DoneDir, "early.jpg.json"))
		_, e3 := os.Stat(filepath.Join(inbox, DoneDir, "late.jpg"))
		_, e4 := os.Stat(filepath.Join(inbox, FailedDir, "bad.jpg"))
		return e1 == nil && e2 == nil && e3 == nil && e4 == nil
	}, 5*time.Second, 20*time.Millisecond)

	_, err := os.Stat(filepath.Join(inbox, "notes.txt"))
	assert.NoError(t, err, "unmatched files stay in the inbox")
	assert.Empty(t, seen)
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	inbox := t.TempDir()
	calls := make(chan string, 8)
	startWatcher(t, inbox, HandlerFunc(func(_ context.Context, path string) error {
		calls <- path
		return nil
	}))

	path := filepath.Join(inbox, "burst.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	for range 5 {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("file never handled")
	}
	select {
	case p := <-calls:
		t.Fatalf("handled twice: %s", p)
	case <-time.After(150 * time.Millisecond):
	}
}
