package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) add(paths []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, paths)
}

func (b *batches) snapshot() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.got...)
}

func startWatcher(t *testing.T, root string, dirs, exclude []string, b *batches) {
	t.Helper()
	fw, err := NewFileWatcher(root, dirs, exclude, b.add, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// Give Run time to register the directories.
	time.Sleep(100 * time.Millisecond)
}

func TestFileWatcher_DebouncesBursts(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0755))

	b := &batches{}
	startWatcher(t, root, []string{src}, nil, b)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(src, "App.java"), []byte{byte('a' + i)}, 0644))
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, os.WriteFile(filepath.Join(src, "Util.java"), []byte("u"), 0644))

	require.Eventually(t, func() bool { return len(b.snapshot()) == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	got := b.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"src/App.java", "src/Util.java"}, got[0])
}

func TestFileWatcher_IgnoresExcludedAndNewDirs(t *testing.T) {
	root := t.TempDir()
	tmp := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(tmp, 0755))

	b := &batches{}
	startWatcher(t, root, []string{root}, []string{tmp}, b)

	require.NoError(t, os.WriteFile(filepath.Join(tmp, "ai-pair.log"), []byte("x"), 0644))
	nested := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(nested, 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(nested, "A.java"), []byte("a"), 0644))

	require.Eventually(t, func() bool {
		for _, batch := range b.snapshot() {
			for _, p := range batch {
				if p == "pkg/A.java" {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	for _, batch := range b.snapshot() {
		for _, p := range batch {
			assert.NotContains(t, p, "tmp/")
		}
	}
}
