package component

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/logger"
)

type recordingInvalidator struct {
	mu   sync.Mutex
	tags []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tags []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tags...)
	return nil, nil
}

func (r *recordingInvalidator) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tags...)
}

func TestWatcherInvalidatesChangedComponent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.html"), []byte("v1"), 0o644))

	invalidator := &recordingInvalidator{}
	watcher, err := NewWatcher(logger.NewNop(), invalidator, 20*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, watcher.Watch(NewDirectoryFromPath("news", dir)))
	require.NoError(t, watcher.Watch(NewDirectory("embedded", os.DirFS(dir), ".")))
	require.NoError(t, watcher.Start())
	defer func() { _ = watcher.Stop() }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.html"), []byte("v2"), 0o644))

	assert.Eventually(t, func() bool {
		seen := invalidator.seen()
		return len(seen) > 0 && seen[0] == "news"
	}, 2*time.Second, 10*time.Millisecond)
}
