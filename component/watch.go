package component

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
)

// Invalidator drops cache entries registered under tags.
type Invalidator interface {
	Invalidate(ctx context.Context, tags []string) ([]string, error)
}

// Watcher invalidates the cache of a Directory component whenever a file
// below its directory changes. Bursts of events are debounced.
type Watcher struct {
	watcher     *fsnotify.Watcher
	logger      types.Logger
	invalidator Invalidator
	delay       time.Duration

	mu      sync.Mutex
	dirs    map[string]string
	pending map[string]struct{}
	timer   *time.Timer

	cancel  context.CancelFunc
	running int32
}

func NewWatcher(logger types.Logger, invalidator Invalidator, delay time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, types.WrapError(err, "failed to create file watcher")
	}

	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:     fw,
		logger:      logger,
		invalidator: invalidator,
		delay:       delay,
		dirs:        make(map[string]string),
		pending:     make(map[string]struct{}),
	}, nil
}

// Watch adds the directory tree of d. Components not backed by a local
// directory are skipped.
func (w *Watcher) Watch(d *Directory) error {
	root := d.OSDir()
	if root == "" {
		return nil
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return types.WrapError(err, "failed to resolve template directory")
	}

	w.mu.Lock()
	w.dirs[root] = d.Name()
	w.mu.Unlock()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) Start() error {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go w.loop(ctx)

	w.mu.Lock()
	watched := len(w.dirs)
	w.mu.Unlock()

	w.logger.Info("Template watcher started", zap.Int("components", watched))
	return nil
}

func (w *Watcher) Stop() error {
	if !atomic.CompareAndSwapInt32(&w.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	w.cancel()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return types.WrapError(err, "failed to close file watcher")
	}

	w.logger.Info("Template watcher stopped")
	return nil
}

func (w *Watcher) IsRunning() bool {
	return atomic.LoadInt32(&w.running) == 1
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Template watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	component := w.componentFor(event.Name)
	if component == "" {
		return
	}

	w.pending[component] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.flush)
}

// componentFor picks the component with the longest watched root containing path.
func (w *Watcher) componentFor(path string) string {
	var best, name string
	for root, component := range w.dirs {
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		if len(root) > len(best) {
			best, name = root, component
		}
	}
	return name
}

func (w *Watcher) flush() {
	w.mu.Lock()
	tags := make([]string, 0, len(w.pending))
	for tag := range w.pending {
		tags = append(tags, tag)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(tags) == 0 {
		return
	}

	ids, err := w.invalidator.Invalidate(context.Background(), tags)
	if err != nil {
		w.logger.Error("Failed to invalidate templates", zap.Strings("components", tags), zap.Error(err))
		return
	}

	w.logger.Info("Templates changed",
		zap.Strings("components", tags),
		zap.Int("invalidated", len(ids)))
}
