// 配置文件变更监听器实现。
//
// 轮询文件修改时间，防抖后触发回调。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileWatcher watches configuration files for changes
type FileWatcher struct {
	mu sync.RWMutex

	paths         []string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	callbacks []func(event FileEvent)

	logger *zap.Logger

	// 轮询记录的最后修改时间
	lastModTimes map[string]time.Time
}

// FileEvent represents a file change event
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithPollInterval sets how often watched files are stat'ed
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// --- 文件监听器实现 ---

// NewFileWatcher creates a new file watcher.
// Missing files are allowed; their creation is reported as FileOpCreate.
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:         append([]string(nil), paths...),
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		lastModTimes:  make(map[string]time.Time),
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	for _, path := range w.paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				w.logger.Warn("config file does not exist, will watch for creation",
					zap.String("path", path))
			} else {
				return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
			}
		}
	}

	return w, nil
}

// OnChange registers a callback for file change events
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching for file changes
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.lastModTimes[path] = info.ModTime()
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx, w.done)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))

	return nil
}

// Stop stops the file watcher and waits for the loop to exit
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("file watcher stopped")
	return nil
}

// loop 在单个 goroutine 中轮询并防抖，同一路径只保留最后一个事件
func (w *FileWatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	pending := make(map[string]FileEvent)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events := w.checkFiles()
			if len(events) == 0 {
				continue
			}
			for _, evt := range events {
				pending[evt.Path] = evt
			}
			debounce = time.After(w.debounceDelay)
		case <-debounce:
			debounce = nil
			w.dispatch(pending)
			pending = make(map[string]FileEvent)
		}
	}
}

func (w *FileWatcher) dispatch(events map[string]FileEvent) {
	w.mu.RLock()
	callbacks := make([]func(FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, evt := range events {
		w.logger.Debug("dispatching file event",
			zap.String("path", evt.Path),
			zap.String("op", evt.Op.String()))
		for _, cb := range callbacks {
			cb(evt)
		}
	}
}

// checkFiles checks all watched files for modifications
func (w *FileWatcher) checkFiles() []FileEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	var events []FileEvent
	now := time.Now()
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if _, existed := w.lastModTimes[path]; existed {
					delete(w.lastModTimes, path)
					events = append(events, FileEvent{Path: path, Op: FileOpRemove, Timestamp: now})
				}
			}
			continue
		}

		lastMod, existed := w.lastModTimes[path]
		switch {
		case !existed:
			w.lastModTimes[path] = info.ModTime()
			events = append(events, FileEvent{Path: path, Op: FileOpCreate, Timestamp: now})
		case !info.ModTime().Equal(lastMod):
			w.lastModTimes[path] = info.ModTime()
			events = append(events, FileEvent{Path: path, Op: FileOpWrite, Timestamp: now})
		}
	}
	return events
}

// Paths returns the list of watched paths
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	paths := make([]string, len(w.paths))
	copy(paths, w.paths)
	return paths
}

// IsRunning returns whether the watcher is running
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
