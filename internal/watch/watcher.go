package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ChamsBouzaiene/aipair/internal/changes"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

// DefaultDebounce is the quiet period after the last event before a batch
// is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Matcher decides whether a root-relative, slash-separated path is ignored.
type Matcher interface {
	MatchesPath(string) bool
}

// FileWatcher watches directory trees and delivers debounced batches of
// changed paths.
type FileWatcher struct {
	root     string
	dirs     []string
	ignore   Matcher
	debounce time.Duration
	onChange func([]string)
	log      engine.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]bool
	kick    chan struct{}
}

// Option customises a FileWatcher.
type Option func(*FileWatcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(fw *FileWatcher) { fw.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l engine.Logger) Option {
	return func(fw *FileWatcher) { fw.log = l }
}

// WithIgnore replaces the default ignore matcher.
func WithIgnore(m Matcher) Option {
	return func(fw *FileWatcher) { fw.ignore = m }
}

// NewFileWatcher creates a watcher over dirs (absolute, inside root). Paths
// matched by the project's ignore rules and everything under exclude are
// never reported. onChange receives sorted root-relative paths.
func NewFileWatcher(root string, dirs []string, exclude []string, onChange func([]string), opts ...Option) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	fw := &FileWatcher{
		root:     root,
		dirs:     dirs,
		ignore:   changes.NewIgnoreMatcher(root, exclude...),
		debounce: DefaultDebounce,
		onChange: onChange,
		log:      engine.NopLogger{},
		watcher:  w,
		pending:  make(map[string]bool),
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(fw)
	}
	return fw, nil
}

// Run watches until ctx is done. It blocks and closes the underlying
// watcher on return.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.watcher.Close()

	for _, dir := range fw.dirs {
		if err := fw.addTree(dir); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fw.debounceLoop(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.log.Warn(fmt.Sprintf("watcher error: %v", err))
		}
	}
}

// addTree watches dir and every non-ignored directory below it.
func (fw *FileWatcher) addTree(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		fw.log.Warn(fmt.Sprintf("not watching missing directory %s", dir))
		return nil
	}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if fw.ignored(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			fw.log.Warn(fmt.Sprintf("failed to watch %s: %v", path, err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return nil
}

func (fw *FileWatcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (fw *FileWatcher) ignored(path string) bool {
	rel, ok := fw.rel(path)
	if !ok {
		return true
	}
	return rel != "." && fw.ignore.MatchesPath(rel)
}

// handleEvent processes a single filesystem event.
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if fw.ignored(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addTree(event.Name); err != nil {
				fw.log.Warn(err.Error())
			}
			return
		}
	}
	if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		return
	}

	rel, _ := fw.rel(event.Name)
	fw.mu.Lock()
	fw.pending[rel] = true
	fw.mu.Unlock()

	select {
	case fw.kick <- struct{}{}:
	default:
	}
}

// debounceLoop delivers pending paths once no event arrived for the
// debounce period.
func (fw *FileWatcher) debounceLoop(ctx context.Context) {
	timer := time.NewTimer(fw.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-fw.kick:
			timer.Reset(fw.debounce)
		case <-timer.C:
			fw.flush()
		}
	}
}

func (fw *FileWatcher) flush() {
	fw.mu.Lock()
	if len(fw.pending) == 0 {
		fw.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(fw.pending))
	for p := range fw.pending {
		paths = append(paths, p)
	}
	fw.pending = make(map[string]bool)
	fw.mu.Unlock()

	sort.Strings(paths)
	fw.log.Debug(fmt.Sprintf("file watcher detected %d changed files", len(paths)))
	if fw.onChange != nil {
		fw.onChange(paths)
	}
}
