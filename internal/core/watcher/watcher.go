// # internal/core/watcher/watcher.go
package watcher

import (
	"externaltypes/internal/shared/observability"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultExtensions are the file types that can change a crate's public API
// or the audit configuration.
var DefaultExtensions = []string{".rs", ".toml", ".json", ".yaml", ".yml"}

// DefaultExcludeDirs skips build output and VCS metadata.
var DefaultExcludeDirs = []string{"target", ".git", "node_modules"}

type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debounce     time.Duration
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	extFilters   map[string]bool
	nameFilters  map[string]bool
	// files holds explicitly watched files; they bypass the filters.
	files map[string]bool
	// dirs holds directories watched recursively; fileDirs the parents
	// of explicit files.
	dirs       map[string]bool
	fileDirs   map[string]bool
	onChange   func([]string)
	callbackMu sync.Mutex

	pending   map[string]time.Time
	hashes    map[string]uint64
	pendingMu sync.Mutex
	timer     *time.Timer
}

func NewWatcher(debounce time.Duration, excludeDirs, excludeFiles []string, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}

	compiledDirs := make([]glob.Glob, 0, len(excludeDirs))
	for _, pattern := range excludeDirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiledDirs = append(compiledDirs, g)
	}

	compiledFiles := make([]glob.Glob, 0, len(excludeFiles))
	for _, pattern := range excludeFiles {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiledFiles = append(compiledFiles, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsw,
		debounce:  debounce,
		onChange:  onChange,
		pending:   make(map[string]time.Time),
		hashes:    make(map[string]uint64),
		files:     make(map[string]bool),
		dirs:      make(map[string]bool),
		fileDirs:  make(map[string]bool),
	}
	w.excludeDirs = compiledDirs
	w.excludeFiles = compiledFiles
	w.SetFilters(DefaultExtensions, []string{"Cargo.toml", "Cargo.lock"})

	return w, nil
}

// SetFilters restricts change notifications to the given extensions and
// exact file names.
func (w *Watcher) SetFilters(extensions, filenames []string) {
	extFilter := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		extFilter[normalized] = true
	}

	nameFilter := make(map[string]bool, len(filenames))
	for _, name := range filenames {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		nameFilter[normalized] = true
	}

	w.extFilters = extFilter
	w.nameFilters = nameFilter
}

// Watch starts watching the given directories recursively. A file path
// watches that single file through its parent directory.
func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			if err := w.watchFile(path); err != nil {
				return err
			}
			continue
		}
		if err := w.watchRecursive(path, true); err != nil {
			return err
		}
	}

	go w.run()
	return nil
}

func (w *Watcher) watchFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.pendingMu.Lock()
	w.files[abs] = true
	w.fileDirs[filepath.Dir(abs)] = true
	w.pendingMu.Unlock()
	w.remember(abs)
	return w.fsWatcher.Add(filepath.Dir(abs))
}

// watchRecursive adds root and its subdirectories. With record set the
// current file contents become the baseline for change detection.
func (w *Watcher) watchRecursive(root string, record bool) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != root && w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil {
				w.pendingMu.Lock()
				w.dirs[abs] = true
				w.pendingMu.Unlock()
			}
			return w.fsWatcher.Add(path)
		}

		if record && !w.shouldExcludeFile(path) {
			w.remember(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Op&fsnotify.Create == fsnotify.Create {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if !w.shouldExcludeDir(event.Name) && !w.onlyFiles(event.Name) {
						if err := w.watchRecursive(event.Name, false); err != nil {
							slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
						} else {
							w.enqueueExistingFiles(event.Name)
						}
					}
					continue
				}
			}

			if w.shouldExcludeFile(event.Name) {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Remove == fsnotify.Remove ||
				event.Op&fsnotify.Rename == fsnotify.Rename {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func hashFile(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}

func (w *Watcher) remember(path string) {
	sum, ok := hashFile(path)
	if !ok {
		return
	}
	w.pendingMu.Lock()
	w.hashes[path] = sum
	w.pendingMu.Unlock()
}

// changedLocked records the file's current hash and reports whether it
// differs from the last one seen. Unreadable files count as changed.
func (w *Watcher) changedLocked(path string) bool {
	sum, ok := hashFile(path)
	if !ok {
		delete(w.hashes, path)
		return true
	}
	prev, seen := w.hashes[path]
	w.hashes[path] = sum
	return !seen || prev != sum
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = time.Now()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		w.flushChanges()
	})
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		// Compared after the debounce, once writes have settled.
		if w.changedLocked(path) {
			paths = append(paths, path)
		}
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	if len(paths) > 0 {
		w.callbackMu.Lock()
		defer w.callbackMu.Unlock()
		w.onChange(paths)
	}
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// onlyFiles reports whether path lives in a directory that is watched
// only for explicit files.
func (w *Watcher) onlyFiles(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	dir := filepath.Dir(abs)
	return w.fileDirs[dir] && !w.dirs[dir]
}

func (w *Watcher) isExplicitFile(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return w.files[abs]
}

func (w *Watcher) shouldExcludeFile(path string) bool {
	if w.isExplicitFile(path) {
		return false
	}
	if w.onlyFiles(path) {
		return true
	}

	base := strings.ToLower(filepath.Base(path))
	if len(w.extFilters) > 0 || len(w.nameFilters) > 0 {
		if !w.nameFilters[base] {
			ext := strings.ToLower(filepath.Ext(base))
			if !w.extFilters[ext] {
				return true
			}
		}
	}

	for _, g := range w.excludeFiles {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if w.shouldExcludeFile(path) {
			return nil
		}
		w.scheduleChange(path)
		return nil
	})
}
