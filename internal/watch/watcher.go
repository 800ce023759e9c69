// Package watch re-runs rule evaluation when rule files or contact
// documents change on disk.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Debounce is how long changes accumulate before a batch is emitted.
	Debounce time.Duration
	// Extensions lists the file extensions that count as changes.
	Extensions []string
	// ExcludeDirs lists directory names never watched.
	ExcludeDirs []string
}

// DefaultConfig watches rule and contact documents.
func DefaultConfig() Config {
	return Config{
		Debounce:    DefaultDebounce,
		Extensions:  []string{".yaml", ".yml", ".json"},
		ExcludeDirs: []string{".git", "node_modules"},
	}
}

// Batch is the set of files whose content changed during one debounce
// interval, sorted by path.
type Batch struct {
	Paths   []string
	Removed []string
}

// Empty reports whether the batch carries no change.
func (b Batch) Empty() bool { return len(b.Paths) == 0 && len(b.Removed) == 0 }

// Watcher watches directory trees and emits debounced change batches.
type Watcher struct {
	cfg        Config
	roots      []string
	fsw        *fsnotify.Watcher
	logger     *slog.Logger
	extensions map[string]bool
	excludes   map[string]bool

	mu      sync.Mutex
	pending map[string]fsnotify.Op
	hashes  map[string]string

	batches chan Batch
}

// New creates a Watcher over roots.
func New(cfg Config, logger *slog.Logger, roots ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	def := DefaultConfig()
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = def.Extensions
	}
	if len(cfg.ExcludeDirs) == 0 {
		cfg.ExcludeDirs = def.ExcludeDirs
	}

	extensions := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[strings.ToLower(ext)] = true
	}
	excludes := make(map[string]bool, len(cfg.ExcludeDirs))
	for _, d := range cfg.ExcludeDirs {
		excludes[d] = true
	}

	return &Watcher{
		cfg:        cfg,
		roots:      roots,
		fsw:        fsw,
		logger:     logger,
		extensions: extensions,
		excludes:   excludes,
		pending:    make(map[string]fsnotify.Op),
		hashes:     make(map[string]string),
		batches:    make(chan Batch, 16),
	}, nil
}

// Batches returns the channel of change batches. It is closed when the
// watcher stops.
func (w *Watcher) Batches() <-chan Batch {
	return w.batches
}

// Start adds watches for every root and begins processing events until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			return err
		}
	}
	go w.loop(ctx)
	w.logger.Info("watching for changes", "roots", w.roots, "debounce", w.cfg.Debounce)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

// Seed records the current content hash of path so an unchanged rewrite
// does not trigger a batch.
func (w *Watcher) Seed(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.hashes[path] = contentHash(data)
	w.mu.Unlock()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(filepath.Base(path)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) skipDir(base string) bool {
	return w.excludes[base] || strings.HasPrefix(base, ".")
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.batches)
	ticker := time.NewTicker(w.cfg.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		case <-ticker.C:
			if b := w.flush(); !b.Empty() {
				select {
				case w.batches <- b:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if !w.extensions[strings.ToLower(filepath.Ext(path))] {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() && !w.skipDir(filepath.Base(path)) {
				if err := w.addRecursive(path); err != nil {
					w.logger.Warn("failed to watch new directory", "path", path, "error", err)
				}
			}
		}
		return
	}

	w.mu.Lock()
	w.pending[path] |= event.Op
	w.mu.Unlock()
	w.logger.Debug("change detected", "path", path, "op", event.Op.String())
}

// flush drains pending changes into a batch, dropping files whose content
// hash is unchanged.
func (w *Watcher) flush() Batch {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	var b Batch
	for path := range pending {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				w.mu.Lock()
				delete(w.hashes, path)
				w.mu.Unlock()
				b.Removed = append(b.Removed, path)
			} else {
				w.logger.Warn("failed to read changed file", "path", path, "error", err)
			}
			continue
		}

		hash := contentHash(data)
		w.mu.Lock()
		old, seen := w.hashes[path]
		w.hashes[path] = hash
		w.mu.Unlock()
		if seen && old == hash {
			continue
		}
		b.Paths = append(b.Paths, path)
	}
	sort.Strings(b.Paths)
	sort.Strings(b.Removed)
	return b
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Run calls onChange for every batch until ctx is cancelled or the watcher
// stops. An onChange error is logged and watching continues.
func Run(ctx context.Context, w *Watcher, onChange func(context.Context, Batch) error) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-w.Batches():
			if !ok {
				return nil
			}
			if err := onChange(ctx, b); err != nil {
				w.logger.Error("re-evaluation failed", "error", err, "changed", len(b.Paths), "removed", len(b.Removed))
			}
		}
	}
}
