// Package watch keeps the registry in sync with a directory of network
// documents. Every .json, .yaml or .yml file becomes one network whose id
// is derived from the file path, so editing a file replaces the network in
// place and deleting it removes the network.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// namespace seeds the path-derived network ids.
var namespace = uuid.MustParse("6f1c8a52-3b7e-4d0a-9e55-2a4c1f0b7d13")

// Registrar is the part of the registry the watcher drives.
type Registrar interface {
	Register(ctx context.Context, n *network.Network) (models.NetworkSummary, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

// Stats counts watcher activity.
type Stats struct {
	Loaded  int
	Removed int
	Errors  int
}

// IDForPath is the network id a document at path is registered under.
func IDForPath(path string) uuid.UUID {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(abs)))
}

// Watcher loads network documents from a directory and follows changes.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	registry    Registrar
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a watcher for dir. Start begins watching.
func New(dir string, registry Registrar, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		dir:         dir,
		registry:    registry,
		logger:      logger.Named("watch"),
		debounceMap: make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond, // editors save in bursts
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start loads every document already in the directory, then follows
// changes in a goroutine until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read watch dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isDocument(e.Name()) {
			continue
		}
		w.load(ctx, filepath.Join(w.dir, e.Name()))
	}
	w.logger.Info("watching directory", zap.String("dir", w.dir), zap.Int("loaded", w.Stats().Loaded))

	go w.run(ctx)
	return nil
}

// Stop ends the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-tick.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isDocument(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// processSettled handles paths whose last event is older than the debounce
// window. The file's presence decides between load and remove.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			w.remove(ctx, path)
			continue
		}
		w.load(ctx, path)
	}
}

func (w *Watcher) load(ctx context.Context, path string) {
	n, err := readDocument(path)
	if err == nil {
		_, err = w.registry.Register(ctx, n)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.Errors++
		w.logger.Warn("rejected network document", zap.String("path", path), zap.Error(err))
		return
	}
	w.stats.Loaded++
	w.logger.Info("loaded network document", zap.String("path", path), zap.String("name", n.Name()))
}

func (w *Watcher) remove(ctx context.Context, path string) {
	err := w.registry.Remove(ctx, IDForPath(path))
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		// Documents that never loaded have nothing to remove.
		w.logger.Debug("remove network", zap.String("path", path), zap.Error(err))
		return
	}
	w.stats.Removed++
	w.logger.Info("removed network document", zap.String("path", path))
}

func readDocument(path string) (*network.Network, error) {
	format, err := network.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := network.Decode(data, format)
	if err != nil {
		return nil, err
	}
	return network.FromStoredDocument(IDForPath(path), doc)
}

func isDocument(name string) bool {
	_, err := network.FormatFromPath(name)
	return err == nil
}
