package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // emit files already present under the roots
	SkipHidden  bool
	Debounce    time.Duration // coalesce write bursts of a file being copied in
}

// StartWatcher emits paths of supported documents created or written under
// the roots. Both channels are closed once ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if cfg.SkipHidden && path != root && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && AllowedExt(filepath.Ext(path)) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}
	logger.Info("watcher started", "roots", cfg.Roots, "initial", len(initial))

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		var mu sync.Mutex
		pending := map[string]*time.Timer{}
		var timers sync.WaitGroup

		defer func() {
			mu.Lock()
			for p, t := range pending {
				if t.Stop() {
					timers.Done()
				}
				delete(pending, p)
			}
			mu.Unlock()
			timers.Wait()
			if err := w.Close(); err != nil {
				logger.Warn("watcher close failed", "error", err)
			}
			close(evCh)
			close(errCh)
		}()

		emit := func(path string) {
			select {
			case evCh <- path:
			case <-ctx.Done():
			}
		}
		for _, p := range initial {
			emit(p)
		}

		schedule := func(path string) {
			if cfg.Debounce <= 0 {
				emit(path)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if t, ok := pending[path]; ok && t.Stop() {
				timers.Done()
			}
			timers.Add(1)
			pending[path] = time.AfterFunc(cfg.Debounce, func() {
				defer timers.Done()
				mu.Lock()
				delete(pending, path)
				mu.Unlock()
				emit(path)
			})
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() {
						if cfg.SkipHidden && IsHidden(e.Name) {
							continue
						}
						if err := w.Add(e.Name); err != nil {
							logger.Warn("watch new directory failed", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if cfg.SkipHidden && IsHidden(e.Name) {
					continue
				}
				if AllowedExt(filepath.Ext(e.Name)) && (e.Has(fsnotify.Create) || e.Has(fsnotify.Write)) {
					schedule(e.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
