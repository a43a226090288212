// Package watch re-syncs documents as they change on disk.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corville/confsync/internal/checksum"
	"github.com/corville/confsync/internal/storage"
	"github.com/corville/confsync/internal/syncer"
)

// debounce delays a re-sync after the last write event for a file, so a
// burst of editor saves results in one API call.
const debounce = 500 * time.Millisecond

// Run starts an fsnotify watcher on the docs root and re-syncs individual
// Markdown files on write/create events until ctx is cancelled. New
// directories created at runtime are added to the watch list.
func Run(ctx context.Context, store storage.Provider, s *syncer.Syncer, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, store.Root()); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", store.Root()))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			for rel := range pending {
				delete(pending, rel)
				syncPath(ctx, store, s, rel, logger)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			rel, relErr := filepath.Rel(store.Root(), ev.Name)
			if relErr != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			schedule()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// syncPath re-syncs a single changed document. Failures are logged; the
// watcher keeps running.
func syncPath(ctx context.Context, store storage.Provider, s *syncer.Syncer, rel string, logger *slog.Logger) {
	data, err := store.Read(rel)
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	doc := storage.DocInfo{Path: rel, Checksum: checksum.Sum(data)}
	outcome, err := s.SyncFile(ctx, doc)
	if err != nil {
		logger.Error("watcher: sync failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	logger.Info("watcher: synced",
		slog.String("path", rel),
		slog.String("result", outcome.Result),
		slog.String("page_id", outcome.PageID))
}

// addDirsRecursive adds dir and every directory below it to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
