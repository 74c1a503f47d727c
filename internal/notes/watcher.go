package notes

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watcher tracks filesystem changes under the notes root, invalidating the
// render cache and recording modified notes for the client poll endpoint.
type watcher struct {
	fsw *fsnotify.Watcher
	svc *Service
}

func newWatcher(svc *Service) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &watcher{fsw: fsw, svc: svc}

	if err := w.watchRecursive(svc.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *watcher) Close() error {
	return w.fsw.Close()
}

func (w *watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.svc.logger.Error("watcher error", slog.Any("err", err))
		case <-w.svc.ctx.Done():
			return
		}
	}
}

func (w *watcher) handleEvent(event fsnotify.Event) {
	if event.Name == "" {
		return
	}

	rel := w.relativePath(event.Name)
	op := event.Op

	w.svc.logger.Debug("fsnotify event", slog.String("path", rel), slog.String("op", op.String()))

	if op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watchRecursive(event.Name)
			return
		}
	}

	if !w.svc.hasNoteExtension(event.Name) {
		return
	}

	switch {
	case op&fsnotify.Write != 0:
		w.svc.logger.Info("note modified", slog.String("path", rel))
		w.svc.Invalidate(event.Name)
		w.svc.markModified(rel)
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.svc.logger.Info("note removed", slog.String("path", rel))
		w.svc.Invalidate(event.Name)
		w.svc.clearModified(rel)
	case op&fsnotify.Create != 0:
		w.svc.logger.Info("note created", slog.String("path", rel))
		w.svc.Invalidate(event.Name)
	}
}

func (w *watcher) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != w.svc.root {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				w.svc.logger.Warn("failed to watch directory", slog.String("path", path), slog.Any("err", err))
			}
		}
		return nil
	})
}

func (w *watcher) relativePath(abs string) string {
	rel, err := filepath.Rel(w.svc.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}
