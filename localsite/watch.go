package localsite

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period Watch waits for after the last change.
const DefaultDebounce = 300 * time.Millisecond

// Watch calls fn once a burst of changes to matching files has settled,
// until ctx is done. New subdirectories are watched as they appear. An
// error from fn is logged and watching goes on.
func (s *Site) Watch(ctx context.Context, debounce time.Duration, logger *slog.Logger, fn func() error) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("localsite: watcher: %w", err)
	}
	defer watcher.Close()

	if err := s.addDirs(watcher, s.Root); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := s.addDirs(watcher, ev.Name); err != nil {
						logger.Warn("localsite: watch new directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			rel, err := filepath.Rel(s.Root, ev.Name)
			if err != nil || !s.Match(filepath.ToSlash(rel)) {
				continue
			}
			logger.Debug("localsite: change", "path", rel, "op", ev.Op.String())
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("localsite: watcher error", "error", err)

		case <-timer.C:
			if err := fn(); err != nil {
				logger.Error("localsite: rebuild failed", "error", err)
			}
		}
	}
}

func (s *Site) addDirs(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(s.Root, p); rel != "." && hidden(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("localsite: watch %s: %w", p, err)
		}
		return nil
	})
}
