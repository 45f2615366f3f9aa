package crewconfig

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates the cached document of a member whenever its file in
// dir is written, created, removed or renamed, so edits take effect without
// a restart. It returns once the watcher is installed; watching stops when
// ctx is done. With no dir there is nothing to watch.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("crew config watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			slog.Error("close crew config watcher", "error", closeErr)
		}
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				id, ok := docID(ev.Name)
				if !ok || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				s.Invalidate(context.WithoutCancel(ctx), id)
				slog.Info("crew config changed", "crew_id", id, "op", ev.Op.String())
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("crew config watcher", "error", err)
			}
		}
	}()
	return nil
}

func docID(path string) (string, bool) {
	name := filepath.Base(path)
	id, ok := strings.CutSuffix(name, ".json")
	if !ok || !validID.MatchString(id) {
		return "", false
	}
	return id, true
}
