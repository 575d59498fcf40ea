package tokenstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceWindow = 250 * time.Millisecond

// Watch observes the given token files and calls onReload once per burst
// of changes, debounced so editors and atomic renames trigger a single
// reload. It returns after the watcher goroutine is running.
func Watch(ctx context.Context, logger *slog.Logger, onReload func(), paths ...string) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	added := false
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := w.Add(p); err != nil {
			logger.Error("tokenstore: watch add", "path", p, "err", err)
			continue
		}
		added = true
	}
	if !added {
		w.Close()
		return nil
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				// atomic replace drops the watch on the old inode
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						logger.Error("tokenstore: watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(debounceWindow)
				}
			case <-debounce.C:
				onReload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("tokenstore: watch error", "err", err)
			}
		}
	}()
	return nil
}
