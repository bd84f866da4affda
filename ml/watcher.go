package ml

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the pipeline at path whenever the file is rewritten and
// hands each successful load to onLoad. It blocks until ctx is cancelled.
// Load failures are logged and skipped so a half-written artifact never
// replaces a good one.
func Watch(ctx context.Context, path string, log *zap.SugaredLogger, onLoad func(*Pipeline)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors and atomic writers replace the file,
	// which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p, err := LoadFile(target)
			if err != nil {
				log.Warnw("artifact reload failed", "path", target, "error", err)
				continue
			}
			log.Infow("artifact reloaded", "path", target)
			onLoad(p)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("artifact watcher error", "error", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
