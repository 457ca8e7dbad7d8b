package auth

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay debounces bursts of events from a single rotation.
const reloadDelay = 500 * time.Millisecond

// Watch follows the token file until ctx is canceled. The parent
// directory is watched rather than the file itself, so rotations done
// by rename-into-place are picked up too. Reloads are debounced.
func (f *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go f.processEvents(ctx, watcher)

	f.logger.Debug().Str("path", f.path).Msg("watching token file")
	return nil
}

// processEvents reacts to file system events on the token file.
func (f *FileSource) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !f.sameFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			f.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("token file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, f.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error().Err(err).Msg("token watcher error")
		}
	}
}
