package stage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce lets editors finish write+rename sequences before reloading.
const reloadDebounce = 100 * time.Millisecond

// WatchKeywords reloads the keyword file into c whenever it changes, until
// ctx is done. A file that fails to parse is logged and the previous keyword
// set stays active. The parent directory is watched so atomic replaces are
// seen.
func WatchKeywords(ctx context.Context, path string, c *Classifier) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create keyword watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	slog.InfoContext(ctx, "watching keyword file", "path", path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			kw, err := LoadKeywordsFile(path)
			if err != nil {
				slog.WarnContext(ctx, "keeping previous keywords", "path", path, "error", err)
				continue
			}
			c.SetKeywords(kw)
			slog.InfoContext(ctx, "reloaded keywords", "path", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "keyword watcher error", "error", err)
		}
	}
}
