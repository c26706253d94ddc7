package changelog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events an editor produces when it
// saves a file.
const watchDebounce = 100 * time.Millisecond

// Watch calls fn with the reloaded changelog each time path is written or
// replaced, until ctx is done. Load failures are passed to fn rather than
// ending the watch. The parent directory is watched so that editors which
// save through a rename are still seen.
func Watch(ctx context.Context, path string, fn func(*Changelog, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if filepath.Clean(event.Name) == abs && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				reload = time.After(watchDebounce)
			}
		case <-reload:
			reload = nil
			fn(Load(abs))
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}
