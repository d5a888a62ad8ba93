package workflow

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTemplates rebuilds the catalog whenever the prompt override file at
// path is written, and passes the new catalog to apply. A file that fails to
// parse is logged and the previous catalog stays in effect. The watch stops
// when ctx is done.
func WatchTemplates(ctx context.Context, path string, apply func(*Catalog)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors often replace files instead of writing
	// them in place.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				c, err := DefaultCatalog(path)
				if err != nil {
					log.Printf("[workflow] warning: ignoring prompt overrides %s: %v", path, err)
					continue
				}
				log.Printf("[workflow] reloaded prompt overrides from %s", path)
				apply(c)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[workflow] watcher error: %v", err)
			}
		}
	}()

	return nil
}
