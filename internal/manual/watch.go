package manual

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch applies the manifest at path to the registry now and again after
// every write until ctx is done. Load errors after the first are reported
// through onErr and do not stop the watch.
func (r *Registry) Watch(ctx context.Context, path string, onErr func(error)) error {
	path = filepath.Clean(path)
	if err := r.applyFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				r.logger.Debug("manifest changed", "op", event.Op.String(), "file", event.Name)
				if err := r.applyFile(path); err != nil && onErr != nil {
					onErr(err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onErr != nil {
				onErr(fmt.Errorf("fsnotify: %w", err))
			}
		}
	}
}

func (r *Registry) applyFile(path string) error {
	m, err := LoadManifest(path)
	if err != nil {
		return err
	}
	return r.Apply(m)
}
