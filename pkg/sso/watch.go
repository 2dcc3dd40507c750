package sso

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/authsvc/pkg/observability"
)

// reloadDelay coalesces the burst of events an editor or a configmap update produces
const reloadDelay = 500 * time.Millisecond

// Watch reloads the registry whenever the providers file changes, until ctx is
// done. The parent directory is watched rather than the file, since editors and
// Kubernetes configmap updates replace the file instead of writing it in place.
// A failed reload is logged and the previous providers keep serving.
func (r *Registry) Watch(ctx context.Context, path string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create providers file watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.WithField("path", path).Info("Watching identity provider file")

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if affectsProvidersFile(event, path) {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("providers file watcher error")
		case <-timer.C:
			if err := r.Reload(ctx, path, logger); err != nil {
				logger.WithError(err).Error("Failed to reload identity providers, keeping previous set")
				continue
			}
			logger.WithField("providers", len(r.Names())).Info("Identity providers reloaded")
		}
	}
}

// affectsProvidersFile matches changes to the file itself and to the ..data
// symlink through which configmap volumes publish a new revision
func affectsProvidersFile(event fsnotify.Event, path string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == path || filepath.Base(name) == "..data"
}
