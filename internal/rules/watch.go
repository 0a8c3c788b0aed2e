package rules

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the rule file at path whenever it changes and calls onChange
// with the new RuleSet. It watches the parent directory so atomic saves
// (write to temp file, rename over) are seen. A rule file that fails to load
// is logged and the previous RuleSet stays active.
//
// Watch blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, path string, onChange func(*RuleSet)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}
	l.logger.Info("watching rule file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

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

			rs, err := l.LoadFile(target)
			if err != nil {
				l.logger.Error("rule reload failed, keeping previous rules", "path", target, "err", err)
				if l.OnReloadError != nil {
					l.OnReloadError(err)
				}
				continue
			}
			l.logger.Info("rules reloaded", "path", target, "rules", rs.Len())
			onChange(rs)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("rule watcher error", "err", err)
		}
	}
}
