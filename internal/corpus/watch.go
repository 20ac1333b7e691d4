package corpus

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the corpus whenever its file is written or replaced, until ctx
// is cancelled. onReload, when set, runs after every successful reload.
// The parent directory is watched so editors that rename over the file are seen.
func (c *Corpus) Watch(ctx context.Context, logger *zap.Logger, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		_ = w.Close()
		return err
	}
	target := filepath.Clean(c.path)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := c.Reload(); err != nil {
					logger.Warn("corpus reload failed, keeping previous snapshot", zap.String("path", c.path), zap.Error(err))
					continue
				}
				logger.Info("corpus reloaded", zap.String("path", c.path), zap.Int("categories", len(c.Categories())))
				if onReload != nil {
					onReload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("corpus watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
