package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/verho/replayd/internal/checksum"
)

// debounceWindow coalesces the burst of events an atomic rename emits.
const debounceWindow = 200 * time.Millisecond

// ChangeCallback is invoked after an external edit to a collection file.
type ChangeCallback func(collection string)

// Watch runs an fsnotify watcher on the provider's data directory until
// ctx is cancelled. Edits whose content matches the provider's last
// self-write are ignored; anything else is treated as an external
// change and reported through cb after a short debounce.
func Watch(ctx context.Context, provider *JSONFile, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(provider.Root()); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", provider.Root()))

	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounceWindow)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounceWindow)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for name := range pending {
				delete(pending, name)
				data, readErr := os.ReadFile(filepath.Join(provider.Root(), name))
				if readErr != nil {
					logger.Warn("watcher: read failed",
						slog.String("collection", name),
						slog.String("error", readErr.Error()))
					continue
				}
				if checksum.Sum(data) == provider.LastChecksum(name) {
					// Our own atomic write landing; nothing to reload.
					continue
				}
				logger.Info("watcher: external change", slog.String("collection", name))
				if cb != nil {
					cb(name)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if filepath.Ext(name) != ".json" || name[0] == '.' {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[name] = struct{}{}
			scheduleFlush()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
