// Package archivewatch watches the archive directory for filesystem
// changes and triggers a registry refresh, so dropping a new .zim
// file in place is picked up without an explicit /manage/refresh
// call.
package archivewatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces a burst of events (a download finishing writes
// several times in quick succession) into a single refresh call.
const debounce = 2 * time.Second

// Watch blocks until ctx is done, calling onChange whenever a .zim
// file is created, removed, renamed, or written inside dir.
func Watch(ctx context.Context, dir string, log *slog.Logger, onChange func()) error {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".zim") {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("archivewatch: watcher error", "error", err)

		case <-fire:
			onChange()
		}
	}
}
