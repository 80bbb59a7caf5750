package queue

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay gives a newly created file time to finish writing
// before it is handed to the pipeline.
const settleDelay = 500 * time.Millisecond

// Watch is a Source that turns compressed FITS files appearing under
// a directory tree into job messages. The objectKey is the path
// relative to the watch root, so the tree must mirror the bucket
// layout (unit/field/camera/sequence/file).
type Watch struct {
	root string
	log  *slog.Logger
}

// NewWatch creates a directory watch source rooted at root.
func NewWatch(root string, log *slog.Logger) *Watch {
	return &Watch{root: root, log: log}
}

type watchMessage struct {
	attrs map[string]string
}

func (w watchMessage) Attributes() map[string]string { return w.attrs }
func (w watchMessage) Ack()                          {}

// ObjectKey derives the message objectKey for a file path under the
// watch root. The second return is false for paths that are not
// compressed FITS files or do not sit at the expected depth.
func (w *Watch) ObjectKey(path string) (string, bool) {
	if !strings.HasSuffix(path, ".fits.fz") {
		return "", false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	key := filepath.ToSlash(rel)
	if strings.Count(key, "/") != 4 {
		return "", false
	}
	return key, true
}

// Receive watches the root tree and delivers one message per new
// file, sequentially, until ctx is cancelled.
func (w *Watch) Receive(ctx context.Context, h Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch every existing directory; fsnotify is not recursive.
	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	w.log.Info("watching for images", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := watcher.Add(event.Name); err != nil {
					w.log.Warn("watch add failed", "dir", event.Name, "error", err)
				}
				continue
			}
			key, ok := w.ObjectKey(event.Name)
			if !ok {
				continue
			}
			time.Sleep(settleDelay)
			h(ctx, watchMessage{attrs: map[string]string{"filename": key}})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}
