// Package autoload watches a drop directory for RPK files and installs or
// updates them through the admin service, so operators can deploy plugins by
// copying a file.
package autoload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/goldpress/goldpress/internal/admin"
	"github.com/goldpress/goldpress/internal/plugin"
)

// settleDelay gives the copier time to finish writing before the file is
// read. Drop directories receive whole files, not streams, so a short delay
// is enough.
const settleDelay = 200 * time.Millisecond

// actor identifies drop-directory installs in the audit log.
var actor = admin.Identity{Name: "autoload", Role: "system"}

// Watcher installs RPK files dropped into a directory. New plugins install
// disabled; an administrator still has to enable them. Existing plugins go
// through the regular update path, inflation detection included.
type Watcher struct {
	dir     string
	service *admin.Service
	log     zerolog.Logger

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewWatcher creates the drop directory if needed and starts watching it.
func NewWatcher(dir string, service *admin.Service, log zerolog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		service: service,
		log:     log.With().Str("component", "autoload").Str("dir", dir).Logger(),
		watcher: fsw,
		done:    make(chan struct{}),
	}
	go w.loop()

	return w, nil
}

// Sync processes RPK files already sitting in the drop directory. Called at
// startup so files dropped while the host was down are not missed.
func (w *Watcher) Sync(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !isRPK(entry.Name()) {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}

// loop consumes watcher events until close.
func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isRPK(event.Name) {
				continue
			}
			time.Sleep(settleDelay)
			w.process(context.Background(), event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watch error")
		}
	}
}

// process installs or updates one dropped archive, then removes the file so
// it is not reprocessed.
func (w *Watcher) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Error().Err(err).Str("file", path).Msg("reading dropped archive")
		return
	}

	rec, err := w.service.Install(ctx, actor, data, nil, false)
	if errors.Is(err, plugin.ErrPluginExists) {
		rec, err = w.service.Update(ctx, actor, data)
	}
	if err != nil {
		w.log.Error().Err(err).Str("file", path).Msg("dropped archive rejected")
		return
	}

	w.log.Info().Str("file", path).Str("plugin", rec.ID).
		Str("version", rec.Manifest.Package.Version).Stringer("status", rec.Status).
		Msg("dropped archive applied")

	if err := os.Remove(path); err != nil {
		w.log.Warn().Err(err).Str("file", path).Msg("removing processed archive")
	}
}

// isRPK reports whether a path names an RPK archive.
func isRPK(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".rpk")
}
