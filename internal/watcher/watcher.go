// Package watcher monitors directories for new photos and GPX files and
// feeds them into the grouper queues.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"runpost/internal/gpx"
	"runpost/internal/model"
	"runpost/internal/photo"
	"runpost/internal/session"
)

// CaptureTimer resolves a photo's capture timestamp. photo.Tagger satisfies
// it; nil falls back to file modification time.
type CaptureTimer interface {
	CaptureTime(path string) (time.Time, error)
}

// Watcher feeds file-system events into the grouper and triggers a
// processing pass after each arrival.
type Watcher struct {
	grouper *session.Grouper
	timer   CaptureTimer
	log     *slog.Logger
	fsw     *fsnotify.Watcher

	// Settle is how long to wait after a create event before reading the
	// file, so slow writers can finish.
	Settle time.Duration

	// OnArrival runs after an item is queued, typically a grouping pass.
	OnArrival func()
}

// New creates a Watcher feeding g.
func New(g *session.Grouper, timer CaptureTimer, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		grouper: g,
		timer:   timer,
		log:     log,
		fsw:     fsw,
		Settle:  2 * time.Second,
	}, nil
}

// Watch registers directories to monitor. Missing directories are logged and
// skipped.
func (w *Watcher) Watch(dirs ...string) error {
	watched := 0
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			w.log.Warn("watch directory missing, skipping", "dir", dir)
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.log.Info("monitoring", "dir", dir)
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no watchable directories")
	}
	return nil
}

// Run consumes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if w.Settle > 0 {
				time.Sleep(w.Settle)
			}
			if w.HandlePath(ev.Name) && w.OnArrival != nil {
				w.OnArrival()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "err", err)
		}
	}
}

// HandlePath classifies and queues one new file. Returns true when an item
// was queued.
func (w *Watcher) HandlePath(path string) bool {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case photo.IsPhoto(ext):
		return w.queuePhoto(path)
	case ext == ".gpx":
		return w.queueTrack(path)
	}
	return false
}

func (w *Watcher) queuePhoto(path string) bool {
	capturedAt, err := w.captureTime(path)
	if err != nil {
		w.log.Warn("cannot resolve capture time", "path", path, "err", err)
		return false
	}
	w.grouper.AddMedia(&model.MediaItem{Path: path, CapturedAt: capturedAt})
	w.log.Info("photo queued", "path", path, "captured_at", capturedAt)
	return true
}

func (w *Watcher) queueTrack(path string) bool {
	samples, err := gpx.Samples(path)
	if err != nil {
		w.log.Warn("cannot parse track log", "path", path, "err", err)
		return false
	}
	if len(samples) == 0 {
		w.log.Warn("track log has no timestamped points", "path", path)
		return false
	}
	w.grouper.AddTrack(&model.TrackItem{
		Source:     path,
		ObservedAt: samples[0].Timestamp,
		Samples:    samples,
	})
	w.log.Info("track queued", "path", path, "observed_at", samples[0].Timestamp, "points", len(samples))
	return true
}

func (w *Watcher) captureTime(path string) (time.Time, error) {
	if w.timer != nil {
		return w.timer.CaptureTime(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
