// Package source hosts the event sources: filesystem watcher, OS signals,
// and keyboard. Each source is one long-lived task publishing into the
// priority queue.
package source

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/watchexec/watchexec/internal/filter"
	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/queue"
)

// FSConfig is the filesystem source's live configuration. A positive
// PollInterval selects the polling backend instead of native notifications.
type FSConfig struct {
	Roots        []filter.WatchedPath
	PollInterval time.Duration
}

// FS watches the filesystem and publishes path events. Reconfigure tears the
// backend down and builds a fresh one; events already queued are unaffected.
type FS struct {
	queue  *queue.Queue
	log    *slog.Logger
	reconf chan FSConfig
}

// NewFS builds the filesystem source.
func NewFS(q *queue.Queue, log *slog.Logger) *FS {
	if log == nil {
		log = slog.Default()
	}
	return &FS{
		queue:  q,
		log:    log,
		reconf: make(chan FSConfig, 1),
	}
}

// Reconfigure publishes a new configuration. Only the latest pending
// configuration is applied; intermediate ones are superseded.
func (f *FS) Reconfigure(cfg FSConfig) {
	for {
		select {
		case f.reconf <- cfg:
			return
		default:
			select {
			case <-f.reconf:
			default:
			}
		}
	}
}

// Run drives the watcher until ctx ends. Backend failures are reported as
// watcher diagnostics and the backend is re-established with exponential
// backoff, with no limit on attempts; a collapsing backend is retried
// indefinitely and is never reported as a fatal error.
func (f *FS) Run(ctx context.Context) error {
	var cfg FSConfig
	select {
	case cfg = <-f.reconf:
	case <-ctx.Done():
		return ctx.Err()
	}

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0

	for {
		next, err := f.runBackend(ctx, cfg)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case next != nil:
			cfg = *next
			retry.Reset()
		case err != nil:
			wait := retry.NextBackOff()
			f.log.Warn("filesystem backend failed, re-establishing",
				"error", err, "backoff", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			return nil
		}
	}
}

// runBackend runs one backend instance until reconfiguration (returned as a
// non-nil config), failure, or ctx end.
func (f *FS) runBackend(ctx context.Context, cfg FSConfig) (*FSConfig, error) {
	if len(cfg.Roots) == 0 {
		// nothing to watch; idle until reconfigured
		select {
		case next := <-f.reconf:
			return &next, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if cfg.PollInterval > 0 {
		return f.runPoller(ctx, cfg)
	}
	return f.runNative(ctx, cfg)
}

func (f *FS) runNative(ctx context.Context, cfg FSConfig) (*FSConfig, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, classifyWatchError(err)
	}
	defer watcher.Close()

	recursive := make(map[string]bool)
	for _, root := range cfg.Roots {
		if err := addWatchRoot(watcher, root); err != nil {
			return nil, classifyWatchError(err)
		}
		if root.Recursive {
			recursive[root.Path] = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case next := <-f.reconf:
			return &next, nil

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil, models.NewError(models.KindWatcher, "fs-backend-closed",
					errors.New("watcher channel closed"))
			}
			f.log.Warn("filesystem watcher error", "error", werr)

		case wev, ok := <-watcher.Events:
			if !ok {
				return nil, models.NewError(models.KindWatcher, "fs-backend-closed",
					errors.New("watcher channel closed"))
			}
			ev, ftype := fromNotify(wev)
			if ev.IsEmpty() {
				continue
			}
			// new directories under a recursive root join the watch
			if ftype == models.FileTypeDir && wev.Has(fsnotify.Create) && underRecursiveRoot(wev.Name, cfg.Roots) {
				if err := watcher.Add(wev.Name); err != nil {
					f.log.Warn("failed to watch new directory", "path", wev.Name, "error", err)
				}
			}
			if err := f.queue.Send(ctx, ev, models.PriorityNormal); err != nil {
				if errors.Is(err, queue.ErrClosed) {
					return nil, nil
				}
				return nil, err
			}
		}
	}
}

func underRecursiveRoot(path string, roots []filter.WatchedPath) bool {
	for _, root := range roots {
		if root.Recursive && root.Contains(path) {
			return true
		}
	}
	return false
}

// addWatchRoot registers a root with the backend, walking subdirectories for
// recursive roots.
func addWatchRoot(watcher *fsnotify.Watcher, root filter.WatchedPath) error {
	if !root.Recursive {
		return watcher.Add(root.Path)
	}
	return filepath.WalkDir(root.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

// fromNotify converts a backend event. The file type is statted best-effort;
// removed paths keep an unknown type.
func fromNotify(wev fsnotify.Event) (models.Event, models.FileType) {
	var kind models.FSKind
	switch {
	case wev.Has(fsnotify.Create):
		kind = models.FSCreate
	case wev.Has(fsnotify.Write):
		kind = models.FSModify
	case wev.Has(fsnotify.Remove):
		kind = models.FSRemove
	case wev.Has(fsnotify.Rename):
		kind = models.FSRename
	case wev.Has(fsnotify.Chmod):
		kind = models.FSMetadata
	default:
		kind = models.FSOther
	}

	ftype := statFileType(wev.Name)
	ev := models.Event{Tags: []models.Tag{
		models.PathTag{Path: wev.Name, FileType: ftype},
		models.FSTag{Simple: kind, Full: wev.Op.String()},
		models.SourceTag{Source: models.SourceFilesystem},
	}}
	return ev.AddMetadata("backend", "fsnotify"), ftype
}

func statFileType(path string) models.FileType {
	info, err := os.Lstat(path)
	if err != nil {
		return ""
	}
	switch {
	case info.IsDir():
		return models.FileTypeDir
	case info.Mode()&os.ModeSymlink != 0:
		return models.FileTypeSymlink
	case info.Mode().IsRegular():
		return models.FileTypeFile
	default:
		return models.FileTypeOther
	}
}

// classifyWatchError promotes known backend failures to dedicated codes with
// remediation hints.
func classifyWatchError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "too many open files") ||
		strings.Contains(msg, "no space left on device") ||
		strings.Contains(msg, "inotify") && strings.Contains(msg, "limit") {
		return models.WatchLimitError(err)
	}
	return models.NewError(models.KindWatcher, "fs-backend", err)
}
