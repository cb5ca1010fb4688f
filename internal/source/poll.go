package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/watchexec/watchexec/internal/filter"
	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/queue"
)

// pollEntry is the per-path snapshot the poller diffs between scans.
type pollEntry struct {
	modTime time.Time
	size    int64
	mode    fs.FileMode
}

// runPoller is the polling backend: scan the roots every interval and diff
// against the previous snapshot.
func (f *FS) runPoller(ctx context.Context, cfg FSConfig) (*FSConfig, error) {
	snapshot := pollScan(cfg.Roots)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case next := <-f.reconf:
			return &next, nil

		case <-ticker.C:
			current := pollScan(cfg.Roots)
			for _, ev := range pollDiff(snapshot, current) {
				if err := f.queue.Send(ctx, ev, models.PriorityNormal); err != nil {
					if errors.Is(err, queue.ErrClosed) {
						return nil, nil
					}
					return nil, err
				}
			}
			snapshot = current
		}
	}
}

func pollScan(roots []filter.WatchedPath) map[string]pollEntry {
	out := make(map[string]pollEntry)

	record := func(path string, info fs.FileInfo) {
		out[path] = pollEntry{modTime: info.ModTime(), size: info.Size(), mode: info.Mode()}
	}

	for _, root := range roots {
		if root.Recursive {
			_ = filepath.WalkDir(root.Path, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if info, ierr := d.Info(); ierr == nil {
					record(path, info)
				}
				return nil
			})
			continue
		}

		entries, err := os.ReadDir(root.Path)
		if err != nil {
			if info, serr := os.Lstat(root.Path); serr == nil {
				record(root.Path, info)
			}
			continue
		}
		for _, d := range entries {
			if info, ierr := d.Info(); ierr == nil {
				record(filepath.Join(root.Path, d.Name()), info)
			}
		}
	}
	return out
}

func pollDiff(before, after map[string]pollEntry) []models.Event {
	var out []models.Event

	emit := func(path string, kind models.FSKind) {
		ev := models.Event{Tags: []models.Tag{
			models.PathTag{Path: path, FileType: statFileType(path)},
			models.FSTag{Simple: kind, Full: "poll:" + string(kind)},
			models.SourceTag{Source: models.SourceFilesystem},
		}}
		out = append(out, ev.AddMetadata("backend", "poll"))
	}

	for path, cur := range after {
		prev, ok := before[path]
		switch {
		case !ok:
			emit(path, models.FSCreate)
		case !cur.modTime.Equal(prev.modTime) || cur.size != prev.size:
			emit(path, models.FSModify)
		case cur.mode != prev.mode:
			emit(path, models.FSMetadata)
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			emit(path, models.FSRemove)
		}
	}
	return out
}
