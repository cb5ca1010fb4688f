// Package filter implements the ordered filter stack applied to every
// non-urgent event: filesystem-kind mask, watched-path restriction, ignore
// set, allow filters, then user program filters. A reject at any stage stops
// the pipeline for that event.
package filter

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/watchexec/watchexec/internal/models"
)

// WatchedPath is one watch root. Non-recursive roots only cover direct
// children.
type WatchedPath struct {
	Path      string
	Recursive bool
}

// Contains reports whether abs lies within the root per its recursion mode.
// The root itself counts as contained.
func (w WatchedPath) Contains(abs string) bool {
	if abs == w.Path {
		return true
	}
	rel, err := filepath.Rel(w.Path, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if w.Recursive {
		return true
	}
	return !strings.ContainsRune(rel, filepath.Separator)
}

// Config describes the full filter stack. Zero values disable the respective
// stage (except the kind mask, which has an opinionated default).
type Config struct {
	// Kinds is the filesystem-event-kind mask. Nil selects the default mask
	// (everything but access).
	Kinds map[models.FSKind]bool

	// Roots is the watched-path whitelist. Empty disables the stage.
	Roots []WatchedPath

	// Origin anchors relative ignore/allow globs.
	Origin string

	IgnoreGlobs []string
	IgnoreFiles []IgnoreFile

	AllowGlobs []string
	Extensions []string

	Programs []*Program
}

// DefaultKinds returns the default filesystem-kind mask: access events are
// off, everything else on.
func DefaultKinds() map[models.FSKind]bool {
	return map[models.FSKind]bool{
		models.FSAccess:   false,
		models.FSCreate:   true,
		models.FSModify:   true,
		models.FSRemove:   true,
		models.FSRename:   true,
		models.FSMetadata: true,
		models.FSOther:    true,
	}
}

// Stack evaluates the configured stages in order.
type Stack struct {
	cfg Config
	log *slog.Logger
}

// NewStack builds a filter stack. Program sources must already be compiled
// into cfg.Programs.
func NewStack(cfg Config, log *slog.Logger) *Stack {
	if cfg.Kinds == nil {
		cfg.Kinds = DefaultKinds()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stack{cfg: cfg, log: log}
}

// Accept runs the event through the stack. Urgent events never reach this
// method; the debouncer releases them unfiltered.
func (s *Stack) Accept(ctx context.Context, ev models.Event) bool {
	if !s.kindMask(ev) {
		return false
	}
	if !s.watchRestriction(ev) {
		return false
	}
	if !s.ignoreSet(ev) {
		return false
	}
	if !s.allowFilters(ev) {
		return false
	}
	return s.programFilters(ctx, ev)
}

// kindMask rejects events whose filesystem kinds are all deselected. Events
// without an fs tag pass.
func (s *Stack) kindMask(ev models.Event) bool {
	kinds := ev.FSKinds()
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if s.cfg.Kinds[k] {
			return true
		}
	}
	return false
}

// watchRestriction requires every path to lie within at least one watched
// root. Non-path events pass, as does an empty root set.
func (s *Stack) watchRestriction(ev models.Event) bool {
	if len(s.cfg.Roots) == 0 {
		return true
	}
	paths := ev.Paths()
	if len(paths) == 0 {
		return true
	}
outer:
	for _, p := range paths {
		for _, root := range s.cfg.Roots {
			if root.Contains(p.Path) {
				continue outer
			}
		}
		return false
	}
	return true
}

// ignoreSet rejects events all of whose paths are ignored by a glob or an
// ignore-file rule.
func (s *Stack) ignoreSet(ev models.Event) bool {
	paths := ev.Paths()
	if len(paths) == 0 {
		return true
	}
	for _, p := range paths {
		if !s.ignored(p.Path) {
			return true
		}
	}
	return false
}

func (s *Stack) ignored(abs string) bool {
	for _, pat := range s.cfg.IgnoreGlobs {
		if matchGlob(pat, abs, s.cfg.Origin) {
			return true
		}
	}
	for _, file := range s.cfg.IgnoreFiles {
		if file.Ignores(abs) {
			return true
		}
	}
	return false
}

// allowFilters requires, when any allow filters are configured, that at
// least one path matches an extension or glob. Non-path events pass.
func (s *Stack) allowFilters(ev models.Event) bool {
	if len(s.cfg.AllowGlobs) == 0 && len(s.cfg.Extensions) == 0 {
		return true
	}
	paths := ev.Paths()
	if len(paths) == 0 {
		return true
	}
	for _, p := range paths {
		if s.allowed(p.Path) {
			return true
		}
	}
	return false
}

func (s *Stack) allowed(abs string) bool {
	for _, ext := range s.cfg.Extensions {
		if strings.EqualFold(strings.TrimPrefix(filepath.Ext(abs), "."), ext) {
			return true
		}
	}
	for _, pat := range s.cfg.AllowGlobs {
		if matchGlob(pat, abs, s.cfg.Origin) {
			return true
		}
	}
	return false
}

// programFilters evaluates user programs against the event's JSON
// projection. Evaluation errors reject the event so a broken program cannot
// wedge the pipeline open.
func (s *Stack) programFilters(ctx context.Context, ev models.Event) bool {
	for _, prog := range s.cfg.Programs {
		ok, err := prog.Accept(ctx, ev)
		if err != nil {
			s.log.Warn("filter program failed, rejecting event",
				"program", prog.Name(), "error", err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// matchGlob matches pattern against an absolute path. Patterns without a
// separator match the basename; absolute patterns match the absolute path;
// others match the path relative to root and, failing that, any trailing
// run of components of the absolute path.
func matchGlob(pattern, abs, root string) bool {
	pattern = filepath.ToSlash(pattern)
	slashAbs := filepath.ToSlash(abs)

	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, filepath.Base(abs))
		return ok
	}
	if strings.HasPrefix(pattern, "/") {
		ok, _ := doublestar.Match(pattern, slashAbs)
		return ok
	}
	if root != "" {
		if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); ok {
				return true
			}
		}
	}
	ok, _ := doublestar.Match("**/"+pattern, slashAbs)
	return ok
}
