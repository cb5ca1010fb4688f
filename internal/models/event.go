package models

import (
	"strconv"
	"strings"
)

// TagKind discriminates the Tag variants. The values double as the JSON
// "kind" field of the event projection.
type TagKind string

// Tag kind constants.
const (
	TagKindPath       TagKind = "path"
	TagKindFS         TagKind = "fs"
	TagKindSource     TagKind = "source"
	TagKindKeyboard   TagKind = "keyboard"
	TagKindProcess    TagKind = "process"
	TagKindSignal     TagKind = "signal"
	TagKindCompletion TagKind = "completion"
)

// Tag is one typed attribute of an Event. Events are sets of tags; a tag on
// its own carries no ordering or identity.
type Tag interface {
	TagKind() TagKind
}

// FileType classifies the filesystem object a PathTag refers to, when known.
type FileType string

// File type constants. An empty FileType means the type is unknown.
const (
	FileTypeDir     FileType = "dir"
	FileTypeFile    FileType = "file"
	FileTypeSymlink FileType = "symlink"
	FileTypeOther   FileType = "other"
)

// PathTag marks an event as being about a path in the filesystem. Path is
// always absolute.
type PathTag struct {
	Path     string
	FileType FileType
}

// TagKind implements Tag.
func (PathTag) TagKind() TagKind { return TagKindPath }

// FSKind is the simple classification of a filesystem event.
type FSKind string

// Simple filesystem event kinds.
const (
	FSAccess   FSKind = "access"
	FSCreate   FSKind = "create"
	FSModify   FSKind = "modify"
	FSRemove   FSKind = "remove"
	FSRename   FSKind = "rename"
	FSMetadata FSKind = "metadata"
	FSOther    FSKind = "other"
)

// FSTag carries the kind of a filesystem event. Simple is the coarse bucket
// used for filtering and legacy environment emission; Full preserves the
// backend's richer kind string verbatim.
type FSTag struct {
	Simple FSKind
	Full   string
}

// TagKind implements Tag.
func (FSTag) TagKind() TagKind { return TagKindFS }

// Source is the general origin of an event, set by the event source.
type Source string

// Source constants.
const (
	SourceFilesystem Source = "filesystem"
	SourceKeyboard   Source = "keyboard"
	SourceMouse      Source = "mouse"
	SourceOS         Source = "os"
	SourceTime       Source = "time"
	SourceInternal   Source = "internal"
)

// SourceTag records which source produced the event.
type SourceTag struct {
	Source Source
}

// TagKind implements Tag.
func (SourceTag) TagKind() TagKind { return TagKindSource }

// Keycode identifies a keyboard input: EOF on stdin, or one of the
// single-key interactive commands published by the keyboard source.
type Keycode string

// KeyEOF is emitted when watchexec's own stdin reaches end of file.
const KeyEOF Keycode = "eof"

// KeyboardTag marks an event as keyboard input.
type KeyboardTag struct {
	Keycode Keycode
}

// TagKind implements Tag.
func (KeyboardTag) TagKind() TagKind { return TagKindKeyboard }

// ProcessTag attributes an event to a particular OS process.
type ProcessTag struct {
	PID int
}

// TagKind implements Tag.
func (ProcessTag) TagKind() TagKind { return TagKindProcess }

// SignalTag marks an event as a signal delivered to the main process.
type SignalTag struct {
	Signal Signal
}

// TagKind implements Tag.
func (SignalTag) TagKind() TagKind { return TagKindSignal }

// Event is an immutable record composed of a set of tags plus free-form
// metadata. Metadata cannot be used for filtering; it exists for diagnostics
// (e.g. which backend produced the event).
type Event struct {
	Tags     []Tag
	Metadata map[string][]string
}

// Paths yields all Path tags of the event.
func (e Event) Paths() []PathTag {
	var out []PathTag
	for _, t := range e.Tags {
		if p, ok := t.(PathTag); ok {
			out = append(out, p)
		}
	}
	return out
}

// Signals yields all signals carried by the event.
func (e Event) Signals() []Signal {
	var out []Signal
	for _, t := range e.Tags {
		if s, ok := t.(SignalTag); ok {
			out = append(out, s.Signal)
		}
	}
	return out
}

// Completions yields all process-completion tags of the event.
func (e Event) Completions() []CompletionTag {
	var out []CompletionTag
	for _, t := range e.Tags {
		if c, ok := t.(CompletionTag); ok {
			out = append(out, c)
		}
	}
	return out
}

// Keyboards yields all keyboard tags of the event.
func (e Event) Keyboards() []Keycode {
	var out []Keycode
	for _, t := range e.Tags {
		if k, ok := t.(KeyboardTag); ok {
			out = append(out, k.Keycode)
		}
	}
	return out
}

// FSKinds yields the simple filesystem kinds tagged on the event.
func (e Event) FSKinds() []FSKind {
	var out []FSKind
	for _, t := range e.Tags {
		if f, ok := t.(FSTag); ok {
			out = append(out, f.Simple)
		}
	}
	return out
}

// HasSource reports whether the event carries a Source tag matching any of
// the given sources. With no arguments it reports whether any Source tag is
// present at all.
func (e Event) HasSource(sources ...Source) bool {
	for _, t := range e.Tags {
		s, ok := t.(SourceTag)
		if !ok {
			continue
		}
		if len(sources) == 0 {
			return true
		}
		for _, want := range sources {
			if s.Source == want {
				return true
			}
		}
	}
	return false
}

// IsEmpty reports whether the event carries no tags.
func (e Event) IsEmpty() bool { return len(e.Tags) == 0 }

// AddMetadata returns a copy of the event with the key/value appended.
func (e Event) AddMetadata(key, value string) Event {
	md := make(map[string][]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = append(append([]string(nil), md[key]...), value)
	e.Metadata = md
	return e
}

// String renders a compact human-readable form, used by --print-events.
func (e Event) String() string {
	var b strings.Builder
	for i, t := range e.Tags {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch tag := t.(type) {
		case PathTag:
			b.WriteString(tag.Path)
			if tag.FileType != "" {
				b.WriteString("(" + string(tag.FileType) + ")")
			}
		case FSTag:
			b.WriteString("fs:" + string(tag.Simple))
		case SourceTag:
			b.WriteString("source:" + string(tag.Source))
		case KeyboardTag:
			b.WriteString("key:" + string(tag.Keycode))
		case ProcessTag:
			b.WriteString("pid:" + strconv.Itoa(tag.PID))
		case SignalTag:
			b.WriteString("signal:" + string(tag.Signal))
		case CompletionTag:
			b.WriteString("completion:" + string(tag.Disposition))
		}
	}
	return b.String()
}

// Priority is the class that determines dequeue order. Higher values are
// delivered first; Urgent additionally bypasses filtering and debouncing.
type Priority int

// Priority classes, lowest first.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// NumPriorities is the number of priority classes.
const NumPriorities = 4

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}
