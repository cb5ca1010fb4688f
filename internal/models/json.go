package models

import (
	"encoding/json"
	"fmt"
)

// serdeTag is the flattened wire form of a Tag. All fields except kind are
// optional and omitted when empty, matching the reference event format.
type serdeTag struct {
	Kind TagKind `json:"kind"`

	// path
	Absolute string   `json:"absolute,omitempty"`
	FileType FileType `json:"filetype,omitempty"`

	// fs
	Simple FSKind `json:"simple,omitempty"`
	Full   string `json:"full,omitempty"`

	// source
	Source Source `json:"source,omitempty"`

	// keyboard
	Keycode Keycode `json:"keycode,omitempty"`

	// process
	PID *int `json:"pid,omitempty"`

	// signal
	Signal Signal `json:"signal,omitempty"`

	// completion
	Disposition Disposition `json:"disposition,omitempty"`
	Code        *int64      `json:"code,omitempty"`
}

type serdeEvent struct {
	Tags     []serdeTag          `json:"tags"`
	Metadata map[string][]string `json:"metadata"`
}

// MarshalJSON implements the JSON projection used for json-stdio, json-file,
// and program filters.
func (e Event) MarshalJSON() ([]byte, error) {
	out := serdeEvent{
		Tags:     make([]serdeTag, 0, len(e.Tags)),
		Metadata: e.Metadata,
	}
	if out.Metadata == nil {
		out.Metadata = map[string][]string{}
	}
	for _, t := range e.Tags {
		var st serdeTag
		switch tag := t.(type) {
		case PathTag:
			st = serdeTag{Kind: TagKindPath, Absolute: tag.Path, FileType: tag.FileType}
		case FSTag:
			st = serdeTag{Kind: TagKindFS, Simple: tag.Simple, Full: tag.Full}
		case SourceTag:
			st = serdeTag{Kind: TagKindSource, Source: tag.Source}
		case KeyboardTag:
			st = serdeTag{Kind: TagKindKeyboard, Keycode: tag.Keycode}
		case ProcessTag:
			pid := tag.PID
			st = serdeTag{Kind: TagKindProcess, PID: &pid}
		case SignalTag:
			st = serdeTag{Kind: TagKindSignal, Signal: tag.Signal}
		case CompletionTag:
			st = serdeTag{Kind: TagKindCompletion, Disposition: tag.Disposition, Code: tag.Code, Signal: tag.Signal}
		default:
			return nil, fmt.Errorf("unknown tag kind %T", t)
		}
		out.Tags = append(out.Tags, st)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse projection. Unrecognised tag kinds are
// dropped rather than failing the whole event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in serdeEvent
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	e.Tags = nil
	e.Metadata = in.Metadata
	for _, st := range in.Tags {
		switch st.Kind {
		case TagKindPath:
			e.Tags = append(e.Tags, PathTag{Path: st.Absolute, FileType: st.FileType})
		case TagKindFS:
			e.Tags = append(e.Tags, FSTag{Simple: st.Simple, Full: st.Full})
		case TagKindSource:
			e.Tags = append(e.Tags, SourceTag{Source: st.Source})
		case TagKindKeyboard:
			e.Tags = append(e.Tags, KeyboardTag{Keycode: st.Keycode})
		case TagKindProcess:
			if st.PID != nil {
				e.Tags = append(e.Tags, ProcessTag{PID: *st.PID})
			}
		case TagKindSignal:
			e.Tags = append(e.Tags, SignalTag{Signal: st.Signal})
		case TagKindCompletion:
			e.Tags = append(e.Tags, CompletionTag{Disposition: st.Disposition, Code: st.Code, Signal: st.Signal})
		}
	}
	return nil
}
