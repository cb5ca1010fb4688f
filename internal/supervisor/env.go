package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/watchexec/watchexec/internal/models"
)

// EmitMode selects how triggering events are described to the child.
type EmitMode string

// Emission modes.
const (
	EmitNone        EmitMode = "none"
	EmitEnvironment EmitMode = "environment"
	EmitStdio       EmitMode = "stdio"
	EmitJSONStdio   EmitMode = "json-stdio"
	EmitFile        EmitMode = "file"
	EmitJSONFile    EmitMode = "json-file"
)

// ParseEmitMode validates an --emit-events-to value.
func ParseEmitMode(s string) (EmitMode, error) {
	switch m := EmitMode(strings.ToLower(strings.TrimSpace(s))); m {
	case EmitNone, EmitEnvironment, EmitStdio, EmitJSONStdio, EmitFile, EmitJSONFile:
		return m, nil
	case "":
		return EmitNone, nil
	default:
		return EmitNone, models.NewError(models.KindConfiguration, "emit-mode-unknown",
			fmt.Errorf("unknown emit-events-to mode %q", s))
	}
}

// envKeyForKind maps a filesystem kind to its legacy variable name.
func envKeyForKind(kind models.FSKind) string {
	switch kind {
	case models.FSCreate:
		return "WATCHEXEC_CREATED_PATH"
	case models.FSRemove:
		return "WATCHEXEC_REMOVED_PATH"
	case models.FSRename:
		return "WATCHEXEC_RENAMED_PATH"
	case models.FSModify:
		return "WATCHEXEC_WRITTEN_PATH"
	case models.FSMetadata:
		return "WATCHEXEC_META_CHANGED_PATH"
	default:
		return "WATCHEXEC_OTHERWISE_CHANGED_PATH"
	}
}

// SummariseToEnv collects the batch's paths into the legacy per-kind
// variables. A path is listed under every kind bucket its event carries.
// When more than one distinct path is present, the longest common prefix is
// split off into WATCHEXEC_COMMON_PATH and the per-kind lists hold the
// remainders. Lists are deduplicated, sorted bytewise, and joined with the
// platform list separator.
func SummariseToEnv(events []models.Event) map[string]string {
	byKey := make(map[string]map[string]struct{})
	unique := make(map[string]struct{})

	for _, ev := range events {
		kinds := ev.FSKinds()
		for _, p := range ev.Paths() {
			if len(kinds) == 0 {
				continue
			}
			unique[p.Path] = struct{}{}
			for _, kind := range kinds {
				key := envKeyForKind(kind)
				if byKey[key] == nil {
					byKey[key] = make(map[string]struct{})
				}
				byKey[key][p.Path] = struct{}{}
			}
		}
	}
	if len(byKey) == 0 {
		return nil
	}

	var common string
	if len(unique) > 1 {
		all := make([]string, 0, len(unique))
		for p := range unique {
			all = append(all, p)
		}
		common = commonPrefix(all)
	}

	out := make(map[string]string, len(byKey)+1)
	if common != "" {
		out["WATCHEXEC_COMMON_PATH"] = common
	}
	for key, paths := range byKey {
		list := make([]string, 0, len(paths))
		for p := range paths {
			if common != "" {
				p = strings.TrimPrefix(p, common)
			}
			list = append(list, p)
		}
		sort.Strings(list)
		out[key] = strings.Join(list, string(os.PathListSeparator))
	}
	return out
}

// commonPrefix returns the longest common path prefix, component-wise.
func commonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	longest := strings.Split(filepath.Clean(paths[0]), string(filepath.Separator))
	for _, p := range paths[1:] {
		parts := strings.Split(filepath.Clean(p), string(filepath.Separator))
		var keep int
		for keep = 0; keep < len(longest) && keep < len(parts); keep++ {
			if longest[keep] != parts[keep] {
				break
			}
		}
		longest = longest[:keep]
	}
	joined := strings.Join(longest, string(filepath.Separator))
	if joined == "" {
		return ""
	}
	return joined
}

// SimpleFormat renders the batch as the newline-delimited `kind:path` lines
// used by the stdio and file emission modes.
func SimpleFormat(events []models.Event) string {
	var b strings.Builder
	for _, ev := range events {
		kinds := ev.FSKinds()
		for _, p := range ev.Paths() {
			if len(kinds) == 0 {
				b.WriteString("other:" + p.Path + "\n")
				continue
			}
			for _, kind := range kinds {
				simple := string(kind)
				switch kind {
				case models.FSRename, models.FSMetadata, models.FSOther:
					simple = "other"
				}
				b.WriteString(simple + ":" + p.Path + "\n")
			}
		}
	}
	return b.String()
}

// JSONLines renders the batch as one JSON event per line, skipping empty
// events.
func JSONLines(events []models.Event) ([]byte, error) {
	var b strings.Builder
	for _, ev := range events {
		if ev.IsEmpty() {
			continue
		}
		raw, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		b.Write(raw)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// EventsFile is the rotating temp file behind WATCHEXEC_EVENTS_FILE: one
// file per watchexec run, truncated before each batch.
type EventsFile struct {
	path string
}

// NewEventsFile creates the temp file.
func NewEventsFile() (*EventsFile, error) {
	f, err := os.CreateTemp("", "watchexec-events-*")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &EventsFile{path: path}, nil
}

// Path returns the file's location.
func (f *EventsFile) Path() string { return f.path }

// Rotate truncates and rewrites the file with the given payload.
func (f *EventsFile) Rotate(payload []byte) error {
	return os.WriteFile(f.path, payload, 0o600)
}

// Close removes the file.
func (f *EventsFile) Close() error {
	return os.Remove(f.path)
}

// RunPayload is everything the supervisor injects into one child run to
// describe its triggering events.
type RunPayload struct {
	// Env is merged into the child environment.
	Env map[string]string

	// Stdin, when non-nil, is written to the child's stdin which is then
	// closed.
	Stdin []byte
}

// BuildPayload computes the injection for a batch under the given mode. The
// events file is only used by the file modes and may be nil otherwise.
func BuildPayload(mode EmitMode, events []models.Event, file *EventsFile) (RunPayload, error) {
	switch mode {
	case EmitEnvironment:
		return RunPayload{Env: SummariseToEnv(events)}, nil

	case EmitStdio:
		return RunPayload{Stdin: []byte(SimpleFormat(events))}, nil

	case EmitJSONStdio:
		lines, err := JSONLines(events)
		if err != nil {
			return RunPayload{}, models.NewError(models.KindProcess, "emit-encode", err)
		}
		return RunPayload{Stdin: lines}, nil

	case EmitFile:
		if err := file.Rotate([]byte(SimpleFormat(events))); err != nil {
			return RunPayload{}, models.NewError(models.KindProcess, "emit-file", err)
		}
		return RunPayload{Env: map[string]string{"WATCHEXEC_EVENTS_FILE": file.Path()}}, nil

	case EmitJSONFile:
		lines, err := JSONLines(events)
		if err != nil {
			return RunPayload{}, models.NewError(models.KindProcess, "emit-encode", err)
		}
		if err := file.Rotate(lines); err != nil {
			return RunPayload{}, models.NewError(models.KindProcess, "emit-file", err)
		}
		return RunPayload{Env: map[string]string{"WATCHEXEC_EVENTS_FILE": file.Path()}}, nil

	default:
		return RunPayload{}, nil
	}
}
