package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHelpers(t *testing.T) {
	ev := Event{Tags: []Tag{
		PathTag{Path: "/tmp/a", FileType: FileTypeFile},
		PathTag{Path: "/tmp/b"},
		FSTag{Simple: FSModify},
		SourceTag{Source: SourceFilesystem},
		SignalTag{Signal: SigHangup},
	}}

	assert.Len(t, ev.Paths(), 2)
	assert.Equal(t, "/tmp/a", ev.Paths()[0].Path)
	assert.Equal(t, []Signal{SigHangup}, ev.Signals())
	assert.Equal(t, []FSKind{FSModify}, ev.FSKinds())
	assert.True(t, ev.HasSource(SourceFilesystem))
	assert.True(t, ev.HasSource())
	assert.False(t, ev.HasSource(SourceInternal))
	assert.Empty(t, ev.Completions())
	assert.False(t, ev.IsEmpty())
	assert.True(t, Event{}.IsEmpty())
}

func TestEventAddMetadataDoesNotMutate(t *testing.T) {
	orig := Event{Tags: []Tag{SourceTag{Source: SourceInternal}}}
	withMeta := orig.AddMetadata("backend", "fsnotify")

	assert.Nil(t, orig.Metadata)
	assert.Equal(t, []string{"fsnotify"}, withMeta.Metadata["backend"])
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, PriorityLow < PriorityNormal)
	assert.True(t, PriorityNormal < PriorityHigh)
	assert.True(t, PriorityHigh < PriorityUrgent)
	assert.Equal(t, "urgent", PriorityUrgent.String())
}

func TestEventJSONRoundTrip(t *testing.T) {
	code := int64(3)
	ev := Event{
		Tags: []Tag{
			PathTag{Path: "/srv/app", FileType: FileTypeDir},
			FSTag{Simple: FSCreate, Full: "Create(Folder)"},
			SourceTag{Source: SourceFilesystem},
			KeyboardTag{Keycode: KeyEOF},
			ProcessTag{PID: 42},
			SignalTag{Signal: SigInterrupt},
			CompletionTag{Disposition: DispositionError, Code: &code},
		},
		Metadata: map[string][]string{"backend": {"fsnotify"}},
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var back Event
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ev.Tags, back.Tags)
	assert.Equal(t, ev.Metadata, back.Metadata)
}

func TestEventJSONShape(t *testing.T) {
	ev := Event{Tags: []Tag{
		PathTag{Path: "/x", FileType: FileTypeDir},
		FSTag{Simple: FSCreate, Full: "Create(Folder)"},
		SourceTag{Source: SourceFilesystem},
	}}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var shape struct {
		Tags []map[string]any `json:"tags"`
		Meta map[string]any   `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &shape))
	require.Len(t, shape.Tags, 3)

	assert.Equal(t, "path", shape.Tags[0]["kind"])
	assert.Equal(t, "/x", shape.Tags[0]["absolute"])
	assert.Equal(t, "dir", shape.Tags[0]["filetype"])

	assert.Equal(t, "fs", shape.Tags[1]["kind"])
	assert.Equal(t, "create", shape.Tags[1]["simple"])

	assert.Equal(t, "source", shape.Tags[2]["kind"])
	assert.Equal(t, "filesystem", shape.Tags[2]["source"])
	// optional fields of other variants must be absent
	_, hasPID := shape.Tags[0]["pid"]
	assert.False(t, hasPID)
	assert.NotNil(t, shape.Meta)
}

func TestParseSignal(t *testing.T) {
	tt := []struct {
		in   string
		want Signal
	}{
		{"SIGTERM", SigTerminate},
		{"term", SigTerminate},
		{"15", SigTerminate},
		{"sigint", SigInterrupt},
		{"INT", SigInterrupt},
		{"2", SigInterrupt},
		{"HUP", SigHangup},
		{"SIGUSR1", SigUser1},
		{"usr2", SigUser2},
		{"KILL", SigKill},
		{"9", SigKill},
		{"TSTP", SigTerminalSuspend},
	}
	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSignal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseSignal("SIGBOGUS")
	assert.Error(t, err)
	_, err = ParseSignal("")
	assert.Error(t, err)
	_, err = ParseSignal("255")
	assert.Error(t, err)
}

func TestParseSignalMapping(t *testing.T) {
	from, to, err := ParseSignalMapping("INT:HUP")
	require.NoError(t, err)
	assert.Equal(t, SigInterrupt, from)
	assert.Equal(t, SigHangup, to)

	from, to, err = ParseSignalMapping("TERM:")
	require.NoError(t, err)
	assert.Equal(t, SigTerminate, from)
	assert.Equal(t, SigNone, to)

	_, _, err = ParseSignalMapping("TERM")
	assert.Error(t, err)
	_, _, err = ParseSignalMapping("NOPE:TERM")
	assert.Error(t, err)
}

func TestSignalUrgency(t *testing.T) {
	assert.True(t, SigInterrupt.IsUrgent())
	assert.True(t, SigTerminate.IsUrgent())
	assert.True(t, SigQuit.IsUrgent())
	assert.False(t, SigHangup.IsUrgent())
	assert.False(t, SigUser1.IsUrgent())
}

func TestCompletionExitCode(t *testing.T) {
	assert.Equal(t, 0, CompletionSuccess().ExitCode())
	assert.Equal(t, 3, CompletionError(3).ExitCode())
	assert.Equal(t, 128+15, CompletionSignal(SigTerminate).ExitCode())
	assert.Equal(t, 0, CompletionTag{Disposition: DispositionContinued}.ExitCode())
}

func TestErrorDiagnostic(t *testing.T) {
	err := WatchLimitError(assert.AnError)
	assert.Equal(t, KindWatcher, KindOf(err))
	assert.Equal(t, "fs-watch-limit", err.ErrorCode())
	assert.Contains(t, err.SuggestedAction(), "max_user_watches")
	assert.False(t, IsCritical(err))

	crit := NewError(KindCritical, "queue-closed", assert.AnError).WithContext("stage", "debounce")
	assert.True(t, IsCritical(crit))
	assert.Equal(t, "debounce", crit.Context()["stage"])
	assert.Equal(t, KindCritical, KindOf(assert.AnError))
}
