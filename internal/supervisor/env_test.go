package supervisor

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchexec/watchexec/internal/models"
)

func fsEvent(path string, kind models.FSKind) models.Event {
	return models.Event{Tags: []models.Tag{
		models.PathTag{Path: path},
		models.FSTag{Simple: kind},
		models.SourceTag{Source: models.SourceFilesystem},
	}}
}

func TestSummariseToEnvSinglePath(t *testing.T) {
	env := SummariseToEnv([]models.Event{fsEvent("/proj/src/main.rs", models.FSModify)})

	assert.Equal(t, "/proj/src/main.rs", env["WATCHEXEC_WRITTEN_PATH"])
	_, hasCommon := env["WATCHEXEC_COMMON_PATH"]
	assert.False(t, hasCommon, "no common path for a single path")
}

func TestSummariseToEnvCommonPrefix(t *testing.T) {
	env := SummariseToEnv([]models.Event{
		fsEvent("/tmp/logs/one.log", models.FSCreate),
		fsEvent("/tmp/logs/two/file.log", models.FSModify),
	})

	assert.Equal(t, "/tmp/logs", env["WATCHEXEC_COMMON_PATH"])
	assert.Equal(t, "/one.log", env["WATCHEXEC_CREATED_PATH"])
	assert.Equal(t, "/two/file.log", env["WATCHEXEC_WRITTEN_PATH"])
}

func TestSummariseToEnvDedupAndSort(t *testing.T) {
	env := SummariseToEnv([]models.Event{
		fsEvent("/p/b.txt", models.FSModify),
		fsEvent("/p/a.txt", models.FSModify),
		fsEvent("/p/b.txt", models.FSModify),
	})

	want := strings.Join([]string{"/a.txt", "/b.txt"}, string(os.PathListSeparator))
	assert.Equal(t, want, env["WATCHEXEC_WRITTEN_PATH"])
}

func TestSummariseToEnvMultiKindEvent(t *testing.T) {
	// one event tagged both create and modify lists the path in both buckets
	ev := models.Event{Tags: []models.Tag{
		models.PathTag{Path: "/p/x"},
		models.FSTag{Simple: models.FSCreate},
		models.FSTag{Simple: models.FSModify},
	}}
	env := SummariseToEnv([]models.Event{ev})

	assert.Equal(t, "/p/x", env["WATCHEXEC_CREATED_PATH"])
	assert.Equal(t, "/p/x", env["WATCHEXEC_WRITTEN_PATH"])
}

func TestSummariseKindBuckets(t *testing.T) {
	env := SummariseToEnv([]models.Event{
		fsEvent("/p/created", models.FSCreate),
		fsEvent("/p/removed", models.FSRemove),
		fsEvent("/p/renamed", models.FSRename),
		fsEvent("/p/meta", models.FSMetadata),
		fsEvent("/p/other", models.FSOther),
	})

	assert.Contains(t, env["WATCHEXEC_CREATED_PATH"], "created")
	assert.Contains(t, env["WATCHEXEC_REMOVED_PATH"], "removed")
	assert.Contains(t, env["WATCHEXEC_RENAMED_PATH"], "renamed")
	assert.Contains(t, env["WATCHEXEC_META_CHANGED_PATH"], "meta")
	assert.Contains(t, env["WATCHEXEC_OTHERWISE_CHANGED_PATH"], "other")
}

func TestSimpleFormat(t *testing.T) {
	out := SimpleFormat([]models.Event{
		fsEvent("/p/new", models.FSCreate),
		fsEvent("/p/changed", models.FSModify),
		fsEvent("/p/meta", models.FSMetadata),
	})

	assert.Equal(t, "create:/p/new\nmodify:/p/changed\nother:/p/meta\n", out)
}

func TestJSONLines(t *testing.T) {
	lines, err := JSONLines([]models.Event{
		fsEvent("/p/a", models.FSCreate),
		{},
		fsEvent("/p/b", models.FSRemove),
	})
	require.NoError(t, err)

	split := strings.Split(strings.TrimSuffix(string(lines), "\n"), "\n")
	require.Len(t, split, 2, "empty events are skipped")

	var ev models.Event
	require.NoError(t, json.Unmarshal([]byte(split[0]), &ev))
	assert.Equal(t, "/p/a", ev.Paths()[0].Path)
}

func TestBuildPayloadModes(t *testing.T) {
	events := []models.Event{fsEvent("/p/x", models.FSModify)}

	p, err := BuildPayload(EmitNone, events, nil)
	require.NoError(t, err)
	assert.Empty(t, p.Env)
	assert.Nil(t, p.Stdin)

	p, err = BuildPayload(EmitEnvironment, events, nil)
	require.NoError(t, err)
	assert.Equal(t, "/p/x", p.Env["WATCHEXEC_WRITTEN_PATH"])

	p, err = BuildPayload(EmitStdio, events, nil)
	require.NoError(t, err)
	assert.Equal(t, "modify:/p/x\n", string(p.Stdin))

	p, err = BuildPayload(EmitJSONStdio, events, nil)
	require.NoError(t, err)
	assert.Contains(t, string(p.Stdin), `"kind":"path"`)

	file, err := NewEventsFile()
	require.NoError(t, err)
	defer file.Close()

	p, err = BuildPayload(EmitJSONFile, events, file)
	require.NoError(t, err)
	assert.Equal(t, file.Path(), p.Env["WATCHEXEC_EVENTS_FILE"])

	raw, err := os.ReadFile(file.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"absolute":"/p/x"`)
}

func TestEventsFileRotates(t *testing.T) {
	file, err := NewEventsFile()
	require.NoError(t, err)
	defer file.Close()

	require.NoError(t, file.Rotate([]byte("first\n")))
	require.NoError(t, file.Rotate([]byte("second\n")))

	raw, err := os.ReadFile(file.Path())
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(raw))
}

func TestParseEmitMode(t *testing.T) {
	m, err := ParseEmitMode("JSON-STDIO")
	require.NoError(t, err)
	assert.Equal(t, EmitJSONStdio, m)

	m, err = ParseEmitMode("")
	require.NoError(t, err)
	assert.Equal(t, EmitNone, m)

	_, err = ParseEmitMode("carrier-pigeon")
	assert.Error(t, err)
}

func TestParseSocketSpec(t *testing.T) {
	s, err := ParseSocketSpec("18080")
	require.NoError(t, err)
	assert.Equal(t, "tcp", s.Type)
	assert.Equal(t, "127.0.0.1:18080", s.Addr)

	s, err = ParseSocketSpec("udp::0.0.0.0:9000")
	require.NoError(t, err)
	assert.Equal(t, "udp", s.Type)
	assert.Equal(t, "0.0.0.0:9000", s.Addr)

	_, err = ParseSocketSpec("sctp::1:2")
	assert.Error(t, err)
	_, err = ParseSocketSpec("not-an-addr")
	assert.Error(t, err)
}

func TestSocketSetEnv(t *testing.T) {
	set, err := OpenSockets([]string{"127.0.0.1:0", "127.0.0.1:0"})
	require.NoError(t, err)
	defer set.Close()

	env := set.Env()
	assert.Equal(t, "2", env["LISTEN_FDS"])
	assert.Equal(t, "3", env["LISTEN_FDS_FIRST_FD"])
	assert.Len(t, set.Files(), 2)

	var empty *SocketSet
	assert.Nil(t, empty.Env())
	assert.Nil(t, empty.Files())
}
