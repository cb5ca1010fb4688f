package filter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchexec/watchexec/internal/models"
)

func pathEvent(abs string, kind models.FSKind) models.Event {
	return models.Event{Tags: []models.Tag{
		models.PathTag{Path: abs},
		models.FSTag{Simple: kind},
		models.SourceTag{Source: models.SourceFilesystem},
	}}
}

func TestKindMask(t *testing.T) {
	s := NewStack(Config{}, nil)
	ctx := context.Background()

	assert.False(t, s.Accept(ctx, pathEvent("/p/a.go", models.FSAccess)), "access is off by default")
	assert.True(t, s.Accept(ctx, pathEvent("/p/a.go", models.FSModify)))

	only := map[models.FSKind]bool{models.FSCreate: true}
	s = NewStack(Config{Kinds: only}, nil)
	assert.True(t, s.Accept(ctx, pathEvent("/p/a.go", models.FSCreate)))
	assert.False(t, s.Accept(ctx, pathEvent("/p/a.go", models.FSModify)))

	// non-fs events pass the mask
	sig := models.Event{Tags: []models.Tag{models.SignalTag{Signal: models.SigHangup}}}
	assert.True(t, s.Accept(ctx, sig))
}

func TestWatchRestriction(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Roots: []WatchedPath{
		{Path: "/proj/src", Recursive: true},
		{Path: "/proj/flat", Recursive: false},
	}}
	s := NewStack(cfg, nil)

	tt := []struct {
		name string
		path string
		want bool
	}{
		{"inside recursive root", "/proj/src/deep/down/f.go", true},
		{"recursive root itself", "/proj/src", true},
		{"direct child of flat root", "/proj/flat/f.txt", true},
		{"nested under flat root", "/proj/flat/sub/f.txt", false},
		{"outside all roots", "/elsewhere/f.go", false},
		{"prefix but not child", "/proj/srcx/f.go", false},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Accept(ctx, pathEvent(tc.path, models.FSModify)))
		})
	}
}

func TestIgnoreGlobs(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Origin:      "/proj",
		IgnoreGlobs: []string{"target/**", "*.swp"},
	}
	s := NewStack(cfg, nil)

	assert.False(t, s.Accept(ctx, pathEvent("/proj/target/out.o", models.FSModify)))
	assert.False(t, s.Accept(ctx, pathEvent("/proj/src/.main.swp", models.FSModify)))
	assert.True(t, s.Accept(ctx, pathEvent("/proj/src/main.rs", models.FSModify)))
}

func TestIgnoreNeedsAllPathsIgnored(t *testing.T) {
	ctx := context.Background()
	s := NewStack(Config{Origin: "/proj", IgnoreGlobs: []string{"target/**"}}, nil)

	ev := models.Event{Tags: []models.Tag{
		models.PathTag{Path: "/proj/target/out.o"},
		models.PathTag{Path: "/proj/src/main.rs"},
		models.FSTag{Simple: models.FSModify},
	}}
	assert.True(t, s.Accept(ctx, ev), "one surviving path keeps the event")
}

func TestAllowFilters(t *testing.T) {
	ctx := context.Background()

	s := NewStack(Config{Origin: "/proj", Extensions: []string{"go", "rs"}}, nil)
	assert.True(t, s.Accept(ctx, pathEvent("/proj/main.go", models.FSModify)))
	assert.True(t, s.Accept(ctx, pathEvent("/proj/lib.RS", models.FSModify)))
	assert.False(t, s.Accept(ctx, pathEvent("/proj/notes.txt", models.FSModify)))

	s = NewStack(Config{Origin: "/proj", AllowGlobs: []string{"src/**/*.c"}}, nil)
	assert.True(t, s.Accept(ctx, pathEvent("/proj/src/a/b.c", models.FSModify)))
	assert.False(t, s.Accept(ctx, pathEvent("/proj/src/a/b.h", models.FSModify)))

	// non-path events pass even with allow filters set
	sig := models.Event{Tags: []models.Tag{models.SignalTag{Signal: models.SigUser1}}}
	assert.True(t, s.Accept(ctx, sig))
}

func TestIgnoreFileScoping(t *testing.T) {
	ctx := context.Background()
	nested := IgnoreFile{
		Dir:   "/proj/sub",
		Rules: ParseIgnoreLines([]string{"# build junk", "", "*.o", "!keep.o"}),
	}
	s := NewStack(Config{Origin: "/proj", IgnoreFiles: []IgnoreFile{nested}}, nil)

	assert.False(t, s.Accept(ctx, pathEvent("/proj/sub/x.o", models.FSModify)))
	assert.True(t, s.Accept(ctx, pathEvent("/proj/sub/keep.o", models.FSModify)), "negated rule re-allows")
	assert.True(t, s.Accept(ctx, pathEvent("/proj/x.o", models.FSModify)), "rule scoped to its directory")
}

func TestLoadIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".ignore")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\n*.log\n!important.log\n"), 0o644))

	f, err := LoadIgnoreFile(path)
	require.NoError(t, err)
	assert.Equal(t, dir, f.Dir)
	require.Len(t, f.Rules, 2)
	assert.Equal(t, IgnoreRule{Pattern: "*.log"}, f.Rules[0])
	assert.Equal(t, IgnoreRule{Pattern: "important.log", Negate: true}, f.Rules[1])

	assert.True(t, f.Ignores(filepath.Join(dir, "a.log")))
	assert.False(t, f.Ignores(filepath.Join(dir, "important.log")))
}

func TestStageOrderIgnoreBeforeAllow(t *testing.T) {
	// a path matching both an ignore glob and an allow glob is rejected:
	// the ignore stage runs first
	ctx := context.Background()
	s := NewStack(Config{
		Origin:      "/proj",
		IgnoreGlobs: []string{"*.go"},
		AllowGlobs:  []string{"*.go"},
	}, nil)

	assert.False(t, s.Accept(ctx, pathEvent("/proj/main.go", models.FSModify)))
}

func TestProgramFilter(t *testing.T) {
	ctx := context.Background()

	accept, err := CompileProgram("accept-all", "true")
	require.NoError(t, err)
	reject, err := CompileProgram("reject-all", "false")
	require.NoError(t, err)
	grep, err := CompileProgram("only-create", `grep -q '"simple":"create"'`)
	require.NoError(t, err)

	ok, err := accept.Accept(ctx, pathEvent("/p/x", models.FSModify))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reject.Accept(ctx, pathEvent("/p/x", models.FSModify))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = grep.Accept(ctx, pathEvent("/p/x", models.FSCreate))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = grep.Accept(ctx, pathEvent("/p/x", models.FSRemove))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CompileProgram("broken", "if then fi")
	assert.Error(t, err)
}

func TestProgramFilterEnvPayload(t *testing.T) {
	ctx := context.Background()
	prog, err := CompileProgram("env-check", `case "$WATCHEXEC_EVENT" in *'"kind":"path"'*) exit 0;; *) exit 1;; esac`)
	require.NoError(t, err)

	ok, err := prog.Accept(ctx, pathEvent("/p/x", models.FSModify))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProgramFilterErrorRejects(t *testing.T) {
	ctx := context.Background()
	prog, err := CompileProgram("boom", "definitely-not-a-command-xyz")
	require.NoError(t, err)

	s := NewStack(Config{Programs: []*Program{prog}}, nil)
	assert.False(t, s.Accept(ctx, pathEvent("/p/x", models.FSModify)))
}
