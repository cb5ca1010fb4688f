//go:build unix

package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchexec/watchexec/internal/action"
	"github.com/watchexec/watchexec/internal/filter"
	"github.com/watchexec/watchexec/internal/output"
	"github.com/watchexec/watchexec/internal/supervisor"
)

func shellCommand(script string) supervisor.Command {
	sh := supervisor.DefaultShell()
	return supervisor.Command{
		Shell:        &sh,
		ShellCommand: script,
		Grouping:     supervisor.GroupProcessGroup,
	}
}

func testWatchexec(cfg Config) (*Watchexec, *bytes.Buffer) {
	var sink bytes.Buffer
	out := output.New(&sink, &sink, output.Options{Color: output.ColorNever, Quiet: true})
	return New(NewLive(cfg), out, nil), &sink
}

func waitForFile(t *testing.T, path string, within time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if raw, err := os.ReadFile(path); err == nil && len(raw) > 0 {
			return string(raw)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s never appeared", path)
	return ""
}

func TestBurstCoalescingRunsCommandOnce(t *testing.T) {
	watched := t.TempDir()
	scratch := t.TempDir()
	marker := filepath.Join(scratch, "runs")

	cfg := Config{
		Roots:    []filter.WatchedPath{{Path: watched, Recursive: true}},
		Filter:   filter.Config{Origin: watched},
		Command:  shellCommand("echo run >> " + marker),
		Debounce: 50 * time.Millisecond,
		Action:   action.Config{Postpone: true},
	}
	w, _ := testWatchexec(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	time.Sleep(150 * time.Millisecond) // watcher setup

	target := filepath.Join(watched, "file.txt")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte(time.Now().String()), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	// all three writes land inside one debounce window → exactly one run
	time.Sleep(400 * time.Millisecond)
	runs := strings.Count(waitForFile(t, marker, time.Second), "run")
	assert.Equal(t, 1, runs)

	cancel()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("orchestrator did not shut down")
	}
}

func TestIgnoredPathsDoNotTrigger(t *testing.T) {
	watched := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(watched, "target"), 0o755))
	scratch := t.TempDir()
	marker := filepath.Join(scratch, "runs")

	cfg := Config{
		Roots: []filter.WatchedPath{{Path: watched, Recursive: true}},
		Filter: filter.Config{
			Origin:      watched,
			IgnoreGlobs: []string{"target/**"},
		},
		Command:  shellCommand("echo run >> " + marker),
		Debounce: 30 * time.Millisecond,
		Action:   action.Config{Postpone: true},
	}
	w, _ := testWatchexec(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(watched, "target", "out.o"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "ignored path must not trigger a run")

	require.NoError(t, os.WriteFile(filepath.Join(watched, "main.rs"), []byte("y"), 0o644))
	waitForFile(t, marker, 2*time.Second)
}

func TestInitialStartAndOnceExitCode(t *testing.T) {
	watched := t.TempDir()

	cfg := Config{
		Roots:    []filter.WatchedPath{{Path: watched, Recursive: true}},
		Filter:   filter.Config{Origin: watched},
		Command:  shellCommand("exit 7"),
		Debounce: 20 * time.Millisecond,
		Action:   action.Config{Once: true},
	}
	w, _ := testWatchexec(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	code, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, code, "once mode exits with the child's code")
}

func TestLiveConfigObserver(t *testing.T) {
	live := NewLive(Config{Debounce: time.Second})

	sub := live.Subscribe()
	assert.Equal(t, time.Second, live.Get().Debounce)

	live.Update(func(c *Config) { c.Debounce = 2 * time.Second })

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not notified")
	}
	assert.Equal(t, 2*time.Second, live.Get().Debounce)
}

func TestLiveConfigDefaults(t *testing.T) {
	live := NewLive(Config{})
	cfg := live.Get()

	assert.Equal(t, 4096, cfg.QueueCapacity)
	assert.Equal(t, supervisor.DefaultStopTimeout, cfg.StopTimeout)
	assert.NotEqual(t, "", cfg.StopSignal)
}
