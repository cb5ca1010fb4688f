package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/watchexec/watchexec/internal/models"
)

// Program is one user filter program: a POSIX shell snippet evaluated per
// event. The event's JSON projection arrives on stdin and in
// $WATCHEXEC_EVENT; exit status zero accepts the event.
type Program struct {
	name string
	file *syntax.File
}

// CompileProgram parses the program source once. name is used in
// diagnostics; pass the source itself or a file path.
func CompileProgram(name, src string) (*Program, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, models.NewError(models.KindConfiguration, "filter-prog-parse",
			fmt.Errorf("parsing filter program %q: %w", name, err))
	}
	return &Program{name: name, file: file}, nil
}

// Name returns the diagnostic label of the program.
func (p *Program) Name() string { return p.name }

// Accept evaluates the program against one event. A runner is built per call
// because runners are not safe for reuse across concurrent evaluations.
func (p *Program) Accept(ctx context.Context, ev models.Event) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, models.NewError(models.KindFilter, "filter-prog-encode", err)
	}

	env := append(os.Environ(), "WATCHEXEC_EVENT="+string(payload))
	var stderr bytes.Buffer
	runner, err := interp.New(
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(bytes.NewReader(payload), io.Discard, &stderr),
	)
	if err != nil {
		return false, models.NewError(models.KindFilter, "filter-prog-setup", err)
	}

	err = runner.Run(ctx, p.file)
	if err == nil {
		return true, nil
	}
	if _, ok := interp.IsExitStatus(err); ok {
		return false, nil
	}
	return false, models.NewError(models.KindFilter, "filter-prog-run", err).
		WithContext("stderr", stderr.String())
}
