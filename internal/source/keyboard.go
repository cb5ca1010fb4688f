package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/cancelreader"

	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/queue"
)

// Interactive key commands.
const (
	KeyRestart models.Keycode = "r"
	KeyPause   models.Keycode = "p"
	KeyQuit    models.Keycode = "q"
)

// KeyboardConfig selects which stdin behaviours are active.
type KeyboardConfig struct {
	// Interactive enables the single-key commands. Silently disabled when
	// stdin is not a terminal.
	Interactive bool

	// StdinQuit emits an EOF event when watchexec's stdin closes.
	StdinQuit bool
}

// Keyboard reads watchexec's own stdin for interactive commands and EOF.
type Keyboard struct {
	queue *queue.Queue
	cfg   KeyboardConfig
	log   *slog.Logger

	// stdin is swappable for tests
	stdin *os.File
}

// NewKeyboard builds the keyboard source.
func NewKeyboard(q *queue.Queue, cfg KeyboardConfig, log *slog.Logger) *Keyboard {
	if log == nil {
		log = slog.Default()
	}
	return &Keyboard{queue: q, cfg: cfg, log: log, stdin: os.Stdin}
}

// Run reads stdin until EOF or ctx end. When neither interactive mode nor
// stdin-quit is requested, the source exits immediately without touching
// stdin.
func (k *Keyboard) Run(ctx context.Context) error {
	interactive := k.cfg.Interactive
	if interactive && !isatty.IsTerminal(k.stdin.Fd()) {
		k.log.Debug("stdin is not a terminal, disabling interactive mode")
		interactive = false
	}
	if !interactive && !k.cfg.StdinQuit {
		return nil
	}

	reader, err := cancelreader.NewReader(k.stdin)
	if err != nil {
		return models.NewError(models.KindSource, "keyboard-setup", err)
	}
	defer reader.Close()

	go func() {
		<-ctx.Done()
		reader.Cancel()
	}()

	buf := make([]byte, 1)
	for {
		n, err := reader.Read(buf)
		switch {
		case errors.Is(err, cancelreader.ErrCanceled):
			return ctx.Err()
		case errors.Is(err, io.EOF):
			if k.cfg.StdinQuit {
				return k.emit(ctx, models.KeyEOF, models.PriorityHigh)
			}
			return nil
		case err != nil:
			return models.NewError(models.KindSource, "keyboard-read", err)
		case n == 0:
			continue
		}

		if !interactive {
			continue
		}
		switch key := models.Keycode(buf[:n]); key {
		case KeyRestart, KeyPause, KeyQuit:
			if err := k.emit(ctx, key, models.PriorityHigh); err != nil {
				return err
			}
		}
	}
}

func (k *Keyboard) emit(ctx context.Context, key models.Keycode, pri models.Priority) error {
	ev := models.Event{Tags: []models.Tag{
		models.KeyboardTag{Keycode: key},
		models.SourceTag{Source: models.SourceKeyboard},
	}}
	err := k.queue.Send(ctx, ev, pri)
	if errors.Is(err, queue.ErrClosed) {
		return nil
	}
	return err
}
