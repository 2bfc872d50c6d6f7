package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
)

// Player turns an audio stream into a playing Handle. Playback starts as soon
// as bytes arrive. The player always closes body, including on error.
type Player interface {
	Play(ctx context.Context, body io.ReadCloser, contentType string) (Handle, error)
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// startPlayback runs fn until it returns or the handle is stopped.
func startPlayback(parent context.Context, body io.ReadCloser, fn func(ctx context.Context) error) *playback {
	ctx, cancel := context.WithCancel(parent)
	p := &playback{cancel: cancel, done: make(chan struct{})}
	stopClose := context.AfterFunc(ctx, func() { _ = body.Close() })
	go func() {
		defer close(p.done)
		defer cancel()
		err := fn(ctx)
		if ctx.Err() != nil {
			err = nil
		}
		if stopClose() {
			_ = body.Close()
		}
		p.err = err
	}()
	return p
}

func (p *playback) Stop() {
	p.cancel()
	<-p.done
}

func (p *playback) Done() <-chan struct{} { return p.done }

func (p *playback) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

type discardPlayer struct {
	rate int
}

// NewDiscardPlayer returns a player that consumes audio without output.
// bytesPerSecond paces consumption; zero reads as fast as possible.
func NewDiscardPlayer(bytesPerSecond int) Player {
	return &discardPlayer{rate: bytesPerSecond}
}

func (d *discardPlayer) Play(ctx context.Context, body io.ReadCloser, _ string) (Handle, error) {
	return startPlayback(ctx, body, func(ctx context.Context) error {
		buf := make([]byte, 4096)
		for {
			n, err := body.Read(buf)
			if n > 0 && d.rate > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(n) * time.Second / time.Duration(d.rate)):
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}), nil
}

type execPlayer struct {
	cmd []string
}

// NewExecPlayer plays audio by piping it to command, e.g. "mpg123 -q -".
func NewExecPlayer(command string) (Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (e *execPlayer) Play(ctx context.Context, body io.ReadCloser, _ string) (Handle, error) {
	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		body.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		body.Close()
		return nil, fmt.Errorf("start player: %w", err)
	}
	return startPlayback(ctx, body, func(ctx context.Context) error {
		// A stalled player would block the copy; killing it breaks the pipe.
		stopKill := context.AfterFunc(ctx, func() { _ = cmd.Process.Kill() })
		defer stopKill()
		_, copyErr := io.Copy(stdin, body)
		stdin.Close()
		waitErr := cmd.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if waitErr != nil {
			return fmt.Errorf("player exited: %w", waitErr)
		}
		return copyErr
	}), nil
}
