package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alecci-media/boardroom/internal/audio"
	"github.com/alecci-media/boardroom/internal/bus"
	"github.com/alecci-media/boardroom/internal/config"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/speech"
	"github.com/alecci-media/boardroom/internal/tts"
	"github.com/spf13/cobra"
)

const (
	defaultPlayer      = "ffplay -nodisp -autoexit -loglevel quiet -"
	busConnectTimeout  = 5000
	discardPlayerValue = "discard"
)

type voiceOptions struct {
	player  string
	natsURL string
	speaker string
}

func (o *voiceOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.player, "player", defaultPlayer, `command that plays audio from stdin, or "discard"`)
	cmd.Flags().StringVar(&o.natsURL, "nats", "", "publish audio to a remote speaker over NATS instead of playing it")
	cmd.Flags().StringVar(&o.speaker, "speaker", "", "remote speaker name used with --nats")
}

// voice is the local playback stack: one arbiter shared by every controller
// so manual and automatic speech never overlap.
type voice struct {
	arbiter     *audio.Arbiter
	player      audio.Player
	synth       tts.Synthesizer
	bus         *bus.Client
	changed     chan struct{}
	unsubscribe func()
}

func (a *app) openVoice(ctx context.Context, opts voiceOptions) (*voice, error) {
	v := &voice{
		arbiter: audio.NewArbiter(a.logger),
		synth:   tts.NewRemote(a.baseURL(), a.user, a.client),
		changed: make(chan struct{}, 1),
	}
	v.unsubscribe = v.arbiter.Subscribe(func(playing bool, source audio.Source) {
		a.logger.Debug("playback changed", slog.Bool("playing", playing), slog.String("source", string(source)))
		v.signal()
	})
	switch {
	case opts.natsURL != "":
		client, err := bus.Connect(ctx, config.BusConfig{
			Servers:        strings.Split(opts.natsURL, ","),
			ConnectTimeout: busConnectTimeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		v.bus = client
		v.player = audio.NewBusPlayer(client, opts.speaker, a.logger)
	case opts.player == discardPlayerValue:
		v.player = audio.NewDiscardPlayer(0)
	default:
		player, err := audio.NewExecPlayer(opts.player)
		if err != nil {
			return nil, err
		}
		v.player = player
	}
	return v, nil
}

func (v *voice) controller(a *app, registry *persona.Registry, source audio.Source) *speech.Controller {
	return speech.NewController(v.synth, v.player, v.arbiter, registry, speech.Options{
		Source:   source,
		OnChange: func(speech.State, error) { v.signal() },
		Logger:   a.logger,
	})
}

func (v *voice) signal() {
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

// wait blocks until none of ctrls is fetching audio and the arbiter's slot
// is empty. It wakes on controller and arbiter transitions only.
func (v *voice) wait(ctx context.Context, ctrls ...*speech.Controller) {
	for v.busy(ctrls) {
		select {
		case <-v.changed:
		case <-ctx.Done():
			return
		}
	}
}

func (v *voice) busy(ctrls []*speech.Controller) bool {
	if playing, _ := v.arbiter.Playing(); playing {
		return true
	}
	for _, c := range ctrls {
		if c == nil {
			continue
		}
		if state, _ := c.State(); state == speech.StateLoading || c.Speaking() {
			return true
		}
	}
	return false
}

func (v *voice) Close() {
	v.unsubscribe()
	v.arbiter.StopAll()
	if v.bus != nil {
		_ = v.bus.Flush()
		v.bus.Close()
	}
}
