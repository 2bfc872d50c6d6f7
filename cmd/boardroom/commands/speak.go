package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecci-media/boardroom/internal/audio"
	"github.com/alecci-media/boardroom/internal/speech"
	"github.com/spf13/cobra"
)

func newSpeakCmd(a *app) *cobra.Command {
	var (
		personaID string
		voiceOpts voiceOptions
	)
	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Read text aloud in an advisor's voice",
		Long: `Synthesizes text through the server's voice endpoint and plays it.
Markdown is stripped before synthesis. Without arguments the text is read
from stdin.

Examples:
  boardroom speak --persona kim "Let's review the quarter."
  echo "Hello" | boardroom speak --player discard`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(raw)
			}
			return runSpeak(cmd.Context(), a, personaID, voiceOpts, text)
		},
	}
	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "voice to use (default: the server default persona)")
	voiceOpts.register(cmd)
	return cmd
}

func runSpeak(ctx context.Context, a *app, personaID string, opts voiceOptions, text string) error {
	registry, err := a.registry(ctx)
	if err != nil {
		return err
	}
	id := registry.Default()
	if personaID != "" {
		if id, err = registry.Parse(personaID); err != nil {
			return err
		}
	}

	v, err := a.openVoice(ctx, opts)
	if err != nil {
		return err
	}
	defer v.Close()
	ctrl := v.controller(a, registry, audio.SourceManual)
	defer ctrl.Close()

	select {
	case <-ctrl.Play(ctx, text, id):
	case <-ctx.Done():
		return ctx.Err()
	}
	if state, err := ctrl.State(); state == speech.StateError {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}
