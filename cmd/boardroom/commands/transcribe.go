package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alecci-media/boardroom/internal/stt"
	"github.com/spf13/cobra"
)

func newTranscribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Turn a recorded WAV file into text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := a.transcribe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, transcript.Text)
			return nil
		},
	}
}

// transcribe uploads a recording and returns its trimmed transcript.
func (a *app) transcribe(ctx context.Context, path string) (stt.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return stt.Transcript{}, err
	}
	defer f.Close()
	var transcript stt.Transcript
	if err := a.upload(ctx, "/api/transcribe", "audio/wav", f, &transcript); err != nil {
		return stt.Transcript{}, err
	}
	if transcript.Text == "" {
		return stt.Transcript{}, errors.New("no speech recognized")
	}
	return transcript, nil
}
