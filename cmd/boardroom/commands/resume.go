package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecci-media/boardroom/internal/session"
	"github.com/spf13/cobra"
)

func newResumeCmd(a *app) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "resume <conversation-id>",
		Short: "Reattach to a reply that is still being generated",
		Long: `Prints the rest of a reply that was interrupted on the client side,
for example by a dropped connection. Exits once the reply completes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.conversationID = args[0]
			return runResume(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.speak, "speak", false, "read the reply aloud once it completes")
	cmd.Flags().BoolVar(&opts.usage, "usage", false, "print token usage after the reply")
	opts.voice.register(cmd)
	return cmd
}

func runResume(ctx context.Context, a *app, opts *chatOptions) error {
	s, err := a.openChat(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	// A finished reply is already in the transcript; replaying it would
	// read it aloud a second time.
	if !s.orch.AwaitingReply() {
		fmt.Fprintln(a.errOut, "nothing to resume")
		return nil
	}
	if err := s.orch.Resume(ctx); err != nil {
		if errors.Is(err, session.ErrNoActiveStream) {
			fmt.Fprintln(a.errOut, "nothing to resume")
			return nil
		}
		return err
	}
	err = s.orch.Wait(ctx)
	s.waitSpeech(ctx)
	return err
}
