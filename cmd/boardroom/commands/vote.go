package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/spf13/cobra"
)

func newVoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vote <conversation-id> <message-id> up|down",
		Short: "Rate an assistant reply",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[2] != "up" && args[2] != "down" {
				return fmt.Errorf("vote must be up or down, got %q", args[2])
			}
			req := protocol.VoteRequest{ConversationID: args[0], MessageID: args[1], Type: args[2]}
			var vote conversation.Vote
			if err := a.call(cmd.Context(), http.MethodPost, "/api/vote", nil, req, &vote); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "voted %s on %s\n", args[2], vote.MessageID)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <conversation-id>",
		Short: "Show the votes recorded in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var votes []conversation.Vote
			query := url.Values{"chatId": {args[0]}}
			if err := a.call(cmd.Context(), http.MethodGet, "/api/vote", query, nil, &votes); err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MESSAGE\tVOTE")
			for _, v := range votes {
				kind := "down"
				if v.Up {
					kind = "up"
				}
				fmt.Fprintf(w, "%s\t%s\n", v.MessageID, kind)
			}
			return w.Flush()
		},
	})
	return cmd
}
