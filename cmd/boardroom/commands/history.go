package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/spf13/cobra"
)

type historyPage struct {
	Conversations []conversation.Conversation `json:"chats"`
	HasMore       bool                        `json:"hasMore"`
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		before string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tVISIBILITY\tTITLE")
			cursor := before
			for {
				query := url.Values{"limit": {strconv.Itoa(limit)}}
				if cursor != "" {
					query.Set("ending_before", cursor)
				}
				var page historyPage
				if err := a.call(cmd.Context(), http.MethodGet, "/api/history", query, nil, &page); err != nil {
					return err
				}
				for _, c := range page.Conversations {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Visibility, c.Title)
				}
				if !all || !page.HasMore || len(page.Conversations) == 0 {
					if page.HasMore && !all {
						last := page.Conversations[len(page.Conversations)-1]
						fmt.Fprintf(a.errOut, "more available: --before %s\n", last.ID)
					}
					break
				}
				cursor = page.Conversations[len(page.Conversations)-1].ID
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "conversations per page")
	cmd.Flags().StringVar(&before, "before", "", "list conversations older than this conversation id")
	cmd.Flags().BoolVar(&all, "all", false, "follow pages until the end")
	return cmd
}

func newMessagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "Print a conversation's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := a.registry(cmd.Context())
			if err != nil {
				return err
			}
			var msgs []conversation.Message
			if err := a.call(cmd.Context(), http.MethodGet, "/api/chat/"+url.PathEscape(args[0])+"/messages", nil, nil, &msgs); err != nil {
				return err
			}
			newRenderer(a.out, registry, false).transcript(msgs)
			return nil
		},
	}
}
