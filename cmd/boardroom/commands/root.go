// Package commands implements the boardroom CLI using cobra.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "boardroom",
		Short: "Consult the boardroom advisors from the terminal",
		Long: `boardroom talks to a boardroomd server. Each reply comes from one of
the advisor personas; switch between them mid-conversation.

Examples:
  boardroom chat "How should we price the pilot?"
  boardroom chat --persona kim
  boardroom history
  boardroom speak --persona alexandria "Welcome to the board."`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.setup(cmd.ErrOrStderr(), cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(
		newChatCmd(a),
		newResumeCmd(a),
		newPersonasCmd(a),
		newHistoryCmd(a),
		newMessagesCmd(a),
		newDeleteCmd(a),
		newVoteCmd(a),
		newSpeakCmd(a),
		newTranscribeCmd(a),
	)

	server := os.Getenv("BOARDROOM_SERVER")
	if server == "" {
		server = defaultServer
	}
	user := os.Getenv("BOARDROOM_USER")
	if user == "" {
		user = "guest"
	}
	rootCmd.PersistentFlags().StringVarP(&a.server, "server", "s", server, "boardroomd base URL")
	rootCmd.PersistentFlags().StringVarP(&a.user, "user", "u", user, "user id sent with every request")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")

	return rootCmd
}
