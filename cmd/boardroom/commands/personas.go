package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPersonasCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the advisors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			views, err := a.personas(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tEXPERTISE")
			for _, v := range views {
				id := string(v.ID)
				if v.Default {
					id += " (default)"
				}
				expertise := strings.Join(v.Expertise, ", ")
				if v.Composite {
					members := make([]string, len(v.Members))
					for i, m := range v.Members {
						members[i] = string(m)
					}
					expertise = "with " + strings.Join(members, " + ")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, v.Name, v.Role, expertise)
			}
			return w.Flush()
		},
	}
}
