package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(context.Background())
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tMODEL\tTITLE")
			for _, s := range a.svc.ListSessions() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.CreatedAt, s.ModelID, s.Title)
			}
			return w.Flush()
		},
	}
}
