package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Print a session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.svc.ExportSession(ctx, sessionID)
			if err != nil {
				return err
			}
			data, err := a.svc.MarshalExport(doc)
			if err != nil {
				return err
			}

			if outFile == "" {
				_, err = fmt.Fprintln(os.Stdout, string(data))
				return err
			}
			if outFile == "-" {
				outFile = doc.FileName()
			}
			if err := os.WriteFile(outFile, data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Exported session %d to %s\n", sessionID, outFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write to a file instead of stdout (\"-\" uses chat_session_<id>.json)")
	return cmd
}
