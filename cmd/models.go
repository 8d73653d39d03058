package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/models"
)

func newModelsCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				return listRemoteModels()
			}
			if _, err := loadConfig(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDEVELOPER\tCONTEXT\tMAX OUTPUT\tDEFAULT")
			for _, m := range models.List() {
				def := ""
				if m.ID == models.Default() {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", m.ID, m.Developer, m.ContextWindow, m.MaxCompletion, def)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the configured provider instead")
	return cmd
}

func listRemoteModels() error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := llm.NewLLMClient(ctx, llmOptions(cfg))
	if err != nil {
		return err
	}

	list, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range list {
		fmt.Println(m.ID)
	}
	return nil
}
