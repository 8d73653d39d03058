// Package cmd holds the chatbot command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/cache"
	"github.com/xiaot623/gogo/chatbot/internal/config"
	"github.com/xiaot623/gogo/chatbot/internal/logger"
	"github.com/xiaot623/gogo/chatbot/internal/models"
	"github.com/xiaot623/gogo/chatbot/internal/policy"
	"github.com/xiaot623/gogo/chatbot/internal/repository"
	"github.com/xiaot623/gogo/chatbot/internal/service"
)

var (
	databaseFlag string
	providerFlag string
)

// Execute is the main entry point called from main.go.
func Execute() {
	rootCmd := &cobra.Command{
		Use:   "chatbot",
		Short: "Multi-session LLM chat with persistent history",
		Long:  "chatbot stores chat sessions in SQLite and forwards each turn to a hosted LLM API.",
		// Running chatbot with no subcommand starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&databaseFlag, "db", "", "database DSN (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "LLM provider: http, openai or gemini (overrides LLM_PROVIDER)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newModelsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired application shared by the subcommands.
type app struct {
	cfg   *config.Config
	store *repository.SQLiteStore
	svc   *service.Service
}

// loadConfig reads the environment, applies flag overrides and activates the
// model catalog of the configured provider.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if databaseFlag != "" {
		cfg.DatabaseURL = databaseFlag
	}
	if providerFlag != "" {
		cfg.LLMProvider = providerFlag
	}
	logger.Init(cfg.LogLevel)
	if err := models.Use(cfg.LLMProvider); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp opens the store, builds the LLM client and policy engine and loads
// all sessions into the cache.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	llmClient, err := llm.NewLLMClient(ctx, llmOptions(cfg))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	policyEngine, err := policy.NewDefaultEngine(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	svc := service.New(db, cache.New(), llmClient, cfg, policyEngine)
	if err := svc.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: db, svc: svc}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func llmOptions(cfg *config.Config) llm.Options {
	return llm.Options{
		Provider:     cfg.LLMProvider,
		BaseURL:      cfg.LLMBaseURL,
		APIKey:       cfg.LLMAPIKey,
		GeminiAPIKey: cfg.GeminiAPIKey,
		Timeout:      cfg.LLMTimeout,
		MaxRetries:   cfg.LLMMaxRetries,
	}
}
