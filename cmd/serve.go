package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/chatbot/internal/logger"
	handler "github.com/xiaot623/gogo/chatbot/internal/transport/http"
	"github.com/xiaot623/gogo/chatbot/internal/transport/rpc"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Starts the JSON HTTP API, and the JSON-RPC listener when RPC_PORT is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	logger.InfoWithFields("starting chatbot", logger.Fields{
		"http_port": cfg.HTTPPort,
		"rpc_port":  cfg.RPCPort,
		"database":  cfg.DatabaseURL,
		"provider":  cfg.LLMProvider,
	})

	server := handler.NewServer(a.svc)
	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}()

	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(a.svc)
		if err != nil {
			return err
		}
		go func() {
			addr := fmt.Sprintf(":%d", cfg.RPCPort)
			if err := rpcServer.Start(addr); err != nil {
				errCh <- fmt.Errorf("failed to start RPC server: %w", err)
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Log.Info("shutting down chatbot")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("failed to shutdown HTTP server gracefully: %v", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Errorf("failed to shutdown RPC server gracefully: %v", err)
		}
	}

	logger.Log.Info("chatbot stopped")
	return nil
}
