package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm_console/internal/config"
	"llm_console/internal/httpapi"
	"llm_console/internal/logging"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return serve(cfg)
		},
	}
}

func newLogger(cfg *config.Config) (*logging.Logger, func() error) {
	out, closer := logging.Output(logging.FileOptions{
		Path:       cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	return logging.New(out, "console", logging.ParseLevel(cfg.Log.Level)), closer.Close
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
}

func serve(cfg *config.Config) error {
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	if !cfg.AuthEnabled() {
		logger.Warn("ADMIN_PASSWORD_HASH not set, the console is open to anyone who can reach it")
	}

	handler, deps, err := httpapi.NewRouter(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	defer deps.Close()

	server := newServer(cfg, handler)
	addr := server.Addr

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("LLM console listening", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
	return nil
}
