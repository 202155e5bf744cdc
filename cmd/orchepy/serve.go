package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/derivia/orchepy/internal/config"
	"github.com/derivia/orchepy/internal/httpapi"
	"github.com/derivia/orchepy/internal/logx"
	"github.com/derivia/orchepy/internal/service"
	"github.com/derivia/orchepy/internal/store"
	"github.com/derivia/orchepy/internal/transition"
	"github.com/derivia/orchepy/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchepy HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logx.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logx.ContextWithLogger(ctx, logger)

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	s := store.New(pool)
	dispatcher := webhook.New(cfg.WebhookTimeout)
	controller := transition.New(s, dispatcher, cfg.MaxChainDepth, cfg.WebhookOnCaseCreate, cfg.WebhookOnCaseMove)

	workflowSvc := service.NewWorkflowService(s)
	caseSvc := service.NewCaseService(s, controller)

	server := httpapi.New(cfg, workflowSvc, caseSvc)
	logger.Info("starting orchepy", "host", cfg.Host, "port", cfg.Port)
	return server.Start(ctx)
}
