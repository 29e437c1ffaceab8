package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"semdex/internal/adapter/gemini"
	"semdex/internal/app"
	"semdex/internal/config"
	"semdex/internal/index"
	"semdex/internal/logger"

	"github.com/nsqio/go-nsq"
)

func main() {
	// Structured logger with correlation id propagation
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	model, err := gemini.NewModel(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDimensions, cfg.EmbedMaxInputTokens)
	if err != nil {
		slog.Error("failed to load embedding model", "error", err)
		os.Exit(1)
	}
	defer model.Close()

	var mirror index.Mirror
	if deps.Mirror != nil {
		mirror = deps.Mirror
	}

	application, err := app.New(cfg, deps.DB, model, mirror, deps.NSQProducer)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Restore the in-memory index from the durable mirror before serving.
	if mirror != nil {
		if err := application.Rebuild(ctx); err != nil {
			slog.Error("index rebuild from mirror failed", "error", err)
			os.Exit(1)
		}
		slog.Info("index rebuilt from mirror")
	}

	if cfg.EnableIngestWorker {
		if err := startConsumers(cfg, application); err != nil {
			slog.Error("failed to start ingest consumers", "error", err)
			os.Exit(1)
		}
	}

	if !cfg.EnableAPI {
		slog.Info("api disabled, running workers only")
		<-ctx.Done()
		return
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func startConsumers(cfg *config.Config, application *app.App) error {
	nsqCfg := nsq.NewConfig()

	ingestConsumer, err := nsq.NewConsumer(config.TopicIngestDocument, config.ChannelIngest, nsqCfg)
	if err != nil {
		return err
	}
	ingestConsumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		return application.IngestConsumer.HandleMessage(m)
	}), cfg.IngestConcurrency)
	if err := ingestConsumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		return err
	}

	deleteConsumer, err := nsq.NewConsumer(config.TopicDeleteDocument, config.ChannelIngest, nsqCfg)
	if err != nil {
		return err
	}
	deleteConsumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		return application.DeleteConsumer.HandleMessage(m)
	}))
	if err := deleteConsumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		return err
	}

	slog.Info("ingest consumers connected", "concurrency", cfg.IngestConcurrency)
	return nil
}
