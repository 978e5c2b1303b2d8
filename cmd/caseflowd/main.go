package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/rotimiadeleye/caseflow/internal/channel"
	"github.com/rotimiadeleye/caseflow/internal/common"
	"github.com/rotimiadeleye/caseflow/internal/extract"
	"github.com/rotimiadeleye/caseflow/internal/jobs"
	"github.com/rotimiadeleye/caseflow/internal/llm"
	"github.com/rotimiadeleye/caseflow/internal/llm/gemini"
	"github.com/rotimiadeleye/caseflow/internal/pipeline"
	"github.com/rotimiadeleye/caseflow/internal/repository"
	"github.com/rotimiadeleye/caseflow/internal/server"
)

const systemPrompt = "You are a medico-legal report writer. From the case " +
	"documents provided, produce the report sections '**1.4 Findings**' and " +
	"'**Background Information**', each under its own bold header."

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not load .env file", "error", err)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, cfg.Database.DialTimeout)
	store, err := repository.OpenResultStore(openCtx, cfg.Database.DSN, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open result store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	clock := clockwork.NewRealClock()

	client := gemini.NewClient(gemini.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	gateway := llm.NewGateway(client, llm.GatewayConfig{
		MaxPromptBytes: cfg.LLM.MaxPromptBytes,
	}, logger)

	extractor := extract.NewDocumentExtractor(true, logger)
	pipe := pipeline.New(extractor, gateway, clock, pipeline.Config{
		RetryBase:   cfg.Pipeline.RetryBase,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BatchSize:   cfg.LLM.BatchSize,
	}, logger)

	docs := repository.NewDocumentStore(cfg.Docs.Root, logger)
	manager := jobs.NewManager(pipe, docs, store, jobs.Config{
		Prompt:    systemPrompt,
		Retention: cfg.Pipeline.Retention,
	}, clock, logger)

	registry := channel.NewRegistry(channel.Config{
		AckTimeout:        cfg.Channel.AckTimeout,
		MaxResends:        cfg.Channel.MaxResends,
		HeartbeatInterval: cfg.Channel.HeartbeatInterval,
	}, cfg.Channel.SessionGrace, clock, logger)

	srv := server.New(registry, manager, store, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	manager.Shutdown()
	logger.Info("stopped")
}
