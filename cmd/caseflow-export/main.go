package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/rotimiadeleye/caseflow/internal/common"
	"github.com/rotimiadeleye/caseflow/internal/export"
	"github.com/rotimiadeleye/caseflow/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: caseflow-export <output.xlsx>")
		os.Exit(2)
	}
	outPath := os.Args[1]

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not load .env file", "error", err)
	}
	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := repository.OpenResultStore(ctx, cfg.Database.DSN, logger)
	if err != nil {
		logger.Error("failed to open result store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := export.NewService(store, logger)
	data, err := svc.ExportCompletedXLSX(ctx)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		logger.Error("write output", "path", outPath, "error", err)
		os.Exit(1)
	}
	logger.Info("export written", "path", outPath, "bytes", len(data))
}
