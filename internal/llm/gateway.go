package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/rotimiadeleye/caseflow/internal/extract"
)

// GatewayConfig bounds prompt assembly.
type GatewayConfig struct {
	MaxPromptBytes int // budget for document text; header and images excluded
}

// Gateway wraps the external model capability behind a single Infer call. It
// owns prompt assembly and size constraints; retry policy belongs to the
// caller (the pipeline), which sees classified *InferenceError values.
type Gateway struct {
	client Client
	cfg    GatewayConfig
	logger *slog.Logger
}

func NewGateway(client Client, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.MaxPromptBytes <= 0 {
		cfg.MaxPromptBytes = 1 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, cfg: cfg, logger: logger}
}

// Infer assembles one prompt from the document batch and invokes the model
// once. It never mutates job state; the pipeline decides what the outcome
// means.
func (g *Gateway) Infer(ctx context.Context, systemPrompt string, docs []*extract.Document) (string, PromptStats, error) {
	prompt, stats := BuildPrompt(systemPrompt, docs, g.cfg.MaxPromptBytes)

	if stats.Truncated {
		g.logger.Warn("llm.prompt.truncated",
			"docs", len(docs),
			"text_bytes", stats.TextBytes,
			"max_bytes", g.cfg.MaxPromptBytes,
		)
	}

	start := time.Now()
	out, err := g.client.Generate(ctx, prompt)
	if err != nil {
		g.logger.Error("llm.infer.failed",
			"kind", KindOf(err),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", stats, err
	}

	g.logger.Info("llm.infer.ok",
		"docs", len(docs),
		"images", stats.Images,
		"out_bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, stats, nil
}
