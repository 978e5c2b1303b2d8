package llm

import (
	"context"

	"github.com/rotimiadeleye/caseflow/internal/extract"
)

// Prompt is one assembled model request: a system header, document texts in
// attachment order, and page images for vision-capable models.
type Prompt struct {
	Header string
	Texts  []string
	Images []extract.ImageRef
}

// PromptStats records what prompt assembly did, for audit on the job result.
type PromptStats struct {
	TextBytes int
	Images    int
	Truncated bool
}

// Client is the raw model binding: one prompt in, generated text out. Failures
// are classified as *InferenceError by the implementation.
type Client interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Inferencer is the interface the pipeline depends on.
type Inferencer interface {
	Infer(ctx context.Context, systemPrompt string, docs []*extract.Document) (string, PromptStats, error)
}
