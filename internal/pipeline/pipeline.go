// Package pipeline runs one report-generation job through its stages:
// extraction, inference, postprocessing. It owns the per-job state machine
// and the retry policy around the model call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rotimiadeleye/caseflow/constants"
	"github.com/rotimiadeleye/caseflow/internal/entity"
	"github.com/rotimiadeleye/caseflow/internal/extract"
	"github.com/rotimiadeleye/caseflow/internal/llm"
	"github.com/rotimiadeleye/caseflow/internal/report"
)

// Config bounds one pipeline run.
type Config struct {
	RetryBase   time.Duration // initial inference backoff, doubles per retry
	MaxAttempts int           // total model attempts per batch
	BatchSize   int           // documents per model call
}

// ProgressFunc observes every state transition. It is invoked with a snapshot
// of the job before the work of the entered stage begins, so an observer that
// sees EXTRACTING knows extraction has not produced anything yet.
type ProgressFunc func(job entity.Job)

// Pipeline executes jobs. It is stateless across runs; all per-job state
// lives on the entity.Job passed to Run.
type Pipeline struct {
	extractor  extract.Extractor
	inferencer llm.Inferencer
	clock      clockwork.Clock
	cfg        Config
	logger     *slog.Logger
}

func New(extractor extract.Extractor, inferencer llm.Inferencer, clock clockwork.Clock, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor:  extractor,
		inferencer: inferencer,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run drives job through every stage and leaves it in a terminal state. The
// returned error mirrors job.Err for FAILED outcomes and is nil for COMPLETED.
// Cancellation is honored at stage boundaries: a job never stops mid-stage.
func (p *Pipeline) Run(ctx context.Context, job *entity.Job, files []entity.RawFile, prompt string, progress ProgressFunc) error {
	log := p.logger.With("job_id", job.ID, "case_id", job.CaseID)
	log.Info("pipeline.start", "files", len(files))

	if err := p.checkpoint(ctx, job, progress, log); err != nil {
		return err
	}

	// extraction
	p.transition(job, constants.JobStateExtracting, progress)
	docs, err := p.extractAll(ctx, files)
	if err != nil {
		return p.fail(job, entity.ErrKindExtraction, err, progress, log)
	}

	if err := p.checkpoint(ctx, job, progress, log); err != nil {
		return err
	}

	// inference
	p.transition(job, constants.JobStateInferring, progress)
	raw, truncated, err := p.inferAll(ctx, job, docs, prompt, log)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(job, entity.ErrKindCancelled, ctx.Err(), progress, log)
		}
		return p.fail(job, entity.ErrKindInference, err, progress, log)
	}

	if err := p.checkpoint(ctx, job, progress, log); err != nil {
		return err
	}

	// postprocessing
	p.transition(job, constants.JobStatePostprocessing, progress)
	result, err := report.Extract(raw)
	if err != nil {
		return p.fail(job, entity.ErrKindParse, err, progress, log)
	}

	result.Truncated = truncated
	job.Result = &result
	p.transition(job, constants.JobStateCompleted, progress)
	log.Info("pipeline.completed", "attempts", job.Attempts, "out_bytes", len(raw))
	return nil
}

// checkpoint is the stage-boundary cancellation check.
func (p *Pipeline) checkpoint(ctx context.Context, job *entity.Job, progress ProgressFunc, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		at := job.State
		job.Err = &entity.ErrorInfo{Kind: entity.ErrKindCancelled, Message: "job cancelled"}
		p.transition(job, constants.JobStateFailed, progress)
		log.Info("pipeline.cancelled", "at_state", at)
		return err
	}
	return nil
}

func (p *Pipeline) transition(job *entity.Job, next constants.JobState, progress ProgressFunc) {
	job.State = next
	job.UpdatedAt = p.clock.Now()
	if progress != nil {
		progress(*job)
	}
}

func (p *Pipeline) fail(job *entity.Job, kind string, err error, progress ProgressFunc, log *slog.Logger) error {
	job.Err = &entity.ErrorInfo{Kind: kind, Message: err.Error()}
	p.transition(job, constants.JobStateFailed, progress)
	log.Error("pipeline.failed", "kind", kind, "error", err)
	return err
}

func (p *Pipeline) extractAll(ctx context.Context, files []entity.RawFile) ([]*extract.Document, error) {
	docs := make([]*extract.Document, 0, len(files))
	for _, f := range files {
		doc, err := p.extractor.Extract(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// inferAll calls the model once per batch, retrying each batch under the
// bounded backoff policy, and joins the batch outputs in input order. The
// returned flag reports whether any batch prompt was truncated to fit. A job
// with no usable content completes without a model call.
func (p *Pipeline) inferAll(ctx context.Context, job *entity.Job, docs []*extract.Document, prompt string, log *slog.Logger) (string, bool, error) {
	if !hasContent(docs) {
		log.Info("pipeline.infer.skipped", "reason", "no document content")
		return "", false, nil
	}

	var outputs []string
	var truncated bool
	for start := 0; start < len(docs); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		out, stats, err := p.inferBatch(ctx, job, docs[start:end], prompt, log)
		if err != nil {
			return "", false, err
		}
		truncated = truncated || stats.Truncated
		outputs = append(outputs, out)
	}
	return strings.Join(outputs, "\n\n"), truncated, nil
}

func (p *Pipeline) inferBatch(ctx context.Context, job *entity.Job, batch []*extract.Document, prompt string, log *slog.Logger) (string, llm.PromptStats, error) {
	state := llm.NewRetryState(p.cfg.RetryBase, p.cfg.MaxAttempts)
	for {
		job.Attempts++
		out, stats, err := p.inferencer.Infer(ctx, prompt, batch)
		if err == nil {
			return out, stats, nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return "", stats, err
		}

		wait, retry := state.Next(err, p.clock.Now())
		if !retry {
			return "", stats, fmt.Errorf("inference gave up after %d attempts: %w", state.Attempt, err)
		}
		log.Warn("pipeline.infer.retry",
			"attempt", state.Attempt,
			"wait", wait,
			"kind", llm.KindOf(err),
			"error", err,
		)
		select {
		case <-p.clock.After(wait):
		case <-ctx.Done():
			return "", stats, ctx.Err()
		}
	}
}

func hasContent(docs []*extract.Document) bool {
	for _, d := range docs {
		if strings.TrimSpace(d.Text) != "" || len(d.Images) > 0 {
			return true
		}
	}
	return false
}
