// Package jobs owns the authoritative job table: idempotent submission,
// at-most-one execution per job, cancellation, status queries, and retention
// of finished jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rotimiadeleye/caseflow/constants"
	"github.com/rotimiadeleye/caseflow/internal/entity"
	"github.com/rotimiadeleye/caseflow/internal/pipeline"
)

// DocumentSource lists the raw files attached to a case.
type DocumentSource interface {
	ListCaseFiles(ctx context.Context, caseID uuid.UUID) ([]entity.RawFile, error)
}

// ResultSink persists terminal jobs for audit.
type ResultSink interface {
	Persist(ctx context.Context, job entity.Job) error
}

// Runner executes one job to a terminal state. Implemented by the pipeline.
type Runner interface {
	Run(ctx context.Context, job *entity.Job, files []entity.RawFile, prompt string, progress pipeline.ProgressFunc) error
}

// EmitFunc receives every state transition of a job together with its
// per-job sequence number. Sequences start at 1 and are gapless.
type EmitFunc func(job entity.Job, seq uint64)

// Config bounds manager behavior.
type Config struct {
	Prompt    string        // system prompt handed to the pipeline
	Retention time.Duration // how long terminal jobs stay queryable
}

type activeKey struct {
	caseID  uuid.UUID
	section string
}

type record struct {
	job    entity.Job
	cancel context.CancelFunc
	seq    uint64
	emit   EmitFunc
}

// Manager is the job table. Everything it hands out is a snapshot; the
// records themselves are only touched under the mutex.
type Manager struct {
	runner Runner
	docs   DocumentSource
	sink   ResultSink
	clock  clockwork.Clock
	cfg    Config
	logger *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	jobs   map[uuid.UUID]*record
	active map[activeKey]uuid.UUID
	wg     sync.WaitGroup
}

func NewManager(runner Runner, docs DocumentSource, sink ResultSink, cfg Config, clock clockwork.Clock, logger *slog.Logger) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:  runner,
		docs:    docs,
		sink:    sink,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		baseCtx: ctx,
		stop:    cancel,
		jobs:    make(map[uuid.UUID]*record),
		active:  make(map[activeKey]uuid.UUID),
	}
}

// Submit starts a job for the case unless one is already running for the same
// case and section, in which case the running job is returned and resumed
// reports true. Submission is the only place execution begins, so a job runs
// at most once.
func (m *Manager) Submit(caseID uuid.UUID, section string, emit EmitFunc) (entity.Job, bool) {
	key := activeKey{caseID: caseID, section: section}

	m.mu.Lock()
	if id, ok := m.active[key]; ok {
		rec := m.jobs[id]
		snapshot := rec.job
		m.mu.Unlock()
		m.logger.Info("jobs.submit.duplicate", "job_id", id, "case_id", caseID)
		return snapshot, true
	}

	now := m.clock.Now()
	ctx, cancel := context.WithCancel(m.baseCtx)
	rec := &record{
		job: entity.Job{
			ID:        uuid.New(),
			CaseID:    caseID,
			Section:   section,
			State:     constants.JobStateQueued,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		emit:   emit,
	}
	m.jobs[rec.job.ID] = rec
	m.active[key] = rec.job.ID
	snapshot := rec.job
	m.mu.Unlock()

	m.logger.Info("jobs.submit", "job_id", snapshot.ID, "case_id", caseID, "section", section)
	m.emitNext(rec, snapshot)

	m.wg.Add(1)
	go m.run(ctx, rec, key)
	return snapshot, false
}

// emitNext assigns the next sequence for the job and invokes the emit hook.
func (m *Manager) emitNext(rec *record, snapshot entity.Job) {
	m.mu.Lock()
	rec.seq++
	seq := rec.seq
	emit := rec.emit
	m.mu.Unlock()
	if emit != nil {
		emit(snapshot, seq)
	}
}

func (m *Manager) run(ctx context.Context, rec *record, key activeKey) {
	defer m.wg.Done()
	defer rec.cancel()

	job := rec.job // private working copy; snapshots flow back via progress

	files, err := m.docs.ListCaseFiles(ctx, job.CaseID)
	if err != nil {
		job.Err = &entity.ErrorInfo{
			Kind:    entity.ErrKindExtraction,
			Message: fmt.Sprintf("list case documents: %v", err),
		}
		job.State = constants.JobStateFailed
		job.UpdatedAt = m.clock.Now()
		m.mu.Lock()
		rec.job = job
		m.mu.Unlock()
		m.emitNext(rec, job)
		m.finish(rec, key, job)
		return
	}

	progress := func(snapshot entity.Job) {
		m.mu.Lock()
		rec.job = snapshot
		m.mu.Unlock()
		m.emitNext(rec, snapshot)
		if snapshot.Terminal() {
			m.finish(rec, key, snapshot)
		}
	}

	// pipeline drives the job to a terminal state; errors are already
	// reflected on the job itself
	_ = m.runner.Run(ctx, &job, files, m.cfg.Prompt, progress)
}

// finish retires an active job: frees the idempotency slot, persists the
// terminal record, and schedules eviction.
func (m *Manager) finish(rec *record, key activeKey, snapshot entity.Job) {
	m.mu.Lock()
	if m.active[key] == snapshot.ID {
		delete(m.active, key)
	}
	m.mu.Unlock()

	if m.sink != nil {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.sink.Persist(pctx, snapshot); err != nil {
			m.logger.Error("jobs.persist.failed", "job_id", snapshot.ID, "error", err)
		}
		cancel()
	}

	id := snapshot.ID
	m.clock.AfterFunc(m.cfg.Retention, func() {
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
		m.logger.Debug("jobs.evicted", "job_id", id)
	})
}

// Cancel requests cancellation of a running job. The pipeline honors it at
// the next stage boundary; terminal and unknown jobs report false.
func (m *Manager) Cancel(jobID uuid.UUID) bool {
	m.mu.Lock()
	rec, ok := m.jobs[jobID]
	if !ok || rec.job.Terminal() {
		m.mu.Unlock()
		return false
	}
	cancel := rec.cancel
	m.mu.Unlock()

	m.logger.Info("jobs.cancel", "job_id", jobID)
	cancel()
	return true
}

// Status returns a snapshot of the job, if it is still retained.
func (m *Manager) Status(jobID uuid.UUID) (entity.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[jobID]
	if !ok {
		return entity.Job{}, false
	}
	return rec.job, true
}

// Result returns the completed result of a retained job. It reports false
// while the job is still running, after eviction, and for FAILED jobs.
func (m *Manager) Result(jobID uuid.UUID) (entity.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[jobID]
	if !ok || rec.job.Result == nil {
		return entity.Result{}, false
	}
	return *rec.job.Result, true
}

// Shutdown cancels every running job and waits for their pipelines to stop.
func (m *Manager) Shutdown() {
	m.stop()
	m.wg.Wait()
}
