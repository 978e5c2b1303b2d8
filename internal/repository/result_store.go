// Package repository holds the persistence adapters: the SQL result store
// for terminal jobs and the filesystem document store for case files.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/rotimiadeleye/caseflow/constants"
	"github.com/rotimiadeleye/caseflow/internal/entity"
)

// ErrJobNotFound is returned when a job ID is not in the store.
var ErrJobNotFound = errors.New("repository: job not found")

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	case_id       TEXT NOT NULL,
	section       TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	attempts      INTEGER NOT NULL DEFAULT 0,
	findings      TEXT NOT NULL DEFAULT '',
	background    TEXT NOT NULL DEFAULT '',
	raw_output    TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
)`

// ResultStore persists terminal jobs. The DSN scheme selects the backend:
// postgres URLs go through pgx, anything else is treated as a sqlite path.
type ResultStore struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger
}

// OpenResultStore opens the database, verifies connectivity and ensures the
// schema exists.
func OpenResultStore(ctx context.Context, dsn string, logger *slog.Logger) (*ResultStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver := "sqlite"
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	if postgres {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping result store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info("store.opened", "driver", driver)
	return &ResultStore{db: db, postgres: postgres, logger: logger}, nil
}

// rebind rewrites ? placeholders to $n for postgres. Queries are written in
// sqlite's notation and translated at the edge.
func (s *ResultStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Persist writes or overwrites the job row. Safe to call more than once for
// the same job.
func (s *ResultStore) Persist(ctx context.Context, job entity.Job) error {
	var findings, background, raw string
	if job.Result != nil {
		findings, background, raw = job.Result.Findings, job.Result.Background, job.Result.Raw
	}
	var errKind, errMsg string
	if job.Err != nil {
		errKind, errMsg = job.Err.Kind, job.Err.Message
	}

	query := s.rebind(`
		INSERT INTO jobs (id, case_id, section, state, attempts, findings, background,
			raw_output, error_kind, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			attempts = excluded.attempts,
			findings = excluded.findings,
			background = excluded.background,
			raw_output = excluded.raw_output,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		job.ID.String(), job.CaseID.String(), job.Section, string(job.State), job.Attempts,
		findings, background, raw, errKind, errMsg, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("persist job %s: %w", job.ID, err)
	}
	return nil
}

const selectColumns = `id, case_id, section, state, attempts, findings, background,
	raw_output, error_kind, error_message, created_at, updated_at`

// GetJob loads one persisted job by ID.
func (s *ResultStore) GetJob(ctx context.Context, id uuid.UUID) (entity.Job, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+selectColumns+` FROM jobs WHERE id = ?`), id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Job{}, ErrJobNotFound
	}
	return job, err
}

// ListByState returns persisted jobs in the given state, oldest first.
func (s *ResultStore) ListByState(ctx context.Context, state constants.JobState) ([]entity.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+selectColumns+` FROM jobs WHERE state = ? ORDER BY created_at`),
		string(state))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListCompleted returns every COMPLETED job, oldest first.
func (s *ResultStore) ListCompleted(ctx context.Context) ([]entity.Job, error) {
	return s.ListByState(ctx, constants.JobStateCompleted)
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (entity.Job, error) {
	var (
		job             entity.Job
		id, caseID      string
		state           string
		findings        string
		background      string
		raw             string
		errKind, errMsg string
	)
	err := row.Scan(&id, &caseID, &job.Section, &state, &job.Attempts,
		&findings, &background, &raw, &errKind, &errMsg,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return entity.Job{}, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return entity.Job{}, fmt.Errorf("scan job id: %w", err)
	}
	if job.CaseID, err = uuid.Parse(caseID); err != nil {
		return entity.Job{}, fmt.Errorf("scan case id: %w", err)
	}
	job.State = constants.JobState(state)
	if findings != "" || background != "" || raw != "" {
		job.Result = &entity.Result{Findings: findings, Background: background, Raw: raw}
	}
	if errKind != "" || errMsg != "" {
		job.Err = &entity.ErrorInfo{Kind: errKind, Message: errMsg}
	}
	return job, nil
}
