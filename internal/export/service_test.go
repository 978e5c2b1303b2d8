package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rotimiadeleye/caseflow/constants"
	"github.com/rotimiadeleye/caseflow/internal/entity"
)

type stubLister struct {
	jobs []entity.Job
	err  error
}

func (s *stubLister) ListCompleted(context.Context) ([]entity.Job, error) {
	return s.jobs, s.err
}

func TestExportCompletedXLSX(t *testing.T) {
	job := entity.Job{
		ID:        uuid.New(),
		CaseID:    uuid.New(),
		Section:   "findings",
		State:     constants.JobStateCompleted,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Attempts:  1,
		Result:    &entity.Result{Findings: "the findings", Background: "the background"},
	}
	svc := NewService(&stubLister{jobs: []entity.Job{job}}, nil)

	data, err := svc.ExportCompletedXLSX(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Reports")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one job")

	assert.Equal(t, "Job ID", rows[0][0])
	assert.Equal(t, job.ID.String(), rows[1][0])
	assert.Equal(t, "findings", rows[1][2])
	assert.Equal(t, "the findings", rows[1][5])
}

func TestExportStoreError(t *testing.T) {
	svc := NewService(&stubLister{err: errors.New("db down")}, nil)

	_, err := svc.ExportCompletedXLSX(context.Background())
	assert.Error(t, err)
}

func TestExportEmpty(t *testing.T) {
	svc := NewService(&stubLister{}, nil)

	data, err := svc.ExportCompletedXLSX(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Reports")
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}
