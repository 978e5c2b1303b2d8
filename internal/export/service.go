// Package export produces XLSX audit workbooks from persisted jobs.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rotimiadeleye/caseflow/internal/entity"
)

// JobLister is the slice of the result store the exporter needs.
type JobLister interface {
	ListCompleted(ctx context.Context) ([]entity.Job, error)
}

// Service is a tiny façade over the result store that produces XLSX bytes.
type Service struct {
	store  JobLister
	logger *slog.Logger
}

func NewService(store JobLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ExportCompletedXLSX returns an XLSX workbook (as bytes) with one row per
// completed job.
func (s *Service) ExportCompletedXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	jobs, err := s.store.ListCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("query completed jobs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Reports"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Job ID",
		"Case ID",
		"Section",
		"Completed At",
		"Attempts",
		"Findings",
		"Background",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, j := range jobs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, j.ID.String())
		write(2, j.CaseID.String())
		write(3, j.Section)
		write(4, j.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))
		write(5, j.Attempts)
		if j.Result != nil {
			write(6, truncate(j.Result.Findings, 500))
			write(7, truncate(j.Result.Background, 500))
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "B", 38) // ids
	_ = f.SetColWidth(sheet, "C", "C", 16) // section
	_ = f.SetColWidth(sheet, "D", "D", 20) // timestamp
	_ = f.SetColWidth(sheet, "E", "E", 10) // attempts
	_ = f.SetColWidth(sheet, "F", "G", 80) // report text

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
