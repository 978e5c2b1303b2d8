package extract

import (
	"context"
	"log/slog"

	"github.com/rotimiadeleye/caseflow/constants"
	"github.com/rotimiadeleye/caseflow/internal/entity"
)

// Extractor normalizes one raw case document into the uniform representation.
type Extractor interface {
	Extract(ctx context.Context, file entity.RawFile) (*Document, error)
}

// DocumentExtractor handles plain text, DOCX and PDF inputs. When WithImages
// is set, PDF pages are additionally rasterized for vision-capable inference.
type DocumentExtractor struct {
	withImages bool
	logger     *slog.Logger
}

func NewDocumentExtractor(withImages bool, logger *slog.Logger) *DocumentExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentExtractor{withImages: withImages, logger: logger}
}

// Extract dispatches on the file format. Every returned document carries the
// file's store identifier as its source, including for empty content.
func (e *DocumentExtractor) Extract(ctx context.Context, file entity.RawFile) (*Document, error) {
	if file.ID == "" {
		return nil, ErrNoSource
	}

	var (
		doc *Document
		err error
	)
	switch file.Format {
	case constants.TXT:
		doc, err = e.extractText(file)
	case constants.DOCX:
		doc, err = e.extractDocx(file)
	case constants.PDF:
		doc, err = e.extractPDF(ctx, file)
	default:
		return nil, extractionErr(file.ID, "unsupported format "+string(file.Format), nil)
	}
	if err != nil {
		e.logger.Error("extract.failed", "source", file.ID, "format", file.Format, "error", err)
		return nil, err
	}

	e.logger.Info("extract.ok",
		"source", file.ID,
		"format", file.Format,
		"text_bytes", len(doc.Text),
		"images", len(doc.Images),
	)
	return doc, nil
}
