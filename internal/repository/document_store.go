package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/rotimiadeleye/caseflow/constants"
	"github.com/rotimiadeleye/caseflow/internal/entity"
)

// DocumentStore reads case documents off the filesystem. Files live under
// <root>/<case_id>/documents/ and are returned in name order so batch
// composition is deterministic. Unsupported file types are skipped, not
// treated as errors.
type DocumentStore struct {
	root   string
	logger *slog.Logger
}

func NewDocumentStore(root string, logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{root: root, logger: logger}
}

// ListCaseFiles loads every supported document for the case. A case directory
// that does not exist yields an error; an empty documents directory yields an
// empty slice.
func (d *DocumentStore) ListCaseFiles(ctx context.Context, caseID uuid.UUID) ([]entity.RawFile, error) {
	dir := filepath.Join(d.root, caseID.String(), "documents")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read case documents %s: %w", caseID, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make([]entity.RawFile, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		format := constants.FormatForPath(name)
		if format == "" {
			d.logger.Info("docs.skipped", "case_id", caseID, "file", name, "reason", "unsupported type")
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", name, err)
		}
		files = append(files, entity.RawFile{
			ID:     filepath.Join(caseID.String(), "documents", name),
			Name:   name,
			Format: format,
			Data:   data,
		})
	}

	d.logger.Info("docs.listed", "case_id", caseID, "files", len(files))
	return files, nil
}
