package extract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/rotimiadeleye/caseflow/internal/entity"
)

// extractPDF extracts text per page and, when the inference target is
// vision-capable, rasterizes each page to a PNG in page order.
func (e *DocumentExtractor) extractPDF(ctx context.Context, file entity.RawFile) (*Document, error) {
	doc, err := fitz.NewFromMemory(file.Data)
	if err != nil {
		return nil, extractionErr(file.ID, "cannot open pdf", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, extractionErr(file.ID, "pdf has no pages", nil)
	}

	var (
		text   strings.Builder
		images []ImageRef
	)
	for page := 0; page < pageCount; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		pageText, err := doc.Text(page)
		if err != nil {
			return nil, extractionErr(file.ID, fmt.Sprintf("text extraction failed on page %d", page+1), err)
		}
		text.WriteString(pageText)

		if !e.withImages {
			continue
		}
		img, err := doc.Image(page)
		if err != nil {
			return nil, extractionErr(file.ID, fmt.Sprintf("rasterization failed on page %d", page+1), err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, extractionErr(file.ID, fmt.Sprintf("png encode failed on page %d", page+1), err)
		}
		images = append(images, ImageRef{Page: page + 1, MIME: "image/png", Data: buf.Bytes()})
	}

	return NewDocument(file.ID, strings.TrimSpace(text.String()), images)
}
