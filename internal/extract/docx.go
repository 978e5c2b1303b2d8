package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/rotimiadeleye/caseflow/internal/entity"
)

// extractDocx pulls paragraph text in document order from the DOCX main part.
// DOCX is a zip of WordprocessingML; paragraphs are w:p elements and runs of
// text live in w:t. Stdlib zip+xml is sufficient; there is no maintained Go
// extraction library for this.
func (e *DocumentExtractor) extractDocx(file entity.RawFile) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return nil, extractionErr(file.ID, "not a valid docx archive", err)
	}

	var main *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			main = f
			break
		}
	}
	if main == nil {
		return nil, extractionErr(file.ID, "missing word/document.xml", nil)
	}

	rc, err := main.Open()
	if err != nil {
		return nil, extractionErr(file.ID, "cannot open document part", err)
	}
	defer rc.Close()

	paragraphs, err := readParagraphs(rc)
	if err != nil {
		return nil, extractionErr(file.ID, "malformed document xml", err)
	}

	return NewDocument(file.ID, strings.Join(paragraphs, "\n\n"), nil)
}

func readParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inPara     bool
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = inPara
			case "tab":
				if inPara {
					current.WriteByte('\t')
				}
			case "br":
				if inPara {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if p := strings.TrimSpace(current.String()); p != "" {
					paragraphs = append(paragraphs, p)
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
