package extract

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/rotimiadeleye/caseflow/internal/entity"
)

// extractText decodes a plain-text file with a best-guess character encoding.
// Empty input yields an empty document that still carries its source.
func (e *DocumentExtractor) extractText(file entity.RawFile) (*Document, error) {
	if len(file.Data) == 0 {
		return NewDocument(file.ID, "", nil)
	}

	text, err := decodeText(file.Data)
	if err != nil {
		return nil, extractionErr(file.ID, "undecodable text", err)
	}
	return NewDocument(file.ID, strings.TrimSpace(text), nil)
}

func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(stripBOM(data)), nil
	}
	enc, _, _ := charset.DetermineEncoding(data, "text/plain")
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(stripBOM(decoded)), nil
}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
}
