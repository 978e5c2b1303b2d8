package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotimiadeleye/caseflow/constants"
	"github.com/rotimiadeleye/caseflow/internal/entity"
)

func txtFile(id string, data []byte) entity.RawFile {
	return entity.RawFile{ID: id, Name: id, Format: constants.TXT, Data: data}
}

func TestExtractTextUTF8(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	doc, err := e.Extract(context.Background(), txtFile("notes.txt", []byte("  hello world \n")))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Source())
	assert.Equal(t, "hello world", doc.Text)
	assert.Empty(t, doc.Images)
}

func TestExtractTextEmptyKeepsSource(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	doc, err := e.Extract(context.Background(), txtFile("empty.txt", nil))
	require.NoError(t, err)
	assert.Equal(t, "empty.txt", doc.Source())
	assert.Empty(t, doc.Text)
}

func TestExtractTextStripsBOM(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("content")...)
	doc, err := e.Extract(context.Background(), txtFile("bom.txt", data))
	require.NoError(t, err)
	assert.Equal(t, "content", doc.Text)
}

func TestExtractTextNonUTF8(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	// "café" in latin-1
	data := []byte{'c', 'a', 'f', 0xE9}
	doc, err := e.Extract(context.Background(), txtFile("latin1.txt", data))
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "caf")
	assert.NotEmpty(t, doc.Text)
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractDocxParagraphOrder(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	xmlBody := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:tab/><w:t>with tab</w:t></w:r></w:p>
    <w:p><w:r><w:t>Line one</w:t><w:br/><w:t>line two</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`
	file := entity.RawFile{ID: "report.docx", Name: "report.docx", Format: constants.DOCX, Data: buildDocx(t, xmlBody)}

	doc, err := e.Extract(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, "First paragraph\n\nSecond\twith tab\n\nLine one\nline two", doc.Text)
}

func TestExtractDocxInvalidArchive(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	file := entity.RawFile{ID: "bad.docx", Format: constants.DOCX, Data: []byte("not a zip")}
	_, err := e.Extract(context.Background(), file)

	var xe *ExtractionError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, "bad.docx", xe.Source)
}

func TestExtractDocxMissingDocumentPart(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	file := entity.RawFile{ID: "hollow.docx", Format: constants.DOCX, Data: buf.Bytes()}
	_, err = e.Extract(context.Background(), file)
	assert.Error(t, err)
}

func TestExtractPDFGarbage(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	file := entity.RawFile{ID: "garbage.pdf", Format: constants.PDF, Data: []byte("definitely not a pdf")}
	_, err := e.Extract(context.Background(), file)

	var xe *ExtractionError
	require.ErrorAs(t, err, &xe)
}

func TestExtractRejectsMissingSource(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	_, err := e.Extract(context.Background(), entity.RawFile{Format: constants.TXT, Data: []byte("x")})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := NewDocumentExtractor(false, nil)

	_, err := e.Extract(context.Background(), entity.RawFile{ID: "x.bin", Format: "BIN", Data: []byte("x")})
	assert.Error(t, err)
}

func TestNewDocumentRequiresSource(t *testing.T) {
	_, err := NewDocument("", "text", nil)
	assert.ErrorIs(t, err, ErrNoSource)

	doc, err := NewDocument("src", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "src", doc.Source())
}
