package extract

import "errors"

// ImageRef is one rasterized page image attached to a document, in page order.
type ImageRef struct {
	Page int
	MIME string
	Data []byte
}

// Document is the uniform intermediate representation every input kind is
// normalized into. The source identifier is unexported and settable only
// through NewDocument, so a document without a source cannot be constructed.
type Document struct {
	source string
	Text   string
	Images []ImageRef
}

// ErrNoSource is returned when a document is constructed without a source
// identifier.
var ErrNoSource = errors.New("extract: document source must not be empty")

// NewDocument builds a Document. An empty source is rejected regardless of
// content; empty text with a valid source is fine.
func NewDocument(source, text string, images []ImageRef) (*Document, error) {
	if source == "" {
		return nil, ErrNoSource
	}
	return &Document{source: source, Text: text, Images: images}, nil
}

// Source returns the originating file identifier. Never empty.
func (d *Document) Source() string {
	return d.source
}
