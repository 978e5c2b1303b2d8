package entity

import "github.com/rotimiadeleye/caseflow/constants"

// RawFile is one case document as fetched from the document store, before
// extraction. ID is the store identifier (relative path for the filesystem
// store) and is carried through as the extracted document's source.
type RawFile struct {
	ID     string
	Name   string
	Format constants.DocFormat
	Data   []byte
}
