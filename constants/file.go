package constants

import (
	"path/filepath"
	"strings"
)

// DocFormat identifies the kind of a case document.
type DocFormat string

const (
	PDF  DocFormat = "PDF"
	DOCX DocFormat = "DOCX"
	TXT  DocFormat = "TXT"
)

// AllowedExtensions holds the file extensions accepted for case documents.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a filename extension to a DocFormat, or "" if the
// extension is not a supported document type.
func MapExtToFormat(ext string) DocFormat {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "docx":
		return DOCX
	case "txt", "text":
		return TXT
	default:
		return ""
	}
}

// FormatForPath maps a file path to a DocFormat by its extension.
func FormatForPath(path string) DocFormat {
	return MapExtToFormat(filepath.Ext(path))
}
