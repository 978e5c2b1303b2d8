package llm

import (
	"fmt"
	"unicode/utf8"

	"github.com/rotimiadeleye/caseflow/internal/extract"
)

// BuildPrompt assembles one prompt from the system header and a document
// batch. When the combined document text exceeds maxTextBytes, text is
// truncated deterministically from the end: later documents are dropped first,
// then the tail of the document that crosses the budget. The header and all
// images are always preserved.
func BuildPrompt(header string, docs []*extract.Document, maxTextBytes int) (Prompt, PromptStats) {
	p := Prompt{Header: header}
	stats := PromptStats{}

	budget := maxTextBytes
	for i, doc := range docs {
		p.Images = append(p.Images, doc.Images...)

		text := fmt.Sprintf("--- DOCUMENT %d (%s) ---\n%s", i+1, doc.Source(), doc.Text)
		if budget <= 0 {
			if len(doc.Text) > 0 {
				stats.Truncated = true
			}
			continue
		}
		if len(text) > budget {
			cut := budget
			// never cut through a multi-byte rune
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
			stats.Truncated = true
		}
		budget -= len(text)
		p.Texts = append(p.Texts, text)
		stats.TextBytes += len(text)
	}
	stats.Images = len(p.Images)
	return p, stats
}
