// Package report parses raw model output into the structured job result.
//
// Model output arrives in more than one layout depending on the model and the
// prompt revision, so extraction runs a small closed set of parser variants in
// fixed priority order. Absence of a recognizable section is not an error;
// input that is not parseable as text is.
package report

import (
	"strings"
	"unicode/utf8"

	"github.com/rotimiadeleye/caseflow/internal/entity"
)

// ParseError reports model output that cannot be normalized as text at all.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "report parse: " + e.Reason
}

// standard headers the sections are normalized under.
const (
	findingsHeader   = "**1.4 Findings**"
	backgroundHeader = "**Background Information**"
)

type parseFunc func(raw string) (findings, background string, ok bool)

// parsers in priority order: the labeled-sections layout first, then the
// looser layout. Each reports explicitly whether it recognized the input.
var parsers = []parseFunc{parseLabeledSections, parseLooseLayout}

// Extract normalizes raw model output into a Result. The raw text is always
// preserved verbatim. If no variant recognizes a section layout, findings and
// background default to empty strings.
func Extract(raw string) (entity.Result, error) {
	if !utf8.ValidString(raw) {
		return entity.Result{}, &ParseError{Reason: "output is not valid UTF-8 text"}
	}

	res := entity.Result{Raw: raw}
	for _, parse := range parsers {
		if findings, background, ok := parse(raw); ok {
			res.Findings = findings
			res.Background = background
			return res, nil
		}
	}
	return res, nil
}

// Known header spellings, most specific first. Models emit both numbered and
// bare variants, upper and title case.
var findingsHeaders = []string{
	"**1.4 Findings**",
	"**1.4. Findings**",
	"**1.4 FINDINGS**",
	"**Findings**",
	"**FINDINGS**",
}

var backgroundHeaders = []string{
	"**2. Background Information**",
	"**2.0 Background Information**",
	"**2. BACKGROUND INFORMATION**",
	"**2.0 BACKGROUND INFORMATION**",
	"**Background Information**",
	"**BACKGROUND INFORMATION**",
}

func earliest(s string, headers []string) (int, string) {
	best := -1
	var found string
	for _, h := range headers {
		if pos := strings.Index(s, h); pos != -1 && (best == -1 || pos < best) {
			best = pos
			found = h
		}
	}
	return best, found
}

// parseLabeledSections handles the bold-header layout: explicit findings
// and/or background headers, findings standardized under the numbered header.
func parseLabeledSections(raw string) (string, string, bool) {
	fStart, fHeader := earliest(raw, findingsHeaders)
	bStart, _ := earliest(raw, backgroundHeaders)

	switch {
	case fStart != -1 && bStart != -1 && fStart < bStart:
		findings := strings.TrimSpace(raw[fStart:bStart])
		background := strings.TrimSpace(raw[bStart:])
		return standardizeFindings(findings, fHeader), background, true

	case fStart != -1 && bStart != -1:
		// background precedes findings
		background := strings.TrimSpace(raw[bStart:fStart])
		findings := strings.TrimSpace(raw[fStart:])
		return standardizeFindings(findings, fHeader), background, true

	case fStart != -1:
		return standardizeFindings(strings.TrimSpace(raw[fStart:]), fHeader), "", true

	case bStart != -1:
		background := strings.TrimSpace(raw[bStart:])
		findings := ""
		// content before the background header with no findings header of its
		// own is treated as findings
		if pre := strings.TrimSpace(raw[:bStart]); pre != "" {
			findings = findingsHeader + "\n" + pre
		}
		return findings, background, true
	}
	return "", "", false
}

// parseLooseLayout handles outputs where the section names appear without the
// exact bold headers: bare or partially numbered, any case.
func parseLooseLayout(raw string) (string, string, bool) {
	lower := strings.ToLower(raw)

	fStart := strings.Index(lower, "findings")
	bStart := strings.Index(lower, "background information")
	if fStart == -1 && bStart == -1 {
		return "", "", false
	}

	switch {
	case fStart != -1 && bStart != -1 && fStart < bStart:
		return findingsHeader + "\n" + strings.TrimSpace(raw[fStart:bStart]),
			backgroundHeader + "\n" + strings.TrimSpace(raw[bStart:]), true
	case fStart != -1 && bStart != -1:
		return findingsHeader + "\n" + strings.TrimSpace(raw[fStart:]),
			backgroundHeader + "\n" + strings.TrimSpace(raw[bStart:fStart]), true
	case fStart != -1:
		return findingsHeader + "\n" + strings.TrimSpace(raw[fStart:]), "", true
	default:
		findings := ""
		if pre := strings.TrimSpace(raw[:bStart]); pre != "" {
			findings = findingsHeader + "\n" + pre
		}
		return findings, backgroundHeader + "\n" + strings.TrimSpace(raw[bStart:]), true
	}
}

func standardizeFindings(findings, foundHeader string) string {
	if foundHeader != "" && foundHeader != findingsHeader {
		findings = strings.Replace(findings, foundHeader, findingsHeader, 1)
	}
	return findings
}
