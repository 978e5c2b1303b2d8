package extract

import "fmt"

// ExtractionError reports a malformed or unreadable input document. It is
// fatal to the job that owns the document; extraction never silently
// downgrades bad input to empty content.
type ExtractionError struct {
	Source string
	Reason string
	Cause  error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Source, e.Reason, e.Cause)
	}
	return fmt.Sprintf("extract %s: %s", e.Source, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

func extractionErr(source, reason string, cause error) *ExtractionError {
	return &ExtractionError{Source: source, Reason: reason, Cause: cause}
}
