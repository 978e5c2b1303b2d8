package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/rotimiadeleye/caseflow/constants"
)

// Job represents one report-generation job for data transfer between layers.
// The jobs package owns the authoritative copy; everything else sees snapshots.
type Job struct {
	ID        uuid.UUID          `json:"id"`
	CaseID    uuid.UUID          `json:"case_id"`
	Section   string             `json:"section,omitempty"`
	State     constants.JobState `json:"state"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Attempts  int                `json:"attempts"`
	Result    *Result            `json:"result,omitempty"`
	Err       *ErrorInfo         `json:"error,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.State.Terminal()
}

// ErrorInfo is the structured reason attached to a FAILED terminal event.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error kinds for ErrorInfo.Kind.
const (
	ErrKindExtraction = "extraction"
	ErrKindInference  = "inference"
	ErrKindParse      = "parse"
	ErrKindCancelled  = "cancelled"
)
