package constants

// JobState is the canonical state for a report-generation job.
type JobState string

// Stable values (stored as-is and sent over the wire).
const (
	JobStateQueued         JobState = "QUEUED"         // accepted, not yet started
	JobStateExtracting     JobState = "EXTRACTING"     // documents being normalized
	JobStateInferring      JobState = "INFERRING"      // model call(s) in flight
	JobStatePostprocessing JobState = "POSTPROCESSING" // parsing model output
	JobStateCompleted      JobState = "COMPLETED"      // terminal success
	JobStateFailed         JobState = "FAILED"         // terminal failure
)

var stateRank = map[JobState]int{
	JobStateQueued:         0,
	JobStateExtracting:     1,
	JobStateInferring:      2,
	JobStatePostprocessing: 3,
	JobStateCompleted:      4,
	JobStateFailed:         4,
}

// Rank orders states along the pipeline. Terminal states share the highest
// rank; transitions must be strictly increasing.
func (s JobState) Rank() int {
	r, ok := stateRank[s]
	if !ok {
		return -1
	}
	return r
}

// Terminal reports whether no further transitions are allowed from s.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Valid reports whether s is a known job state.
func (s JobState) Valid() bool {
	_, ok := stateRank[s]
	return ok
}
