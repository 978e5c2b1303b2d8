package entity

// Result is the structured outcome of one job. Produced once, immutable
// thereafter. Raw preserves the model output verbatim for audit.
type Result struct {
	Findings   string `json:"findings"`
	Background string `json:"background"`
	Raw        string `json:"raw"`
	Truncated  bool   `json:"truncated,omitempty"`
}
