package models

// BatchRequest is a bounded group of normalized messages sent to the
// structured-generation backend as a single request.
type BatchRequest struct {
	PromptVersion string              `json:"prompt_version"`
	Messages      []NormalizedMessage `json:"messages"`
}

// BatchItem is one classified work unit in a backend response. Index is
// 1-based and refers to the position of the message in the request batch.
type BatchItem struct {
	Index        int      `json:"index"`
	Date         string   `json:"date"`
	DisplayName  string   `json:"display_name"`
	Tag          Tag      `json:"tag"`
	Project      string   `json:"project"`
	Description  string   `json:"description"`
	Participants []string `json:"participants,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
}

// BatchResponse is a validated structured payload from the backend:
// exactly one item per request message, plus a free-text summary.
type BatchResponse struct {
	Items   []BatchItem `json:"items"`
	Summary string      `json:"summary,omitempty"`
}
