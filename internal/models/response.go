package models

// ClientResponse is the single normalized shape returned to callers.
// Exactly one of Results/Error is set, and Success reflects which one.
type ClientResponse struct {
	Success   bool             `json:"success"`
	RequestID string           `json:"request_id"`
	Results   *DetectionResult `json:"results,omitempty"`
	Error     string           `json:"error,omitempty"`
}
