package models

// BackendHealth is the slice of the detection backend's /health payload the
// gateway acts on. Fields the backend reports but the gateway never reads are
// deliberately left out.
type BackendHealth struct {
	Service     string `json:"service"`
	Status      string `json:"status"`
	ModelStatus string `json:"model_status"`
}

// GatewayHealth is the gateway's aggregated /health payload.
type GatewayHealth struct {
	Service         string `json:"service"`
	Status          string `json:"status"`
	AIBackendStatus string `json:"ai_backend_status"`
}
