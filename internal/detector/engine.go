package detector

import (
	"context"

	"github.com/visionrelay/visionrelay/internal/models"
)

// Envelope is a normalized, validated image ready to be forwarded, plus the
// correlation identifier generated for the request. The identifier is created
// once per request and never reused. ContentType is the type the client
// declared for the upload; it travels with the image so the backend sees the
// same declaration.
type Envelope struct {
	RequestID   string
	Filename    string
	ContentType string
	Image       []byte
	Info        models.ImageInfo
}

// FailureKind classifies transport-level failures. Refused and unreachable are
// distinguished because they call for different operator remediation.
type FailureKind string

const (
	FailureTimeout           FailureKind = "timeout"
	FailureConnectionRefused FailureKind = "connection_refused"
	FailureUnreachable       FailureKind = "unreachable"
	FailureMalformedResponse FailureKind = "malformed_response"
)

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeBackendError
	OutcomeTransportFailure
)

// Outcome is the tagged result of one detection round trip. Exactly one
// variant's fields are populated, selected by Kind.
type Outcome struct {
	Kind OutcomeKind

	// Success
	Result *models.DetectionResult

	// BackendError
	StatusCode int
	Message    string

	// TransportFailure
	Failure FailureKind
}

// Engine is the black-box detection operation the gateway forwards to.
// Implementations must be safe to call again with the same envelope; no engine
// retries internally.
type Engine interface {
	// Detect runs one detection round trip. It never returns a Go error:
	// every failure mode is folded into the Outcome so the translator can
	// map it exhaustively.
	Detect(ctx context.Context, env Envelope) Outcome

	// Probe checks whether the engine can currently serve detections.
	Probe(ctx context.Context) error
}
