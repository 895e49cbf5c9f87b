package relay

import (
	"fmt"
	"net/http"

	"github.com/visionrelay/visionrelay/internal/detector"
	"github.com/visionrelay/visionrelay/internal/models"
)

// Translate maps a backend outcome to the normalized client response and the
// wire status to send it with. It is a pure, total function over all outcome
// variants: calling it twice on the same outcome yields the same response.
func Translate(requestID string, out detector.Outcome) (models.ClientResponse, int) {
	switch out.Kind {
	case detector.OutcomeSuccess:
		return models.ClientResponse{
			Success:   true,
			RequestID: requestID,
			Results:   out.Result,
		}, http.StatusOK

	case detector.OutcomeBackendError:
		if out.StatusCode >= 400 && out.StatusCode < 500 {
			// Client-category backend errors pass through untouched.
			return failure(requestID, out.Message), out.StatusCode
		}
		status := http.StatusBadGateway
		if out.StatusCode == http.StatusServiceUnavailable {
			status = http.StatusServiceUnavailable
		}
		return failure(requestID, fmt.Sprintf("AI backend error: %s", out.Message)), status

	default:
		switch out.Failure {
		case detector.FailureTimeout:
			return failure(requestID, "AI backend timeout - processing took too long"),
				http.StatusGatewayTimeout
		case detector.FailureConnectionRefused, detector.FailureUnreachable:
			return failure(requestID, "AI backend unavailable - service may be down"),
				http.StatusServiceUnavailable
		default:
			// Malformed responses never leak parse internals to the caller.
			return failure(requestID, "Detection processing failed"),
				http.StatusBadGateway
		}
	}
}

func failure(requestID, message string) models.ClientResponse {
	return models.ClientResponse{
		Success:   false,
		RequestID: requestID,
		Error:     message,
	}
}
