package results

import (
	"context"

	"github.com/visionrelay/visionrelay/internal/models"
)

// Store keeps recent ClientResponses keyed by request id so callers can
// re-fetch the outcome of a request they just made. Entries are transient and
// expire after the configured TTL; this is deliberately not a detection
// history.
type Store interface {
	Put(ctx context.Context, requestID string, resp models.ClientResponse)
	Get(ctx context.Context, requestID string) (models.ClientResponse, bool)
}
