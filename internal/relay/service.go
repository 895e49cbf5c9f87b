package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/visionrelay/visionrelay/internal/detector"
	"github.com/visionrelay/visionrelay/internal/health"
	"github.com/visionrelay/visionrelay/internal/logging"
	"github.com/visionrelay/visionrelay/internal/metrics"
	"github.com/visionrelay/visionrelay/internal/models"
	"github.com/visionrelay/visionrelay/internal/ratelimit"
	"github.com/visionrelay/visionrelay/internal/results"
	"github.com/visionrelay/visionrelay/internal/upload"
)

// Terminal stages recorded in metrics. Every request ends in exactly one.
const (
	stageRateLimited = "rate_limited"
	stageRejected    = "rejected"
	stageNotReady    = "backend_not_ready"
	stageForwarded   = "forwarded"
)

// UploadRequest is one inbound detection request. It is owned exclusively by
// the handling request's goroutine and discarded after the response is sent.
type UploadRequest struct {
	Raw         []byte
	Filename    string
	ContentType string
	Identity    string
}

// Reply is the terminal result of one request lifecycle.
type Reply struct {
	Response   models.ClientResponse
	Status     int
	RetryAfter time.Duration
}

// Service composes admission, validation, gating, forwarding and translation
// into one request lifecycle. Any stage may short-circuit with a terminal
// reply; no stage is re-entered. Admission decisions are never rolled back: a
// request that later times out still consumed its quota.
type Service struct {
	limiter   ratelimit.Limiter
	validator *upload.Validator
	gate      *health.Gate
	engine    detector.Engine
	store     results.Store
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewService creates the request orchestrator. All collaborators are passed in
// explicitly; the service holds no ambient state of its own.
func NewService(
	limiter ratelimit.Limiter,
	validator *upload.Validator,
	gate *health.Gate,
	engine detector.Engine,
	store results.Store,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Service {
	return &Service{
		limiter:   limiter,
		validator: validator,
		gate:      gate,
		engine:    engine,
		store:     store,
		metrics:   m,
		logger:    logger,
	}
}

// Process runs one request through the full lifecycle:
// admit -> validate -> gate-check -> forward -> translate.
func (s *Service) Process(ctx context.Context, req UploadRequest) Reply {
	start := time.Now()
	requestID := uuid.NewString()

	s.logger.Info("Processing detection request", logging.WithFields(map[string]interface{}{
		"request_id": requestID,
		"filename":   req.Filename,
		"identity":   req.Identity,
	}))

	// Admission happens before any other work and is not rolled back later.
	if reply, denied := s.admit(ctx, start, requestID, req.Identity); denied {
		return reply
	}

	validation := s.validator.Validate(req.Raw, req.Filename)
	if !validation.Accepted {
		s.logger.Info("Upload rejected", logging.WithFields(map[string]interface{}{
			"request_id": requestID,
			"reason":     string(validation.Reason),
		}))
		status := http.StatusBadRequest
		if validation.Reason == upload.RejectTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		return s.finish(start, stageRejected, Reply{
			Response: failure(requestID, validation.Message),
			Status:   status,
		})
	}

	if state := s.gate.CheckOrProbe(ctx); state != health.StateReady {
		s.logger.Warn("Backend not ready, short-circuiting", logging.WithFields(map[string]interface{}{
			"request_id": requestID,
			"state":      state.String(),
		}))
		return s.finish(start, stageNotReady, Reply{
			Response: failure(requestID, "AI backend not ready - try again shortly"),
			Status:   http.StatusServiceUnavailable,
		})
	}

	outcome := s.engine.Detect(ctx, detector.Envelope{
		RequestID:   requestID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Image:       req.Raw,
		Info:        validation.Image,
	})
	if outcome.Kind == detector.OutcomeTransportFailure {
		s.metrics.ObserveBackendFailure(string(outcome.Failure))
	}

	response, status := Translate(requestID, outcome)
	if s.store != nil {
		s.store.Put(ctx, requestID, response)
	}

	if response.Success {
		s.logger.Info("Request completed", logging.WithFields(map[string]interface{}{
			"request_id": requestID,
			"objects":    response.Results.TotalObjects,
			"elapsed_ms": time.Since(start).Milliseconds(),
		}))
	} else {
		s.logger.Error("Request failed", logging.WithFields(map[string]interface{}{
			"request_id": requestID,
			"error":      response.Error,
			"status":     status,
		}))
	}

	return s.finish(start, stageForwarded, Reply{Response: response, Status: status})
}

// Reject terminates a request whose payload never became readable (broken
// multipart framing, missing file field). Such requests still go through
// admission first, consume quota, carry a correlation id and are recorded in
// metrics like every other terminal outcome.
func (s *Service) Reject(ctx context.Context, identity string, status int, message string) Reply {
	start := time.Now()
	requestID := uuid.NewString()

	if reply, denied := s.admit(ctx, start, requestID, identity); denied {
		return reply
	}

	s.logger.Info("Upload rejected", logging.WithFields(map[string]interface{}{
		"request_id": requestID,
		"reason":     "unreadable_payload",
		"identity":   identity,
	}))
	return s.finish(start, stageRejected, Reply{
		Response: failure(requestID, message),
		Status:   status,
	})
}

// admit runs the rate limiter and, on denial, builds the terminal 429 reply.
func (s *Service) admit(ctx context.Context, start time.Time, requestID, identity string) (Reply, bool) {
	decision := s.limiter.Admit(ctx, identity)
	if decision.Allowed {
		return Reply{}, false
	}

	s.metrics.ObserveRateLimited()
	s.logger.Warn("Request rate limited", logging.WithFields(map[string]interface{}{
		"request_id":  requestID,
		"identity":    identity,
		"retry_after": decision.RetryAfter.String(),
	}))
	return s.finish(start, stageRateLimited, Reply{
		Response:   failure(requestID, "Rate limit exceeded, try again later"),
		Status:     http.StatusTooManyRequests,
		RetryAfter: decision.RetryAfter,
	}), true
}

func (s *Service) finish(start time.Time, stage string, reply Reply) Reply {
	s.metrics.ObserveRequest(stage, time.Since(start))
	return reply
}
