package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"syscall"
	"time"

	"github.com/visionrelay/visionrelay/internal/logging"
	"github.com/visionrelay/visionrelay/internal/models"
)

const defaultDetectTimeout = 30 * time.Second

// HTTPEngine forwards detection requests to an AI backend over HTTP.
type HTTPEngine struct {
	baseURL      string
	client       *http.Client
	probeClient  *http.Client
	timeout      time.Duration
	probeTimeout time.Duration
	logger       *logging.Logger
}

// NewHTTPEngine creates an engine targeting the backend at baseURL. timeout
// bounds the detection call; probeTimeout bounds health probes independently.
func NewHTTPEngine(baseURL string, timeout, probeTimeout time.Duration, logger *logging.Logger) *HTTPEngine {
	if timeout <= 0 {
		timeout = defaultDetectTimeout
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &HTTPEngine{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		probeClient:  &http.Client{Timeout: probeTimeout},
		timeout:      timeout,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// backendErrorBody is the backend's structured error payload.
type backendErrorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

// backendDetectBody is the backend's success payload for POST /detect.
type backendDetectBody struct {
	Success          *bool              `json:"success"`
	Detections       []models.Detection `json:"detections"`
	TotalObjects     int                `json:"total_objects"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	ModelInfo        models.ModelInfo   `json:"model_info"`
	ImageInfo        models.ImageInfo   `json:"image_info"`
}

// Detect posts the image to the backend's /detect endpoint as a multipart form
// and classifies every failure mode into the outcome.
func (e *HTTPEngine) Detect(ctx context.Context, env Envelope) Outcome {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreatePart(imagePartHeader(env))
	if err != nil {
		return transportFailure(FailureUnreachable)
	}
	if _, err := io.Copy(part, bytes.NewReader(env.Image)); err != nil {
		return transportFailure(FailureUnreachable)
	}
	if err := writer.Close(); err != nil {
		return transportFailure(FailureUnreachable)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, e.baseURL+"/detect", body)
	if err != nil {
		return transportFailure(FailureUnreachable)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Request-ID", env.RequestID)

	resp, err := e.client.Do(req)
	if err != nil {
		kind := classifyTransportError(err)
		e.logger.Warn("Detection call failed", logging.WithFields(map[string]interface{}{
			"request_id": env.RequestID,
			"kind":       string(kind),
			"error":      err.Error(),
		}))
		return transportFailure(kind)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return transportFailure(classifyTransportError(err))
	}

	if resp.StatusCode != http.StatusOK {
		return backendError(resp.StatusCode, raw)
	}

	var parsed backendDetectBody
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Success == nil {
		e.logger.Error("Malformed backend response", logging.WithFields(map[string]interface{}{
			"request_id": env.RequestID,
			"bytes":      len(raw),
		}))
		return transportFailure(FailureMalformedResponse)
	}
	if !*parsed.Success {
		// A 200 carrying success=false has no defined meaning on this wire.
		return transportFailure(FailureMalformedResponse)
	}

	detections := parsed.Detections
	if detections == nil {
		detections = []models.Detection{}
	}

	return Outcome{
		Kind: OutcomeSuccess,
		Result: &models.DetectionResult{
			Detections:       detections,
			TotalObjects:     len(detections),
			ProcessingTimeMs: parsed.ProcessingTimeMs,
			ModelInfo:        parsed.ModelInfo,
			ImageInfo:        parsed.ImageInfo,
		},
	}
}

// Probe checks the backend's health surface. The backend is only considered
// ready once its model finished loading.
func (e *HTTPEngine) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := e.probeClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health returned status %d", resp.StatusCode)
	}

	var health models.BackendHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode backend health: %w", err)
	}
	if health.ModelStatus != "" && health.ModelStatus != "loaded" {
		return fmt.Errorf("backend model not ready: %s", health.ModelStatus)
	}

	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, `\"`)

// imagePartHeader builds the multipart header for the forwarded image,
// carrying the client's declared content type through to the backend.
func imagePartHeader(env Envelope) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(env.Filename)))
	if env.ContentType != "" {
		h.Set("Content-Type", env.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	return h
}

func transportFailure(kind FailureKind) Outcome {
	return Outcome{Kind: OutcomeTransportFailure, Failure: kind}
}

func backendError(status int, raw []byte) Outcome {
	message := fmt.Sprintf("AI backend error: %d", status)

	var parsed backendErrorBody
	if err := json.Unmarshal(raw, &parsed); err == nil && strings.TrimSpace(parsed.Error) != "" {
		message = parsed.Error
	}

	return Outcome{Kind: OutcomeBackendError, StatusCode: status, Message: message}
}

// classifyTransportError folds Go transport errors into the failure taxonomy.
func classifyTransportError(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return FailureConnectionRefused
	}
	return FailureUnreachable
}
