package relay

import (
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/visionrelay/visionrelay/internal/detector"
	"github.com/visionrelay/visionrelay/internal/models"
)

func successOutcome(n int) detector.Outcome {
	detections := make([]models.Detection, 0, n)
	for i := 0; i < n; i++ {
		detections = append(detections, models.Detection{
			ClassID:    i,
			ClassName:  "person",
			Confidence: 0.75,
			BBox:       models.BBox{X1: i, Y1: i, X2: i + 10, Y2: i + 20, Width: 10, Height: 20, CenterX: i + 5, CenterY: i + 10},
		})
	}
	return detector.Outcome{
		Kind: detector.OutcomeSuccess,
		Result: &models.DetectionResult{
			Detections:       detections,
			TotalObjects:     n,
			ProcessingTimeMs: 12.3,
			ModelInfo:        models.ModelInfo{ModelName: "yolo11n.pt", TotalClasses: 80, ConfidenceThreshold: 0.25},
			ImageInfo:        models.ImageInfo{Width: 640, Height: 480, Channels: 3},
		},
	}
}

func TestTranslate_Success(t *testing.T) {
	t.Parallel()

	resp, status := Translate("req-1", successOutcome(3))

	if !resp.Success {
		t.Error("success outcome must translate to success=true")
	}
	if status != http.StatusOK {
		t.Errorf("status=%d, want 200", status)
	}
	if resp.Error != "" {
		t.Error("success response must not carry an error")
	}
	if resp.Results == nil {
		t.Fatal("success response must carry results")
	}
	if resp.Results.TotalObjects != 3 || len(resp.Results.Detections) != 3 {
		t.Errorf("total=%d len=%d, want 3/3", resp.Results.TotalObjects, len(resp.Results.Detections))
	}
	for i, d := range resp.Results.Detections {
		if d.ClassName != "person" || d.Confidence != 0.75 {
			t.Errorf("detection %d not preserved verbatim: %+v", i, d)
		}
	}
}

func TestTranslate_FailureTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		outcome      detector.Outcome
		wantStatus   int
		wantContains string
	}{
		{
			name:         "backend_4xx_passthrough",
			outcome:      detector.Outcome{Kind: detector.OutcomeBackendError, StatusCode: 400, Message: "No image file provided"},
			wantStatus:   400,
			wantContains: "No image file provided",
		},
		{
			name:         "backend_413_passthrough",
			outcome:      detector.Outcome{Kind: detector.OutcomeBackendError, StatusCode: 413, Message: "Image file too large (max 16MB)"},
			wantStatus:   413,
			wantContains: "too large",
		},
		{
			name:         "backend_503_model_not_ready",
			outcome:      detector.Outcome{Kind: detector.OutcomeBackendError, StatusCode: 503, Message: "AI model not ready"},
			wantStatus:   503,
			wantContains: "AI backend error: AI model not ready",
		},
		{
			name:         "backend_500",
			outcome:      detector.Outcome{Kind: detector.OutcomeBackendError, StatusCode: 500, Message: "Detection processing failed: boom"},
			wantStatus:   502,
			wantContains: "AI backend error: Detection processing failed: boom",
		},
		{
			name:         "timeout",
			outcome:      detector.Outcome{Kind: detector.OutcomeTransportFailure, Failure: detector.FailureTimeout},
			wantStatus:   504,
			wantContains: "timeout",
		},
		{
			name:         "connection_refused",
			outcome:      detector.Outcome{Kind: detector.OutcomeTransportFailure, Failure: detector.FailureConnectionRefused},
			wantStatus:   503,
			wantContains: "AI backend unavailable - service may be down",
		},
		{
			name:         "unreachable",
			outcome:      detector.Outcome{Kind: detector.OutcomeTransportFailure, Failure: detector.FailureUnreachable},
			wantStatus:   503,
			wantContains: "AI backend unavailable - service may be down",
		},
		{
			name:         "malformed_response_stays_generic",
			outcome:      detector.Outcome{Kind: detector.OutcomeTransportFailure, Failure: detector.FailureMalformedResponse},
			wantStatus:   502,
			wantContains: "Detection processing failed",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, status := Translate("req-1", tt.outcome)

			if resp.Success {
				t.Error("failure outcome must translate to success=false")
			}
			if resp.Results != nil {
				t.Error("failure response must not carry results")
			}
			if resp.RequestID != "req-1" {
				t.Errorf("request_id=%q, want req-1", resp.RequestID)
			}
			if status != tt.wantStatus {
				t.Errorf("status=%d, want %d", status, tt.wantStatus)
			}
			if !strings.Contains(resp.Error, tt.wantContains) {
				t.Errorf("error=%q, want it to contain %q", resp.Error, tt.wantContains)
			}
		})
	}
}

func TestTranslate_Idempotent(t *testing.T) {
	t.Parallel()

	outcomes := []detector.Outcome{
		successOutcome(2),
		{Kind: detector.OutcomeBackendError, StatusCode: 500, Message: "boom"},
		{Kind: detector.OutcomeTransportFailure, Failure: detector.FailureTimeout},
	}

	for _, outcome := range outcomes {
		first, firstStatus := Translate("req-9", outcome)
		second, secondStatus := Translate("req-9", outcome)
		if !reflect.DeepEqual(first, second) || firstStatus != secondStatus {
			t.Errorf("Translate not idempotent for kind %v", outcome.Kind)
		}
	}
}
