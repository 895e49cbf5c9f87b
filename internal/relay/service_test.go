package relay

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/visionrelay/visionrelay/internal/detector"
	"github.com/visionrelay/visionrelay/internal/health"
	"github.com/visionrelay/visionrelay/internal/metrics"
	"github.com/visionrelay/visionrelay/internal/models"
	"github.com/visionrelay/visionrelay/internal/ratelimit"
	"github.com/visionrelay/visionrelay/internal/results"
	"github.com/visionrelay/visionrelay/internal/testutil"
	"github.com/visionrelay/visionrelay/internal/upload"
)

type staticProber struct{ err error }

func (p *staticProber) Probe(ctx context.Context) error { return p.err }

type fixture struct {
	svc    *Service
	engine *detector.MockEngine
	store  *results.MemoryStore
}

func newFixture(t *testing.T, probeErr error, windows []ratelimit.Window) *fixture {
	t.Helper()

	engine := &detector.MockEngine{Outcome: detector.Outcome{
		Kind: detector.OutcomeSuccess,
		Result: &models.DetectionResult{
			Detections:       []models.Detection{},
			TotalObjects:     0,
			ProcessingTimeMs: 1,
			ModelInfo:        models.ModelInfo{ModelName: "mock", TotalClasses: 1},
			ImageInfo:        models.ImageInfo{Width: 8, Height: 8, Channels: 4},
		},
	}}

	if windows == nil {
		windows = []ratelimit.Window{ratelimit.PerMinute(100)}
	}

	gate := health.NewGate(&staticProber{err: probeErr}, time.Minute, testutil.NullLogger())
	store := results.NewMemory(time.Minute)
	t.Cleanup(store.Stop)

	svc := NewService(
		ratelimit.NewMemory(windows),
		upload.NewValidator(1024*1024),
		gate,
		engine,
		store,
		metrics.New(prometheus.NewRegistry()),
		testutil.NullLogger(),
	)

	return &fixture{svc: svc, engine: engine, store: store}
}

func validPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestProcess_Success(t *testing.T) {
	f := newFixture(t, nil, nil)

	reply := f.svc.Process(context.Background(), UploadRequest{
		Raw:      validPNG(t),
		Filename: "photo.png",
		Identity: "1.2.3.4",
	})

	if !reply.Response.Success {
		t.Fatalf("expected success, got error %q", reply.Response.Error)
	}
	if reply.Status != http.StatusOK {
		t.Errorf("status=%d, want 200", reply.Status)
	}
	if reply.Response.RequestID == "" {
		t.Error("response must carry a request id")
	}
	if f.engine.DetectCalls() != 1 {
		t.Errorf("engine called %d times, want 1", f.engine.DetectCalls())
	}
}

func TestProcess_RequestIDsNeverReused(t *testing.T) {
	f := newFixture(t, nil, nil)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		reply := f.svc.Process(context.Background(), UploadRequest{
			Raw: validPNG(t), Filename: "photo.png", Identity: "1.2.3.4",
		})
		if seen[reply.Response.RequestID] {
			t.Fatalf("request id %q reused", reply.Response.RequestID)
		}
		seen[reply.Response.RequestID] = true
	}
}

func TestProcess_RejectedUploadNeverForwarded(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name       string
		raw        []byte
		filename   string
		wantStatus int
	}{
		{name: "empty", raw: nil, filename: "photo.png", wantStatus: 400},
		{name: "oversized", raw: make([]byte, 2*1024*1024), filename: "big.png", wantStatus: 413},
		{name: "bad_extension", raw: validPNG(t), filename: "photo.tiff", wantStatus: 400},
		{name: "undecodable", raw: make([]byte, 600), filename: "photo.png", wantStatus: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := f.svc.Process(context.Background(), UploadRequest{
				Raw: tt.raw, Filename: tt.filename, Identity: "1.2.3.4",
			})
			if reply.Response.Success {
				t.Fatal("rejected upload must not succeed")
			}
			if reply.Status != tt.wantStatus {
				t.Errorf("status=%d, want %d", reply.Status, tt.wantStatus)
			}
		})
	}

	if f.engine.DetectCalls() != 0 {
		t.Errorf("engine called %d times for rejected uploads, want 0", f.engine.DetectCalls())
	}
}

func TestProcess_BackendNotReadyShortCircuits(t *testing.T) {
	f := newFixture(t, errors.New("model loading"), nil)

	reply := f.svc.Process(context.Background(), UploadRequest{
		Raw: validPNG(t), Filename: "photo.png", Identity: "1.2.3.4",
	})

	if reply.Response.Success {
		t.Fatal("expected failure while backend not ready")
	}
	if reply.Status != http.StatusServiceUnavailable {
		t.Errorf("status=%d, want 503", reply.Status)
	}
	if f.engine.DetectCalls() != 0 {
		t.Errorf("engine called %d times while not ready, want 0", f.engine.DetectCalls())
	}
}

func TestProcess_RateLimitShortCircuits(t *testing.T) {
	f := newFixture(t, nil, []ratelimit.Window{ratelimit.PerMinute(2)})

	for i := 0; i < 2; i++ {
		reply := f.svc.Process(context.Background(), UploadRequest{
			Raw: validPNG(t), Filename: "photo.png", Identity: "A",
		})
		if !reply.Response.Success {
			t.Fatalf("request %d should pass: %s", i+1, reply.Response.Error)
		}
	}

	reply := f.svc.Process(context.Background(), UploadRequest{
		Raw: validPNG(t), Filename: "photo.png", Identity: "A",
	})
	if reply.Response.Success {
		t.Fatal("third request should be rate limited")
	}
	if reply.Status != http.StatusTooManyRequests {
		t.Errorf("status=%d, want 429", reply.Status)
	}
	if reply.RetryAfter <= 0 {
		t.Error("denied reply must carry RetryAfter > 0")
	}
	if f.engine.DetectCalls() != 2 {
		t.Errorf("engine called %d times, want 2", f.engine.DetectCalls())
	}

	// Rate limiting one identity must not block another.
	other := f.svc.Process(context.Background(), UploadRequest{
		Raw: validPNG(t), Filename: "photo.png", Identity: "B",
	})
	if !other.Response.Success {
		t.Errorf("identity B should not be affected by A's denial: %s", other.Response.Error)
	}
}

func TestReject_AdmittedAndCorrelated(t *testing.T) {
	f := newFixture(t, nil, []ratelimit.Window{ratelimit.PerMinute(2)})

	reply := f.svc.Reject(context.Background(), "A", http.StatusBadRequest, "No image file provided")
	if reply.Response.Success {
		t.Fatal("rejection must not succeed")
	}
	if reply.Status != http.StatusBadRequest {
		t.Errorf("status=%d, want 400", reply.Status)
	}
	if reply.Response.RequestID == "" {
		t.Error("rejection must carry a request id")
	}
	if reply.Response.Error != "No image file provided" {
		t.Errorf("error=%q", reply.Response.Error)
	}
}

func TestReject_ConsumesQuota(t *testing.T) {
	f := newFixture(t, nil, []ratelimit.Window{ratelimit.PerMinute(2)})

	// Two unreadable uploads burn the whole minute budget.
	for i := 0; i < 2; i++ {
		reply := f.svc.Reject(context.Background(), "A", http.StatusBadRequest, "Invalid upload payload")
		if reply.Status != http.StatusBadRequest {
			t.Fatalf("rejection %d status=%d, want 400", i+1, reply.Status)
		}
	}

	reply := f.svc.Process(context.Background(), UploadRequest{
		Raw: validPNG(t), Filename: "photo.png", Identity: "A",
	})
	if reply.Status != http.StatusTooManyRequests {
		t.Errorf("status=%d, want 429 after quota spent on rejections", reply.Status)
	}
	if f.engine.DetectCalls() != 0 {
		t.Errorf("engine called %d times, want 0", f.engine.DetectCalls())
	}

	// An exhausted identity gets the 429, not the rejection message.
	denied := f.svc.Reject(context.Background(), "A", http.StatusBadRequest, "Invalid upload payload")
	if denied.Status != http.StatusTooManyRequests {
		t.Errorf("status=%d, want 429 for rejection past the limit", denied.Status)
	}
	if denied.RetryAfter <= 0 {
		t.Error("denied reply must carry RetryAfter > 0")
	}
}

func TestProcess_StoresTerminalResponse(t *testing.T) {
	f := newFixture(t, nil, nil)

	reply := f.svc.Process(context.Background(), UploadRequest{
		Raw: validPNG(t), Filename: "photo.png", Identity: "1.2.3.4",
	})

	stored, ok := f.store.Get(context.Background(), reply.Response.RequestID)
	if !ok {
		t.Fatal("forwarded request's response should be stored")
	}
	if stored.RequestID != reply.Response.RequestID || stored.Success != reply.Response.Success {
		t.Error("stored response does not match the reply")
	}
}

func TestProcess_TranslatesBackendFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.engine.Outcome = detector.Outcome{
		Kind:    detector.OutcomeTransportFailure,
		Failure: detector.FailureTimeout,
	}

	reply := f.svc.Process(context.Background(), UploadRequest{
		Raw: validPNG(t), Filename: "photo.png", Identity: "1.2.3.4",
	})

	if reply.Response.Success {
		t.Fatal("timeout must not succeed")
	}
	if reply.Status != http.StatusGatewayTimeout {
		t.Errorf("status=%d, want 504", reply.Status)
	}
}
