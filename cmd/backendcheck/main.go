package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/visionrelay/visionrelay/internal/detector"
	"github.com/visionrelay/visionrelay/internal/logging"
	"github.com/visionrelay/visionrelay/internal/upload"
)

// backendcheck probes a detection backend's health and optionally runs one
// detection against a local image, printing what the gateway would see.
func main() {
	backendURL := flag.String("backend-url", "http://127.0.0.1:5001", "detection backend base URL")
	imagePath := flag.String("image", os.Getenv("IMAGE"), "path to local image file (optional)")
	timeout := flag.Duration("timeout", 30*time.Second, "detection call timeout")
	flag.Parse()

	logger := logging.New(logging.LevelWarn)
	engine := detector.NewHTTPEngine(*backendURL, *timeout, 5*time.Second, logger)

	ctx := context.Background()

	if err := engine.Probe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "backend not ready: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Backend ready")

	if *imagePath == "" {
		return
	}

	imageBytes, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read image: %v\n", err)
		os.Exit(1)
	}

	validator := upload.NewValidator(0)
	result := validator.Validate(imageBytes, filepath.Base(*imagePath))
	if !result.Accepted {
		fmt.Fprintf(os.Stderr, "image rejected: %s\n", result.Message)
		os.Exit(1)
	}

	outcome := engine.Detect(ctx, detector.Envelope{
		RequestID: uuid.NewString(),
		Filename:  filepath.Base(*imagePath),
		Image:     imageBytes,
		Info:      result.Image,
	})

	switch outcome.Kind {
	case detector.OutcomeSuccess:
		fmt.Printf("Detections: %d (%.2fms, model %s)\n",
			outcome.Result.TotalObjects,
			outcome.Result.ProcessingTimeMs,
			outcome.Result.ModelInfo.ModelName)
		for _, d := range outcome.Result.Detections {
			fmt.Printf("  %s %.4f [%d,%d %d,%d]\n",
				d.ClassName, d.Confidence, d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2)
		}
	case detector.OutcomeBackendError:
		fmt.Fprintf(os.Stderr, "backend error %d: %s\n", outcome.StatusCode, outcome.Message)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "transport failure: %s\n", outcome.Failure)
		os.Exit(1)
	}
}
