package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rekognitiontypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/visionrelay/visionrelay/internal/models"
)

// RekognitionEngine runs detection through AWS Rekognition DetectLabels with
// byte payloads (no S3 dependency). It is an alternative to the HTTP backend
// for deployments without a self-hosted model.
type RekognitionEngine struct {
	client        *rekognition.Client
	minConfidence float32
	maxLabels     int32
}

// NewRekognitionEngine creates an engine using ambient AWS credentials/profile.
func NewRekognitionEngine(ctx context.Context, region string, minConfidence float64, maxLabels int) (*RekognitionEngine, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{}
	trimmedRegion := strings.TrimSpace(region)
	if trimmedRegion != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(trimmedRegion))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if minConfidence <= 0 {
		minConfidence = 25
	}
	if maxLabels <= 0 {
		maxLabels = 50
	}

	return &RekognitionEngine{
		client:        rekognition.NewFromConfig(cfg),
		minConfidence: float32(minConfidence),
		maxLabels:     int32(maxLabels),
	}, nil
}

// Detect calls DetectLabels and converts labeled instances into detections.
// Rekognition boxes are ratios of the frame; they are scaled to pixels using
// the validated image dimensions. Rekognition has no stable numeric class ids,
// so class_id is -1 and class_name is authoritative.
func (e *RekognitionEngine) Detect(ctx context.Context, env Envelope) Outcome {
	start := time.Now()

	output, err := e.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &rekognitiontypes.Image{Bytes: env.Image},
		MinConfidence: aws.Float32(e.minConfidence),
		MaxLabels:     aws.Int32(e.maxLabels),
	})
	if err != nil {
		return transportFailure(classifyTransportError(err))
	}

	detections := []models.Detection{}
	totalClasses := 0
	for _, label := range output.Labels {
		totalClasses++
		name := aws.ToString(label.Name)
		for _, instance := range label.Instances {
			if instance.BoundingBox == nil {
				continue
			}
			confidence := 0.0
			if instance.Confidence != nil {
				confidence = float64(*instance.Confidence) / 100
			}
			detections = append(detections, models.Detection{
				ClassID:    -1,
				ClassName:  name,
				Confidence: confidence,
				BBox:       scaleBox(instance.BoundingBox, env.Info.Width, env.Info.Height),
			})
		}
	}

	return Outcome{
		Kind: OutcomeSuccess,
		Result: &models.DetectionResult{
			Detections:       detections,
			TotalObjects:     len(detections),
			ProcessingTimeMs: float64(time.Since(start).Milliseconds()),
			ModelInfo: models.ModelInfo{
				ModelName:           "aws-rekognition-detect-labels",
				TotalClasses:        totalClasses,
				ConfidenceThreshold: float64(e.minConfidence) / 100,
			},
			ImageInfo: env.Info,
		},
	}
}

// Probe is a no-op readiness check: the Rekognition client is ready as soon as
// credentials resolved at construction time.
func (e *RekognitionEngine) Probe(ctx context.Context) error {
	_ = ctx
	return nil
}

func scaleBox(box *rekognitiontypes.BoundingBox, width, height int) models.BBox {
	left := float64(aws.ToFloat32(box.Left))
	top := float64(aws.ToFloat32(box.Top))
	w := float64(aws.ToFloat32(box.Width))
	h := float64(aws.ToFloat32(box.Height))

	x1 := int(left * float64(width))
	y1 := int(top * float64(height))
	x2 := int((left + w) * float64(width))
	y2 := int((top + h) * float64(height))

	return models.BBox{
		X1:      x1,
		Y1:      y1,
		X2:      x2,
		Y2:      y2,
		Width:   x2 - x1,
		Height:  y2 - y1,
		CenterX: (x1 + x2) / 2,
		CenterY: (y1 + y2) / 2,
	}
}
