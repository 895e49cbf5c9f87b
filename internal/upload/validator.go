package upload

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"path/filepath"
	"strings"

	// Decoders for the formats on the upload allow-list. webp is not in the
	// standard library image repertoire.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/visionrelay/visionrelay/internal/models"
)

// RejectReason distinguishes why an upload was refused so the translator can
// pick the right status code.
type RejectReason string

const (
	RejectEmpty       RejectReason = "EMPTY_FILE"
	RejectTooLarge    RejectReason = "FILE_TOO_LARGE"
	RejectBadType     RejectReason = "INVALID_FILE_TYPE"
	RejectUndecodable RejectReason = "INVALID_IMAGE_FORMAT"
)

// DefaultMaxBytes is the upload size ceiling when none is configured.
const DefaultMaxBytes = 16 * 1024 * 1024

var allowedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

// Result is the tagged outcome of validating an upload. Accepted carries the
// decoded image metadata; rejected carries the reason and a client-facing
// message.
type Result struct {
	Accepted bool
	Image    models.ImageInfo
	Reason   RejectReason
	Message  string
}

// Validator inspects inbound uploads before any network call is made.
// It is stateless; a single instance is shared across requests.
type Validator struct {
	maxBytes int64
}

// NewValidator creates a validator with the given size ceiling. A non-positive
// ceiling falls back to DefaultMaxBytes.
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{maxBytes: maxBytes}
}

// MaxBytes returns the configured size ceiling.
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

// Validate inspects the raw payload and declared filename. It does not retain
// the buffer after returning.
func (v *Validator) Validate(raw []byte, filename string) Result {
	if len(raw) == 0 {
		return rejected(RejectEmpty, "Empty file provided")
	}
	if int64(len(raw)) > v.maxBytes {
		return rejected(RejectTooLarge,
			fmt.Sprintf("Image file too large (max %dMB)", v.maxBytes/(1024*1024)))
	}

	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if _, ok := allowedExtensions[ext]; !ok {
		return rejected(RejectBadType, "Invalid file type. Allowed: png, jpg, jpeg, webp")
	}

	if _, ok := detectAllowedImageContentType(raw); !ok {
		return rejected(RejectUndecodable, "Invalid image format or corrupted file")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return rejected(RejectUndecodable, "Invalid image format or corrupted file")
	}

	return Result{
		Accepted: true,
		Image: models.ImageInfo{
			Width:    cfg.Width,
			Height:   cfg.Height,
			Channels: channelCount(cfg),
		},
	}
}

func rejected(reason RejectReason, message string) Result {
	return Result{Reason: reason, Message: message}
}

var allowedImageContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

func detectAllowedImageContentType(imageData []byte) (string, bool) {
	if len(imageData) == 0 {
		return "", false
	}

	contentType := strings.ToLower(strings.TrimSpace(http.DetectContentType(imageData)))
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}

	_, ok := allowedImageContentTypes[contentType]
	return contentType, ok
}

// channelCount reports 4 for formats decoded with an alpha channel and 3 for
// everything else, matching what the backend sees after decode.
func channelCount(cfg image.Config) int {
	switch cfg.ColorModel {
	case color.NRGBAModel, color.RGBAModel, color.NRGBA64Model, color.RGBA64Model:
		return 4
	default:
		return 3
	}
}
