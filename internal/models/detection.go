package models

// BBox is an axis-aligned bounding box in pixel coordinates, with derived
// width/height/center fields carried verbatim from the backend.
type BBox struct {
	X1      int `json:"x1"`
	Y1      int `json:"y1"`
	X2      int `json:"x2"`
	Y2      int `json:"y2"`
	Width   int `json:"width"`
	Height  int `json:"height"`
	CenterX int `json:"center_x"`
	CenterY int `json:"center_y"`
}

// Detection is one recognized object instance.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// ModelInfo describes the model that produced a set of detections.
type ModelInfo struct {
	ModelName           string  `json:"model_name"`
	TotalClasses        int     `json:"total_classes"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// ImageInfo carries the decoded dimensions of the processed image.
type ImageInfo struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`
}

// DetectionResult is the results block of a successful detection round trip.
type DetectionResult struct {
	Detections       []Detection `json:"detections"`
	TotalObjects     int         `json:"total_objects"`
	ProcessingTimeMs float64     `json:"processing_time_ms"`
	ModelInfo        ModelInfo   `json:"model_info"`
	ImageInfo        ImageInfo   `json:"image_info"`
}
