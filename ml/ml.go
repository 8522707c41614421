// Package ml talks to the external Python inference service. The service is
// optional: every caller must probe availability first and fall back to the
// local estimator or heuristic when it is down.
package ml

import "context"

// ImageVerdict is the per-image result of a mangrove verification call.
type ImageVerdict struct {
	MangroveDetected bool    `json:"mangrove_detected"`
	Confidence       float64 `json:"confidence"`
	ModelType        string  `json:"model_type"`
}

// Analysis is the result of a general image classification call.
type Analysis struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details"`
}

// Prediction is a coordinate-based coverage prediction.
type Prediction struct {
	Coverage    float64 `json:"coverage"`
	NDVI        float64 `json:"ndvi"`
	Confidence  float64 `json:"confidence"`
	HealthScore float64 `json:"health_score"`
	ModelType   string  `json:"model_type"`
}

// Client abstracts the inference endpoint. Implementations must be
// concurrency-safe and must bound every call with a timeout.
type Client interface {
	// Ping is the availability probe: GET /health with a short timeout.
	// It returns false on any network error, non-200 status, or timeout,
	// and never panics. Call it fresh before every substantive request.
	Ping(ctx context.Context) bool
	// VerifyImage runs per-image mangrove verification (strict mode flag).
	VerifyImage(ctx context.Context, image []byte, filename string, strict bool) (*ImageVerdict, error)
	// AnalyzeImage runs general classification on one image.
	AnalyzeImage(ctx context.Context, image []byte, filename string) (*Analysis, error)
	// PredictCoverage predicts mangrove coverage at a coordinate.
	PredictCoverage(ctx context.Context, latitude, longitude float64) (*Prediction, error)
	// SourceName returns a short provider label to persist with results.
	SourceName() string
}
