package models

import "time"

// VerificationStatus is the terminal state of one verification workflow run.
type VerificationStatus string

const (
	VerificationVerified      VerificationStatus = "verified"
	VerificationFailed        VerificationStatus = "failed"
	VerificationPendingReview VerificationStatus = "pending_review"
	VerificationError         VerificationStatus = "error"
)

// ImageVerification is the verdict for a single evidence image.
type ImageVerification struct {
	Image            string  `json:"image"`
	MangroveDetected bool    `json:"mangrove_detected"`
	Confidence       float64 `json:"confidence"`
	ModelType        string  `json:"model_type"`
}

// VerificationResult aggregates per-image verdicts for one incident. It is
// overwritten on re-run, never versioned.
type VerificationResult struct {
	PerImage                []ImageVerification `json:"per_image"`
	AggregateConfidence     float64             `json:"aggregate_confidence"`
	MangroveDetectedOverall bool                `json:"mangrove_detected_overall"`
	Status                  VerificationStatus  `json:"status"`
	Reason                  string              `json:"reason"`
	Timestamp               time.Time           `json:"timestamp"`
}
