// Package verification runs the report verification workflow: per-image
// mangrove verification against the ML endpoint with a local heuristic
// fallback, aggregation into one verdict, and best-effort write-back.
package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"

	"mangrovewatch/metrics"
	"mangrovewatch/ml"
	"mangrovewatch/models"
)

// Confidence thresholds for the aggregate verdict. The band between them
// routes borderline incidents to manual review instead of auto-failing or
// auto-passing.
const (
	FailBelow       = 0.5
	VerifyAtOrAbove = 0.6
)

// Store is the write-back side of the incident store.
type Store interface {
	AttachVerification(ctx context.Context, incidentID string, result *models.VerificationResult) error
}

// FetchFunc resolves an image reference to its bytes. References may be
// server-side URLs, storage keys, or inline base64 payloads; the caller picks
// the resolver that fits its environment.
type FetchFunc func(ctx context.Context, ref string) ([]byte, error)

// Workflow verifies one incident at a time. Concurrent runs against the same
// incident id are not synchronized; the last write-back wins, which the
// domain tolerates.
type Workflow struct {
	ml     ml.Client
	store  Store
	fetch  FetchFunc
	strict bool
	now    func() time.Time
}

func New(mlClient ml.Client, store Store, fetch FetchFunc) *Workflow {
	return &Workflow{
		ml:     mlClient,
		store:  store,
		fetch:  fetch,
		strict: true,
		now:    time.Now,
	}
}

// Run executes the workflow and always returns a result: any unexpected
// panic is converted to a status=error result rather than propagating.
func (w *Workflow) Run(ctx context.Context, incident *models.Incident) (result *models.VerificationResult) {
	start := w.now()

	defer func() {
		if r := recover(); r != nil {
			result = &models.VerificationResult{
				Status:    models.VerificationError,
				Reason:    fmt.Sprintf("verification aborted: %v", r),
				Timestamp: w.now(),
			}
			log.Errorf("Verification of incident %s panicked: %v", incident.ID, r)
		}
		metrics.VerificationTotal.WithLabelValues(string(result.Status)).Inc()
		metrics.VerificationDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	// Entry guard: nothing to verify, no network calls.
	if len(incident.Images) == 0 {
		result = &models.VerificationResult{
			PerImage:  []models.ImageVerification{},
			Status:    models.VerificationFailed,
			Reason:    "no images provided",
			Timestamp: w.now(),
		}
		w.persist(ctx, incident.ID, result)
		return result
	}

	perImage := make([]models.ImageVerification, 0, len(incident.Images))
	for _, ref := range incident.Images {
		perImage = append(perImage, w.verifyOne(ctx, ref))
	}

	overall := false
	sum := 0.0
	for _, iv := range perImage {
		overall = overall || iv.MangroveDetected
		sum += iv.Confidence
	}
	aggregate := sum / float64(len(perImage))

	status, reason := verdict(overall, aggregate, incident.Type)

	result = &models.VerificationResult{
		PerImage:                perImage,
		AggregateConfidence:     aggregate,
		MangroveDetectedOverall: overall,
		Status:                  status,
		Reason:                  reason,
		Timestamp:               w.now(),
	}

	w.persist(ctx, incident.ID, result)
	return result
}

// verifyOne asks the ML endpoint for a per-image verdict and falls back to
// the local heuristic on any failure, so partial outages never abort the run.
func (w *Workflow) verifyOne(ctx context.Context, ref string) models.ImageVerification {
	data, err := w.fetch(ctx, ref)
	if err == nil && w.ml.Ping(ctx) {
		metrics.ProbeTotal.WithLabelValues("up").Inc()
		v, verr := w.ml.VerifyImage(ctx, data, ref, w.strict)
		if verr == nil {
			return models.ImageVerification{
				Image:            ref,
				MangroveDetected: v.MangroveDetected,
				Confidence:       v.Confidence,
				ModelType:        v.ModelType,
			}
		}
		log.WithError(verr).Warnf("ML verification failed for image %s, using heuristic", ref)
	} else if err != nil {
		log.WithError(err).Warnf("Failed to load image %s, using heuristic", ref)
	} else {
		metrics.ProbeTotal.WithLabelValues("down").Inc()
	}

	metrics.FallbackTotal.WithLabelValues("heuristic").Inc()
	detected, confidence := heuristicVerdict(ref, len(data))
	return models.ImageVerification{
		Image:            ref,
		MangroveDetected: detected,
		Confidence:       confidence,
		ModelType:        HeuristicModelType,
	}
}

// verdict applies the aggregate rule in order. Confidence below FailBelow
// fails outright; the [FailBelow, VerifyAtOrAbove) band goes to manual
// review; anything at or above VerifyAtOrAbove (with a detection) verifies.
// The type compatibility check is part of the rule order, but every current
// incident type is treated as compatible with vegetation evidence.
func verdict(overall bool, aggregate float64, incidentType models.IncidentType) (models.VerificationStatus, string) {
	if !overall {
		return models.VerificationFailed, "no vegetation detected"
	}
	if aggregate < FailBelow {
		return models.VerificationFailed, "low confidence"
	}
	if aggregate < VerifyAtOrAbove {
		return models.VerificationPendingReview, "borderline confidence, queued for manual review"
	}
	if !vegetationCompatible(incidentType) {
		return models.VerificationPendingReview, "incident type requires manual review"
	}
	return models.VerificationVerified, "vegetation confirmed"
}

// vegetationCompatible reports whether vegetation evidence can verify the
// given incident type. Reports like dumping do not strictly require living
// vegetation in frame, so every type currently passes.
func vegetationCompatible(t models.IncidentType) bool {
	switch t {
	case models.IncidentIllegalCutting, models.IncidentLandReclamation,
		models.IncidentPollution, models.IncidentDumping, models.IncidentOther:
		return true
	default:
		return true
	}
}

// persist writes the result back best-effort: a failure is logged but never
// changes the verdict already computed for the caller.
func (w *Workflow) persist(ctx context.Context, incidentID string, result *models.VerificationResult) {
	if w.store == nil {
		return
	}
	if err := w.store.AttachVerification(ctx, incidentID, result); err != nil {
		log.WithError(err).Errorf("Failed to persist verification result for incident %s", incidentID)
	}
}
