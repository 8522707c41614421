package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"mangrovewatch/apperrors"
	"mangrovewatch/estimator"
	"mangrovewatch/images"
	"mangrovewatch/metrics"
	"mangrovewatch/verification"
)

// Points awarded for contributing an image to analysis.
const analysisPoints = 5

// maxImageBytes bounds uploads so a single request cannot exhaust memory.
const maxImageBytes = 20 << 20

// AnalyzeImage runs general classification on an uploaded photo. Contributors
// with an account earn points for every analyzed image.
func (h *Handlers) AnalyzeImage(c *gin.Context) {
	data, filename, err := h.readImage(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.MLAnalyzeTimeout)
	defer cancel()

	if !h.ml.Ping(ctx) {
		metrics.ProbeTotal.WithLabelValues("down").Inc()
		h.fail(c, apperrors.Upstream("image analysis is temporarily unavailable", nil))
		return
	}
	metrics.ProbeTotal.WithLabelValues("up").Inc()

	analysis, err := h.ml.AnalyzeImage(ctx, data, filename)
	if err != nil {
		h.fail(c, apperrors.Upstream("image analysis failed", err))
		return
	}

	if user := h.optionalUser(c); user != nil {
		if err := h.store.AddPoints(c.Request.Context(), user.ID, analysisPoints); err != nil {
			log.WithError(err).Warnf("Failed to award analysis points to %s", user.ID)
		}
	}

	body := gin.H{
		"prediction": analysis.Prediction,
		"confidence": analysis.Confidence,
		"details":    analysis.Details,
		"source":     h.ml.SourceName(),
	}
	if loc, ok := images.ExtractLocation(data); ok {
		body["photo_location"] = loc
	}
	c.JSON(http.StatusOK, body)
}

// VerifyMangroveImage verifies a single uploaded photo in strict mode. When
// the inference endpoint is down or errors, the local heuristic answers
// instead of failing the request.
func (h *Handlers) VerifyMangroveImage(c *gin.Context) {
	data, filename, err := h.readImage(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.MLVerifyTimeout)
	defer cancel()

	if h.ml.Ping(ctx) {
		metrics.ProbeTotal.WithLabelValues("up").Inc()
		verdict, verr := h.ml.VerifyImage(ctx, data, filename, true)
		if verr == nil {
			c.JSON(http.StatusOK, gin.H{
				"mangrove_detected": verdict.MangroveDetected,
				"confidence":        verdict.Confidence,
				"model_type":        verdict.ModelType,
			})
			return
		}
		log.WithError(verr).Warnf("ML verification failed for %s, using heuristic", filename)
	} else {
		metrics.ProbeTotal.WithLabelValues("down").Inc()
	}

	metrics.FallbackTotal.WithLabelValues("heuristic").Inc()
	detected, confidence := verification.Heuristic(filename, len(data))
	c.JSON(http.StatusOK, gin.H{
		"mangrove_detected": detected,
		"confidence":        confidence,
		"model_type":        verification.HeuristicModelType,
	})
}

// predictRequest is the coordinate prediction body. The fields are pointers
// so that latitude or longitude 0 still binds.
type predictRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// PredictMangrove predicts coverage at a coordinate, substituting the local
// estimator when the endpoint is down or answers with a suspicious all-zero
// result.
func (h *Handlers) PredictMangrove(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.Validation("invalid prediction payload", err))
		return
	}
	lat, lng := *req.Latitude, *req.Longitude
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		h.fail(c, apperrors.Validation("coordinates out of range", nil))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.MLPredictTimeout)
	defer cancel()

	if h.ml.Ping(ctx) {
		metrics.ProbeTotal.WithLabelValues("up").Inc()
		p, err := h.ml.PredictCoverage(ctx, lat, lng)
		if err == nil && !estimator.Degenerate(p.Coverage, p.NDVI) {
			c.JSON(http.StatusOK, p)
			return
		}
		if err != nil {
			log.WithError(err).Warn("Coverage prediction failed, using estimator")
		} else {
			log.Warn("Coverage prediction is all zero, using estimator")
		}
	} else {
		metrics.ProbeTotal.WithLabelValues("down").Inc()
	}

	metrics.FallbackTotal.WithLabelValues("estimator").Inc()
	c.JSON(http.StatusOK, h.estimator.Estimate(lat, lng))
}

// readImage pulls the "image" multipart field out of the request.
func (h *Handlers) readImage(c *gin.Context) ([]byte, string, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, "", apperrors.Validation("image file is required", err)
	}
	if file.Size > maxImageBytes {
		return nil, "", apperrors.Validation("image exceeds the 20MB limit", nil)
	}

	f, err := file.Open()
	if err != nil {
		return nil, "", apperrors.Internal("failed to open uploaded image", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, "", apperrors.Internal("failed to read uploaded image", err)
	}
	return data, file.Filename, nil
}
