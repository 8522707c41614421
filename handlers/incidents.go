package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mangrovewatch/apperrors"
	"mangrovewatch/database"
	"mangrovewatch/estimator"
	"mangrovewatch/metrics"
	"mangrovewatch/models"
	"mangrovewatch/rabbitmq"
)

// Points awarded when a verifier approves an incident and no explicit amount
// is given.
const defaultVerificationPoints = 10

// anonymousReporter is recorded when an incident arrives without a bearer
// token. Anonymous reports are accepted but earn no points.
const anonymousReporter = "anonymous"

// CreateIncident stores a new report. When the inference endpoint answers
// its availability probe, the report is enriched with a coverage prediction
// for its coordinates; otherwise, or when the endpoint returns a suspicious
// all-zero result, the local estimator substitutes.
func (h *Handlers) CreateIncident(c *gin.Context) {
	var req models.CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.Validation("invalid incident payload", err))
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		h.fail(c, apperrors.Validation("description is required", nil))
		return
	}

	location := models.DefaultLocation()
	if req.Latitude != nil && req.Longitude != nil {
		location = models.Location{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			Source:    models.LocationReal,
		}
	}

	reporterID := anonymousReporter
	if user := h.optionalUser(c); user != nil {
		reporterID = user.ID
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	incident := &models.Incident{
		ID:          id,
		ReporterID:  reporterID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Type:        models.ParseIncidentType(req.Type),
		Severity:    models.ParseSeverity(req.Severity),
		Status:      models.StatusPending,
		Title:       req.Title,
		Description: req.Description,
		Location:    location,
		Images:      req.Images,
		Prediction:  h.predictionFor(c.Request.Context(), location),
	}

	if err := h.store.CreateIncident(c.Request.Context(), incident); err != nil {
		h.fail(c, apperrors.Internal("failed to store incident", err))
		return
	}
	metrics.IncidentsCreatedTotal.WithLabelValues(string(incident.Type)).Inc()

	h.announce(incident)

	c.JSON(http.StatusCreated, gin.H{"incident": incident})
}

// predictionFor fetches the coordinate prediction used to enrich a new
// incident. It never fails: any endpoint trouble falls back to the estimator.
func (h *Handlers) predictionFor(ctx context.Context, loc models.Location) *models.MLPrediction {
	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.MLHealthTimeout)
	defer cancel()

	if h.ml.Ping(probeCtx) {
		metrics.ProbeTotal.WithLabelValues("up").Inc()

		predictCtx, cancelPredict := context.WithTimeout(ctx, h.cfg.MLPredictTimeout)
		defer cancelPredict()

		p, err := h.ml.PredictCoverage(predictCtx, loc.Latitude, loc.Longitude)
		if err == nil && !estimator.Degenerate(p.Coverage, p.NDVI) {
			return &models.MLPrediction{
				Coverage:   p.Coverage,
				NDVI:       p.NDVI,
				Confidence: p.Confidence,
				ModelType:  p.ModelType,
			}
		}
		if err != nil {
			log.WithError(err).Warn("Coverage prediction failed, using estimator")
		} else {
			log.Warnf("Coverage prediction at (%f, %f) is all zero, using estimator",
				loc.Latitude, loc.Longitude)
		}
	} else {
		metrics.ProbeTotal.WithLabelValues("down").Inc()
	}

	metrics.FallbackTotal.WithLabelValues("estimator").Inc()
	est := h.estimator.Estimate(loc.Latitude, loc.Longitude)
	return &models.MLPrediction{
		Coverage:   est.Coverage,
		NDVI:       est.NDVI,
		Confidence: est.Confidence,
		ModelType:  est.ModelType,
	}
}

// announce fans a newly created incident out to the optional side channels.
// None of them may delay or fail the request.
func (h *Handlers) announce(incident *models.Incident) {
	if h.hub != nil {
		h.hub.BroadcastIncident("incident_created", incident)
	}
	h.publishEvent(rabbitmq.EventIncidentCreated, incident)
	if h.notifier != nil {
		go func() {
			if err := h.notifier.SendIncidentNotification(incident); err != nil {
				log.WithError(err).Warnf("Failed to send notification for incident %s", incident.ID)
			}
		}()
	}
}

// publishEvent puts an incident lifecycle event on the broker without
// delaying the request.
func (h *Handlers) publishEvent(event string, incident *models.Incident) {
	if h.publisher == nil {
		return
	}
	go func() {
		if err := h.publisher.PublishIncident(event, incident); err != nil {
			log.WithError(err).Warnf("Failed to publish %s for incident %s", event, incident.ID)
		}
	}()
}

// ListIncidents returns incidents, newest first, with optional status and
// radius filters.
func (h *Handlers) ListIncidents(c *gin.Context) {
	filter := database.ListFilter{
		Status: c.Query("status"),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}

	if latStr, lngStr := c.Query("latitude"), c.Query("longitude"); latStr != "" && lngStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil {
			h.fail(c, apperrors.Validation("invalid latitude/longitude", nil))
			return
		}
		radius := 10.0
		if r := c.Query("radius_km"); r != "" {
			parsed, err := strconv.ParseFloat(r, 64)
			if err != nil || parsed <= 0 {
				h.fail(c, apperrors.Validation("invalid radius_km", err))
				return
			}
			radius = parsed
		}
		filter.Near = &database.GeoFilter{Latitude: lat, Longitude: lng, RadiusKm: radius}
	}

	incidents, err := h.store.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, apperrors.Internal("failed to list incidents", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// GetIncident returns a single incident by id.
func (h *Handlers) GetIncident(c *gin.Context) {
	incident, err := h.store.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.fail(c, apperrors.NotFound("incident not found", err))
			return
		}
		h.fail(c, apperrors.Internal("failed to load incident", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident": incident})
}

// UpdateIncident applies partial updates. Status transitions are reserved
// for verifier roles; everything else is open to authenticated users.
func (h *Handlers) UpdateIncident(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		h.fail(c, apperrors.Unauthorized("not authenticated", nil))
		return
	}

	var req models.UpdateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.Validation("invalid update payload", err))
		return
	}

	incident, err := h.store.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.fail(c, apperrors.NotFound("incident not found", err))
			return
		}
		h.fail(c, apperrors.Internal("failed to load incident", err))
		return
	}

	if req.Status != nil {
		if !user.Role.CanVerify() {
			h.fail(c, apperrors.Forbidden("status changes require a verifier role", nil))
			return
		}
		incident.Status = models.ParseIncidentStatus(*req.Status)
	}
	if req.Severity != nil {
		incident.Severity = models.ParseSeverity(*req.Severity)
	}
	if req.Title != nil {
		incident.Title = *req.Title
	}
	if req.Description != nil {
		incident.Description = *req.Description
	}

	if err := h.store.UpdateIncident(c.Request.Context(), incident); err != nil {
		h.fail(c, apperrors.Internal("failed to update incident", err))
		return
	}

	if h.hub != nil {
		h.hub.BroadcastIncident("incident_updated", incident)
	}

	c.JSON(http.StatusOK, gin.H{"incident": incident})
}

// verifyIncidentRequest is the manual verification body.
type verifyIncidentRequest struct {
	Approve bool   `json:"approve"`
	Points  *int   `json:"points"`
	Notes   string `json:"notes"`
}

// VerifyIncident is the manual moderation step: a verifier approves or
// rejects a report. Approval awards points to the reporter.
func (h *Handlers) VerifyIncident(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		h.fail(c, apperrors.Unauthorized("not authenticated", nil))
		return
	}
	if !user.Role.CanVerify() {
		h.fail(c, apperrors.Forbidden("verification requires a verifier role", nil))
		return
	}

	var req verifyIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.Validation("invalid verification payload", err))
		return
	}

	incident, err := h.store.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.fail(c, apperrors.NotFound("incident not found", err))
			return
		}
		h.fail(c, apperrors.Internal("failed to load incident", err))
		return
	}

	if req.Approve {
		points := defaultVerificationPoints
		if req.Points != nil && *req.Points >= 0 {
			points = *req.Points
		}
		incident.Status = models.StatusVerified
		incident.PointsAwarded = points

		if incident.ReporterID != anonymousReporter {
			if err := h.store.AddPoints(c.Request.Context(), incident.ReporterID, points); err != nil {
				log.WithError(err).Warnf("Failed to award %d points to %s", points, incident.ReporterID)
			}
		}
	} else {
		incident.Status = models.StatusRejected
	}

	if err := h.store.UpdateIncident(c.Request.Context(), incident); err != nil {
		h.fail(c, apperrors.Internal("failed to update incident", err))
		return
	}

	if h.hub != nil {
		h.hub.BroadcastIncident("incident_verified", incident)
	}
	h.publishEvent(rabbitmq.EventIncidentVerified, incident)

	c.JSON(http.StatusOK, gin.H{"incident": incident})
}

// DashboardAnalytics returns aggregate counts for the analytics dashboard.
func (h *Handlers) DashboardAnalytics(c *gin.Context) {
	analytics, err := h.store.DashboardAnalytics(c.Request.Context())
	if err != nil {
		h.fail(c, apperrors.Internal("failed to load analytics", err))
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
