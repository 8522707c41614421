// Package handlers wires the HTTP surface: incident CRUD, image analysis
// with fallback, coordinate prediction, auth, gamification, and the live
// feed.
package handlers

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"mangrovewatch/apperrors"
	"mangrovewatch/auth"
	"mangrovewatch/config"
	"mangrovewatch/database"
	"mangrovewatch/email"
	"mangrovewatch/estimator"
	"mangrovewatch/ml"
	"mangrovewatch/models"
	"mangrovewatch/verification"
	"mangrovewatch/websocket"
)

// EventPublisher puts incident lifecycle events on the broker.
type EventPublisher interface {
	PublishIncident(event string, incident *models.Incident) error
}

// Handlers carries the dependencies of every route.
type Handlers struct {
	cfg       *config.Config
	store     database.Store
	auth      *auth.Service
	ml        ml.Client
	estimator *estimator.Estimator
	workflow  *verification.Workflow
	hub       *websocket.Hub
	publisher EventPublisher // nil when AMQP is not configured
	notifier  *email.Sender  // nil when SendGrid is not configured
}

func New(cfg *config.Config, store database.Store, authService *auth.Service,
	mlClient ml.Client, est *estimator.Estimator, workflow *verification.Workflow,
	hub *websocket.Hub, publisher EventPublisher, notifier *email.Sender) *Handlers {
	return &Handlers{
		cfg:       cfg,
		store:     store,
		auth:      authService,
		ml:        mlClient,
		estimator: est,
		workflow:  workflow,
		hub:       hub,
		publisher: publisher,
		notifier:  notifier,
	}
}

// HealthCheck handles liveness probes for both the client gateway's URL
// discovery and operational monitoring.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "mangrovewatch",
	})
}

// fail writes the structured {error, message} body for a request failure.
// Internal detail is only attached in dev mode.
func (h *Handlers) fail(c *gin.Context, err error) {
	rf := apperrors.AsRequestFailure(err)
	if rf.Code >= 500 {
		log.WithError(err).Errorf("%s %s failed", c.Request.Method, c.Request.URL.Path)
	}

	body := gin.H{"error": string(rf.Kind), "message": rf.Msg}
	if h.cfg.DevMode && rf.Detail() != "" {
		body["detail"] = rf.Detail()
	}
	c.JSON(rf.Code, body)
}

// currentUser returns the user set by the auth middleware.
func currentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// optionalUser resolves the bearer token when one is present; creation-style
// endpoints accept anonymous reports.
func (h *Handlers) optionalUser(c *gin.Context) *models.User {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return nil
	}
	user, err := h.auth.CurrentUser(c.Request.Context(), header[len(prefix):])
	if err != nil {
		return nil
	}
	return user
}
