// Package service runs the background verification sweeper: pending
// incidents with images but no verification result yet are pushed through
// the verification workflow in batches.
package service

import (
	"context"
	"time"

	"github.com/apex/log"

	"mangrovewatch/config"
	"mangrovewatch/database"
	"mangrovewatch/models"
	"mangrovewatch/rabbitmq"
	"mangrovewatch/verification"
)

// EventPublisher puts incident lifecycle events on the broker.
type EventPublisher interface {
	PublishIncident(event string, incident *models.Incident) error
}

// Sweeper periodically verifies the backlog of unverified incidents.
type Sweeper struct {
	config    *config.Config
	store     database.Store
	workflow  *verification.Workflow
	publisher EventPublisher // nil when AMQP is not configured
	stopChan  chan bool
}

// NewSweeper creates a new verification sweeper.
func NewSweeper(cfg *config.Config, store database.Store, workflow *verification.Workflow, publisher EventPublisher) *Sweeper {
	return &Sweeper{
		config:    cfg,
		store:     store,
		workflow:  workflow,
		publisher: publisher,
		stopChan:  make(chan bool),
	}
}

// Start runs the sweep loop until Stop is called. Call it in a goroutine.
func (s *Sweeper) Start() {
	log.Infof("Starting verification sweeper (interval %s, batch %d)",
		s.config.SweepInterval, s.config.SweepBatch)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			log.Info("Verification sweeper stopped")
			return
		}
	}
}

// Stop stops the sweep loop.
func (s *Sweeper) Stop() {
	log.Info("Stopping verification sweeper...")
	close(s.stopChan)
}

// sweep verifies one batch. Each incident gets its own bounded context so a
// hung fetch cannot stall the loop forever.
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SweepInterval)
	defer cancel()

	incidents, err := s.store.PendingUnverified(ctx, s.config.SweepBatch)
	if err != nil {
		log.WithError(err).Error("Failed to load unverified incidents")
		return
	}
	if len(incidents) == 0 {
		return
	}

	log.Infof("Sweeping %d unverified incidents", len(incidents))
	for _, incident := range incidents {
		result := s.workflow.Run(ctx, incident)
		log.Infof("Incident %s verification: %s (%s)", incident.ID, result.Status, result.Reason)
		s.publishOutcome(ctx, incident.ID, result)
	}
}

// publishOutcome announces a terminal verification result on the broker. The
// incident is re-read so the event carries the persisted status.
func (s *Sweeper) publishOutcome(ctx context.Context, incidentID string, result *models.VerificationResult) {
	if s.publisher == nil {
		return
	}
	if result.Status != models.VerificationVerified && result.Status != models.VerificationFailed {
		return
	}

	incident, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		log.WithError(err).Warnf("Failed to reload incident %s for event publish", incidentID)
		return
	}
	if err := s.publisher.PublishIncident(rabbitmq.EventIncidentVerified, incident); err != nil {
		log.WithError(err).Warnf("Failed to publish %s for incident %s", rabbitmq.EventIncidentVerified, incidentID)
	}
}
