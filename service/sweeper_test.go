package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrovewatch/config"
	"mangrovewatch/database"
	"mangrovewatch/ml"
	"mangrovewatch/models"
	"mangrovewatch/rabbitmq"
	"mangrovewatch/verification"
)

func TestSweepVerifiesPendingBacklog(t *testing.T) {
	store := database.NewMemoryStore()
	cfg := &config.Config{SweepInterval: time.Minute, SweepBatch: 10}

	workflow := verification.New(ml.NewStubClient(), store, func(ctx context.Context, ref string) ([]byte, error) {
		return []byte(ref), nil
	})
	sweeper := NewSweeper(cfg, store, workflow, nil)

	withImages := &models.Incident{
		ID:          "with-images",
		ReporterID:  "anonymous",
		Type:        models.IncidentPollution,
		Status:      models.StatusPending,
		Description: "spill",
		Images:      []string{"mangrove-shore.jpg"},
		CreatedAt:   time.Now().UTC(),
	}
	withoutImages := &models.Incident{
		ID:          "without-images",
		ReporterID:  "anonymous",
		Type:        models.IncidentDumping,
		Status:      models.StatusPending,
		Description: "debris",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.CreateIncident(context.Background(), withImages))
	require.NoError(t, store.CreateIncident(context.Background(), withoutImages))

	sweeper.sweep()

	swept, err := store.GetIncident(context.Background(), "with-images")
	require.NoError(t, err)
	require.NotNil(t, swept.Verification, "swept incident carries a verification result")
	assert.Len(t, swept.Verification.PerImage, 1)
	assert.Equal(t, models.StatusVerified, swept.Status)

	skipped, err := store.GetIncident(context.Background(), "without-images")
	require.NoError(t, err)
	assert.Nil(t, skipped.Verification, "incidents without images are not swept")

	// Idempotent: a second sweep finds nothing pending with images.
	sweeper.sweep()
	again, err := store.GetIncident(context.Background(), "with-images")
	require.NoError(t, err)
	assert.Equal(t, swept.Verification.Timestamp, again.Verification.Timestamp)
}

type recordingPublisher struct {
	events    []string
	incidents []string
}

func (r *recordingPublisher) PublishIncident(event string, incident *models.Incident) error {
	r.events = append(r.events, event)
	r.incidents = append(r.incidents, incident.ID)
	return nil
}

func TestSweepPublishesVerifiedEvents(t *testing.T) {
	store := database.NewMemoryStore()
	cfg := &config.Config{SweepInterval: time.Minute, SweepBatch: 10}

	workflow := verification.New(ml.NewStubClient(), store, func(ctx context.Context, ref string) ([]byte, error) {
		return []byte(ref), nil
	})
	pub := &recordingPublisher{}
	sweeper := NewSweeper(cfg, store, workflow, pub)

	incident := &models.Incident{
		ID:          "with-images",
		ReporterID:  "anonymous",
		Type:        models.IncidentPollution,
		Status:      models.StatusPending,
		Description: "spill",
		Images:      []string{"mangrove-shore.jpg"},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.CreateIncident(context.Background(), incident))

	sweeper.sweep()

	require.Len(t, pub.events, 1)
	assert.Equal(t, rabbitmq.EventIncidentVerified, pub.events[0])
	assert.Equal(t, "with-images", pub.incidents[0])

	// The published incident carried the persisted outcome.
	swept, err := store.GetIncident(context.Background(), "with-images")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, swept.Status)
}
