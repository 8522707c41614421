// Package database holds the incident and user stores: a MySQL
// implementation and an in-memory fallback used when no database is
// configured (non-durable, process lifetime only).
package database

import (
	"context"
	"errors"

	"mangrovewatch/models"
)

// ErrNotFound is returned when an incident or user does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// GeoFilter restricts a listing to a radius around a point.
type GeoFilter struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

// ListFilter narrows GET /incidents results.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
	Near   *GeoFilter
}

// Store is everything the handlers and the sweeper need from persistence.
type Store interface {
	CreateIncident(ctx context.Context, incident *models.Incident) error
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter ListFilter) ([]*models.Incident, error)
	UpdateIncident(ctx context.Context, incident *models.Incident) error
	AttachVerification(ctx context.Context, incidentID string, result *models.VerificationResult) error
	// PendingUnverified returns pending incidents that carry images but have
	// no verification result yet, oldest first.
	PendingUnverified(ctx context.Context, limit int) ([]*models.Incident, error)

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	// AddPoints increments a user's gamification counter; points only grow.
	AddPoints(ctx context.Context, userID string, points int) error
	UserStats(ctx context.Context, userID string) (*models.UserStats, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	DashboardAnalytics(ctx context.Context) (*models.DashboardAnalytics, error)
}
