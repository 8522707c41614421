package models

import (
	"time"
)

// IncidentType classifies what a reporter observed. Unknown values coming
// from newer clients or servers decode to IncidentTypeOther so old binaries
// keep working when the enum grows.
type IncidentType string

const (
	IncidentIllegalCutting  IncidentType = "illegal_cutting"
	IncidentLandReclamation IncidentType = "land_reclamation"
	IncidentPollution       IncidentType = "pollution"
	IncidentDumping         IncidentType = "dumping"
	IncidentOther           IncidentType = "other"
)

var incidentTypes = map[string]IncidentType{
	"illegal_cutting":  IncidentIllegalCutting,
	"land_reclamation": IncidentLandReclamation,
	"pollution":        IncidentPollution,
	"dumping":          IncidentDumping,
	"other":            IncidentOther,
}

// ParseIncidentType maps a wire string to an IncidentType, falling back to
// IncidentOther for unrecognized values.
func ParseIncidentType(s string) IncidentType {
	if t, ok := incidentTypes[s]; ok {
		return t
	}
	return IncidentOther
}

// Severity is the reporter-assessed urgency. Unrecognized values decode to
// SeverityMedium.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severities = map[string]Severity{
	"low":      SeverityLow,
	"medium":   SeverityMedium,
	"high":     SeverityHigh,
	"critical": SeverityCritical,
}

func ParseSeverity(s string) Severity {
	if v, ok := severities[s]; ok {
		return v
	}
	return SeverityMedium
}

// IncidentStatus tracks the moderation lifecycle. New incidents start at
// StatusPending and only move via explicit verification or admin action.
// Unrecognized values decode to StatusPending.
type IncidentStatus string

const (
	StatusPending  IncidentStatus = "pending"
	StatusVerified IncidentStatus = "verified"
	StatusRejected IncidentStatus = "rejected"
	StatusResolved IncidentStatus = "resolved"
)

var statuses = map[string]IncidentStatus{
	"pending":  StatusPending,
	"verified": StatusVerified,
	"rejected": StatusRejected,
	"resolved": StatusResolved,
}

func ParseIncidentStatus(s string) IncidentStatus {
	if v, ok := statuses[s]; ok {
		return v
	}
	return StatusPending
}

// LocationSource distinguishes a genuine device fix from the documented
// default-coordinate substitution, so consumers can tell a placeholder from a
// real report location.
type LocationSource string

const (
	LocationReal            LocationSource = "real"
	LocationDefaultFallback LocationSource = "default_fallback"
)

// Default coordinate used when the reporting device has no location fix
// (Amazon delta mangrove belt).
const (
	DefaultLatitude  = -2.0164
	DefaultLongitude = -44.5626
)

// Location is a lat/lng pair tagged with its provenance.
type Location struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Source    LocationSource `json:"source"`
}

// DefaultLocation returns the placeholder coordinate, explicitly tagged.
func DefaultLocation() Location {
	return Location{
		Latitude:  DefaultLatitude,
		Longitude: DefaultLongitude,
		Source:    LocationDefaultFallback,
	}
}

// MLPrediction is the optional enrichment attached at write time when the
// inference endpoint was reachable (or the estimator substituted for it).
type MLPrediction struct {
	Coverage   float64 `json:"coverage"`
	NDVI       float64 `json:"ndvi"`
	Confidence float64 `json:"confidence"`
	ModelType  string  `json:"model_type"`
}

// Incident is a single community report.
type Incident struct {
	ID            string              `json:"id" db:"id"`
	ReporterID    string              `json:"reporter_id" db:"reporter_id"`
	Type          IncidentType        `json:"type" db:"type"`
	Severity      Severity            `json:"severity" db:"severity"`
	Status        IncidentStatus      `json:"status" db:"status"`
	Title         string              `json:"title" db:"title"`
	Description   string              `json:"description" db:"description"`
	Location      Location            `json:"location"`
	Images        []string            `json:"images"`
	Prediction    *MLPrediction       `json:"ml_prediction,omitempty"`
	Verification  *VerificationResult `json:"verification_result,omitempty"`
	PointsAwarded int                 `json:"points_awarded" db:"points_awarded"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
}

// CreateIncidentRequest is the POST /incidents body. The client may supply
// its own id; the store keeps it if present so offline-created incidents stay
// addressable.
type CreateIncidentRequest struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Images      []string `json:"images"`
}

// UpdateIncidentRequest is the PUT /incidents/:id body. Nil fields are left
// unchanged.
type UpdateIncidentRequest struct {
	Severity    *string `json:"severity"`
	Status      *string `json:"status"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}
