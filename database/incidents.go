package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"mangrovewatch/models"
)

const earthRadiusKm = 6371.0

const incidentColumns = `id, reporter_id, type, severity, status, title, description,
	latitude, longitude, location_source, images, prediction, verification,
	points_awarded, created_at, updated_at`

func (d *Database) CreateIncident(ctx context.Context, incident *models.Incident) error {
	// A nil slice marshals as JSON null, which JSON_LENGTH treats as a
	// scalar of length 1 and the sweeper query would then pick up.
	if incident.Images == nil {
		incident.Images = []string{}
	}
	images, err := json.Marshal(incident.Images)
	if err != nil {
		return fmt.Errorf("failed to marshal images: %w", err)
	}
	prediction, err := marshalNullable(incident.Prediction)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}

	result, err := d.db.ExecContext(ctx, `INSERT INTO incidents
		(id, reporter_id, type, severity, status, title, description,
		 latitude, longitude, location_source, images, prediction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		incident.ID, incident.ReporterID, string(incident.Type), string(incident.Severity),
		string(incident.Status), incident.Title, incident.Description,
		incident.Location.Latitude, incident.Location.Longitude, string(incident.Location.Source),
		images, prediction, incident.CreatedAt, incident.UpdatedAt)

	return validateResult(result, err, true)
}

func (d *Database) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return incident, err
}

func (d *Database) ListIncidents(ctx context.Context, filter ListFilter) ([]*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	args := []interface{}{}
	where := ""

	if filter.Status != "" {
		where = ` WHERE status = ?`
		args = append(args, filter.Status)
	}

	if filter.Near != nil {
		// Coarse bounding rectangle in SQL; the exact radius check happens
		// below on the fetched rows.
		rect := boundingRect(filter.Near)
		clause := ` latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`
		if where == "" {
			where = ` WHERE` + clause
		} else {
			where += ` AND` + clause
		}
		args = append(args,
			s1.Angle(rect.Lat.Lo).Degrees(), s1.Angle(rect.Lat.Hi).Degrees(),
			s1.Angle(rect.Lng.Lo).Degrees(), s1.Angle(rect.Lng.Hi).Degrees())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []*models.Incident{}
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		if filter.Near != nil && !withinRadius(filter.Near, incident.Location.Latitude, incident.Location.Longitude) {
			continue
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

func (d *Database) UpdateIncident(ctx context.Context, incident *models.Incident) error {
	incident.UpdatedAt = time.Now().UTC()
	result, err := d.db.ExecContext(ctx, `UPDATE incidents
		SET severity = ?, status = ?, title = ?, description = ?, points_awarded = ?, updated_at = ?
		WHERE id = ?`,
		string(incident.Severity), string(incident.Status), incident.Title,
		incident.Description, incident.PointsAwarded, incident.UpdatedAt, incident.ID)
	return validateResult(result, err, false)
}

// AttachVerification overwrites the embedded verification result. The write
// is a single independent update keyed by incident id; concurrent runs for
// the same id are last-write-wins.
func (d *Database) AttachVerification(ctx context.Context, incidentID string, vr *models.VerificationResult) error {
	payload, err := json.Marshal(vr)
	if err != nil {
		return fmt.Errorf("failed to marshal verification result: %w", err)
	}

	status := incidentStatusFor(vr.Status)
	result, err := d.db.ExecContext(ctx, `UPDATE incidents
		SET verification = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		payload, string(status), time.Now().UTC(), incidentID)
	return validateResult(result, err, false)
}

func (d *Database) PendingUnverified(ctx context.Context, limit int) ([]*models.Incident, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `SELECT `+incidentColumns+` FROM incidents
		WHERE status = 'pending' AND verification IS NULL
		  AND images IS NOT NULL AND JSON_LENGTH(images) > 0
		ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending incidents: %w", err)
	}
	defer rows.Close()

	incidents := []*models.Incident{}
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

// incidentStatusFor maps a workflow terminal state onto the incident
// lifecycle. Error and pending_review runs keep the incident pending.
func incidentStatusFor(vs models.VerificationStatus) models.IncidentStatus {
	switch vs {
	case models.VerificationVerified:
		return models.StatusVerified
	case models.VerificationFailed:
		return models.StatusRejected
	default:
		return models.StatusPending
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		inc                              models.Incident
		typ, severity, status, source    string
		images, prediction, verification sql.NullString
	)

	err := row.Scan(&inc.ID, &inc.ReporterID, &typ, &severity, &status,
		&inc.Title, &inc.Description,
		&inc.Location.Latitude, &inc.Location.Longitude, &source,
		&images, &prediction, &verification,
		&inc.PointsAwarded, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inc.Type = models.ParseIncidentType(typ)
	inc.Severity = models.ParseSeverity(severity)
	inc.Status = models.ParseIncidentStatus(status)
	inc.Location.Source = models.LocationSource(source)
	inc.Images = []string{}

	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &inc.Images); err != nil {
			return nil, fmt.Errorf("failed to unmarshal images for incident %s: %w", inc.ID, err)
		}
	}
	if prediction.Valid && prediction.String != "" {
		inc.Prediction = &models.MLPrediction{}
		if err := json.Unmarshal([]byte(prediction.String), inc.Prediction); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prediction for incident %s: %w", inc.ID, err)
		}
	}
	if verification.Valid && verification.String != "" {
		inc.Verification = &models.VerificationResult{}
		if err := json.Unmarshal([]byte(verification.String), inc.Verification); err != nil {
			return nil, fmt.Errorf("failed to unmarshal verification for incident %s: %w", inc.ID, err)
		}
	}

	return &inc, nil
}

func marshalNullable(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case *models.MLPrediction:
		if x == nil {
			return nil, nil
		}
	case *models.VerificationResult:
		if x == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// boundingRect returns a lat/lng rectangle covering the radius around the
// filter's center.
func boundingRect(g *GeoFilter) s2.Rect {
	center := s2.LatLngFromDegrees(g.Latitude, g.Longitude)
	angle := s1.Angle(g.RadiusKm / earthRadiusKm)
	return s2.CapFromCenterAngle(s2.PointFromLatLng(center), angle).RectBound()
}

// withinRadius is the exact great-circle check applied after the coarse
// bounding-box query.
func withinRadius(g *GeoFilter, lat, lng float64) bool {
	center := s2.LatLngFromDegrees(g.Latitude, g.Longitude)
	point := s2.LatLngFromDegrees(lat, lng)
	return center.Distance(point).Radians()*earthRadiusKm <= g.RadiusKm
}
