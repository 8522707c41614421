package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/golang/geo/s1"
	"github.com/jknair0/beforeeach"

	"mangrovewatch/models"
)

var (
	mockDB *sql.DB
	mock   sqlmock.Sqlmock
	store  *Database
)

func setUp() {
	mockDB, mock, _ = sqlmock.New()
	store = &Database{db: mockDB}
}

func tearDown() {
	mockDB.Close()
}

var it = beforeeach.Create(setUp, tearDown)

var incidentTestColumns = []string{
	"id", "reporter_id", "type", "severity", "status", "title", "description",
	"latitude", "longitude", "location_source", "images", "prediction", "verification",
	"points_awarded", "created_at", "updated_at",
}

func addIncidentRow(rows *sqlmock.Rows, id string, lat, lng float64, status string) {
	rows.AddRow(id, "anonymous", "pollution", "medium", status, "", "spill",
		lat, lng, "real", `["https://example.com/a.jpg"]`, nil, nil,
		0, time.Now(), time.Now())
}

func TestCreateIncident(t *testing.T) {
	it(func() {
		testCases := []struct {
			name          string
			rowsAffected  int64
			execError     error
			errorExpected bool
		}{
			{
				name:          "Insert incident",
				rowsAffected:  1,
				errorExpected: false,
			},
			{
				name:          "Insert fails",
				execError:     errors.New("insert error"),
				errorExpected: true,
			},
		}

		for _, testCase := range testCases {
			exec := mock.ExpectExec("INSERT INTO incidents")
			if testCase.execError != nil {
				exec.WillReturnError(testCase.execError)
			} else {
				exec.WillReturnResult(sqlmock.NewResult(1, testCase.rowsAffected))
			}

			err := store.CreateIncident(context.Background(), &models.Incident{
				ID:          "inc-1",
				ReporterID:  "anonymous",
				Type:        models.IncidentPollution,
				Severity:    models.SeverityMedium,
				Status:      models.StatusPending,
				Description: "spill",
				Location:    models.Location{Latitude: -2.0, Longitude: -44.5, Source: models.LocationReal},
				Images:      []string{"https://example.com/a.jpg"},
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			})
			if testCase.errorExpected != (err != nil) {
				t.Errorf("%s, CreateIncident: expected error: %v, got error: %v", testCase.name, testCase.errorExpected, err)
			}
		}
	})
}

func TestCreateIncidentNormalizesNilImages(t *testing.T) {
	it(func() {
		// Images must land in the column as a JSON array, never JSON null,
		// or the pending-verification query picks imageless incidents up.
		mock.ExpectExec("INSERT INTO incidents").
			WithArgs("inc-1", "anonymous", "pollution", "medium", "pending", "", "spill",
				-2.0, -44.5, "real", []byte("[]"), nil,
				sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		incident := &models.Incident{
			ID:          "inc-1",
			ReporterID:  "anonymous",
			Type:        models.IncidentPollution,
			Severity:    models.SeverityMedium,
			Status:      models.StatusPending,
			Description: "spill",
			Location:    models.Location{Latitude: -2.0, Longitude: -44.5, Source: models.LocationReal},
		}
		if err := store.CreateIncident(context.Background(), incident); err != nil {
			t.Fatalf("CreateIncident: unexpected error: %v", err)
		}
		if incident.Images == nil {
			t.Error("CreateIncident: expected nil images normalized to an empty slice")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("CreateIncident: unmet expectations: %v", err)
		}
	})
}

func TestGetIncident(t *testing.T) {
	it(func() {
		rows := sqlmock.NewRows(incidentTestColumns)
		addIncidentRow(rows, "inc-1", -2.0, -44.5, "pending")
		mock.ExpectQuery("SELECT (.+) FROM incidents WHERE id = ?").
			WithArgs("inc-1").WillReturnRows(rows)

		incident, err := store.GetIncident(context.Background(), "inc-1")
		if err != nil {
			t.Fatalf("GetIncident: unexpected error: %v", err)
		}
		if incident.ID != "inc-1" {
			t.Errorf("GetIncident: expected id inc-1, got %s", incident.ID)
		}
		if incident.Type != models.IncidentPollution {
			t.Errorf("GetIncident: expected type pollution, got %s", incident.Type)
		}
		if len(incident.Images) != 1 {
			t.Errorf("GetIncident: expected 1 image, got %d", len(incident.Images))
		}
		if incident.Location.Source != models.LocationReal {
			t.Errorf("GetIncident: expected real location source, got %s", incident.Location.Source)
		}
	})
}

func TestGetIncidentNotFound(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT (.+) FROM incidents WHERE id = ?").
			WithArgs("missing").WillReturnRows(sqlmock.NewRows(incidentTestColumns))

		_, err := store.GetIncident(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetIncident: expected ErrNotFound, got %v", err)
		}
	})
}

func TestListIncidentsRadiusFiltersExactDistance(t *testing.T) {
	it(func() {
		// Both rows land inside the coarse bounding rectangle; only the
		// first is inside the exact 5 km radius.
		rows := sqlmock.NewRows(incidentTestColumns)
		addIncidentRow(rows, "near", -2.0, -44.5, "pending")
		addIncidentRow(rows, "corner", -2.044, -44.544, "pending")
		mock.ExpectQuery("SELECT (.+) FROM incidents(.+)latitude BETWEEN").
			WillReturnRows(rows)

		incidents, err := store.ListIncidents(context.Background(), ListFilter{
			Near: &GeoFilter{Latitude: -2.0, Longitude: -44.5, RadiusKm: 5},
		})
		if err != nil {
			t.Fatalf("ListIncidents: unexpected error: %v", err)
		}
		if len(incidents) != 1 || incidents[0].ID != "near" {
			t.Errorf("ListIncidents: expected only the near incident, got %d rows", len(incidents))
		}
	})
}

func TestAttachVerification(t *testing.T) {
	it(func() {
		testCases := []struct {
			name           string
			status         models.VerificationStatus
			expectedStatus string
		}{
			{"Verified run verifies incident", models.VerificationVerified, "verified"},
			{"Failed run rejects incident", models.VerificationFailed, "rejected"},
			{"Borderline run keeps incident pending", models.VerificationPendingReview, "pending"},
			{"Errored run keeps incident pending", models.VerificationError, "pending"},
		}

		for _, testCase := range testCases {
			mock.ExpectExec("UPDATE incidents").
				WithArgs(sqlmock.AnyArg(), testCase.expectedStatus, sqlmock.AnyArg(), "inc-1").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := store.AttachVerification(context.Background(), "inc-1", &models.VerificationResult{
				Status:    testCase.status,
				Timestamp: time.Now(),
			})
			if err != nil {
				t.Errorf("%s, AttachVerification: unexpected error: %v", testCase.name, err)
			}
		}
	})
}

func TestPendingUnverified(t *testing.T) {
	it(func() {
		rows := sqlmock.NewRows(incidentTestColumns)
		addIncidentRow(rows, "old", -2.0, -44.5, "pending")
		addIncidentRow(rows, "new", -2.1, -44.6, "pending")
		mock.ExpectQuery("SELECT (.+) FROM incidents(.+)WHERE status = 'pending'").
			WithArgs(20).WillReturnRows(rows)

		incidents, err := store.PendingUnverified(context.Background(), 0)
		if err != nil {
			t.Fatalf("PendingUnverified: unexpected error: %v", err)
		}
		if len(incidents) != 2 {
			t.Errorf("PendingUnverified: expected 2 incidents, got %d", len(incidents))
		}
	})
}

func TestIncidentStatusFor(t *testing.T) {
	testCases := []struct {
		in  models.VerificationStatus
		out models.IncidentStatus
	}{
		{models.VerificationVerified, models.StatusVerified},
		{models.VerificationFailed, models.StatusRejected},
		{models.VerificationPendingReview, models.StatusPending},
		{models.VerificationError, models.StatusPending},
	}
	for _, testCase := range testCases {
		if got := incidentStatusFor(testCase.in); got != testCase.out {
			t.Errorf("incidentStatusFor(%s): expected %s, got %s", testCase.in, testCase.out, got)
		}
	}
}

func TestBoundingRectDegreeBounds(t *testing.T) {
	g := &GeoFilter{Latitude: -2.0, Longitude: -44.5, RadiusKm: 5}
	rect := boundingRect(g)

	latLo := s1.Angle(rect.Lat.Lo).Degrees()
	latHi := s1.Angle(rect.Lat.Hi).Degrees()
	lngLo := s1.Angle(rect.Lng.Lo).Degrees()
	lngHi := s1.Angle(rect.Lng.Hi).Degrees()

	if latLo >= g.Latitude || latHi <= g.Latitude {
		t.Errorf("boundingRect: latitude bounds [%f, %f] must bracket %f", latLo, latHi, g.Latitude)
	}
	if lngLo >= g.Longitude || lngHi <= g.Longitude {
		t.Errorf("boundingRect: longitude bounds [%f, %f] must bracket %f", lngLo, lngHi, g.Longitude)
	}

	// 5 km is about 0.045 degrees of latitude.
	halfSpan := (latHi - latLo) / 2
	if halfSpan < 0.04 || halfSpan > 0.06 {
		t.Errorf("boundingRect: latitude half-span %f degrees out of range for a 5km radius", halfSpan)
	}
}

func TestWithinRadius(t *testing.T) {
	g := &GeoFilter{Latitude: -2.0, Longitude: -44.5, RadiusKm: 5}

	if !withinRadius(g, -2.0, -44.5) {
		t.Error("withinRadius: center must be within its own radius")
	}
	if !withinRadius(g, -2.01, -44.5) {
		t.Error("withinRadius: point ~1km away must be inside a 5km radius")
	}
	if withinRadius(g, -2.5, -44.5) {
		t.Error("withinRadius: point ~55km away must be outside a 5km radius")
	}
}
