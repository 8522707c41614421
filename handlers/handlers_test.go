package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrovewatch/auth"
	"mangrovewatch/config"
	"mangrovewatch/database"
	"mangrovewatch/estimator"
	"mangrovewatch/middleware"
	"mangrovewatch/ml"
	"mangrovewatch/models"
	"mangrovewatch/rabbitmq"
	"mangrovewatch/verification"
	ws "mangrovewatch/websocket"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *stubPublisher) PublishIncident(event string, incident *models.Incident) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *stubPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type testEnv struct {
	router *gin.Engine
	store  *database.MemoryStore
	ml     *ml.StubClient
	auth   *auth.Service
	events *stubPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.DevMode = true

	store := database.NewMemoryStore()
	authService := auth.NewService(store, "test-secret", time.Hour)
	stub := ml.NewStubClient()
	workflow := verification.New(stub, store, func(ctx context.Context, ref string) ([]byte, error) {
		return []byte(ref), nil
	})

	events := &stubPublisher{}
	h := New(cfg, store, authService, stub, estimator.NewStatic(), workflow, nil, events, nil)

	router := gin.New()
	router.GET("/health", h.HealthCheck)
	api := router.Group("/api/v3")
	{
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.POST("/incidents", h.CreateIncident)
		api.GET("/incidents", h.ListIncidents)
		api.GET("/incidents/:id", h.GetIncident)
		api.POST("/predict-mangrove", h.PredictMangrove)
	}
	protected := router.Group("/api/v3")
	protected.Use(middleware.AuthMiddleware(authService))
	{
		protected.GET("/users/me", h.Me)
		protected.PUT("/incidents/:id", h.UpdateIncident)
		protected.POST("/incidents/:id/verify", h.VerifyIncident)
		protected.GET("/leaderboard", h.Leaderboard)
	}

	return &testEnv{router: router, store: store, ml: stub, auth: authService, events: events}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) registerUser(t *testing.T, email, role string) string {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/v3/auth/register", "", models.RegisterRequest{
		Name:     "Test User",
		Email:    email,
		Password: "password123",
		Role:     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestCreateAndGetIncident(t *testing.T) {
	env := newTestEnv(t)

	lat, lng := -1.5, -48.3
	w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
		Type:        "illegal_cutting",
		Severity:    "high",
		Title:       "Cut trees near the channel",
		Description: "Several cut mangrove trunks",
		Latitude:    &lat,
		Longitude:   &lng,
		Images:      []string{"https://example.com/mangrove.jpg"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.IncidentIllegalCutting, created.Incident.Type)
	assert.Equal(t, models.StatusPending, created.Incident.Status)
	assert.Equal(t, models.LocationReal, created.Incident.Location.Source)
	assert.Equal(t, "anonymous", created.Incident.ReporterID)
	require.NotNil(t, created.Incident.Prediction, "created incidents carry a prediction")

	w = env.request(t, http.MethodGet, "/api/v3/incidents/"+created.Incident.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.Incident.ID, fetched.Incident.ID)
	assert.Equal(t, created.Incident.Location, fetched.Incident.Location)
}

func TestCreateIncidentWithoutLocationUsesDefault(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
		Type:        "pollution",
		Description: "Oil sheen on the water",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.LocationDefaultFallback, created.Incident.Location.Source)
	assert.Equal(t, models.DefaultLatitude, created.Incident.Location.Latitude)
	assert.Equal(t, models.DefaultLongitude, created.Incident.Location.Longitude)
}

func TestCreateIncidentRequiresDescription(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
		Type: "pollution",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "description")
}

func TestCreateIncidentUnknownEnumsFallBack(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
		Type:        "sea_monster",
		Severity:    "apocalyptic",
		Description: "Something unusual",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.IncidentOther, created.Incident.Type)
	assert.Equal(t, models.SeverityMedium, created.Incident.Severity)
}

func TestCreateIncidentOfflineUsesEstimator(t *testing.T) {
	env := newTestEnv(t)
	env.ml.Available = false

	w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
		Type:        "dumping",
		Description: "Construction debris",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotNil(t, created.Incident.Prediction)
	assert.Equal(t, estimator.ModelType, created.Incident.Prediction.ModelType)
	assert.GreaterOrEqual(t, created.Incident.Prediction.Coverage, 0.0)
	assert.LessOrEqual(t, created.Incident.Prediction.Coverage, 1.0)
}

func TestListIncidentsWithStatusAndRadius(t *testing.T) {
	env := newTestEnv(t)

	near := func(lat, lng float64) {
		w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
			Type:        "pollution",
			Description: "report",
			Latitude:    &lat,
			Longitude:   &lng,
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	near(-2.0, -44.5)  // close to the probe point
	near(-2.01, -44.5) // close to the probe point
	near(10.0, 10.0)   // far away

	w := env.request(t, http.MethodGet,
		"/api/v3/incidents?latitude=-2.0&longitude=-44.5&radius_km=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Incidents []*models.Incident `json:"incidents"`
		Count     int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	w = env.request(t, http.MethodGet, "/api/v3/incidents?status=verified", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestGetIncidentNotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodGet, "/api/v3/incidents/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestAuthenticatedReporterGetsCredited(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerUser(t, "reporter@example.com", "citizen")

	w := env.request(t, http.MethodPost, "/api/v3/incidents", token, models.CreateIncidentRequest{
		Type:        "illegal_cutting",
		Description: "cut trunks",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEqual(t, "anonymous", created.Incident.ReporterID)
}

func TestVerifyIncidentRequiresVerifierRole(t *testing.T) {
	env := newTestEnv(t)
	citizen := env.registerUser(t, "citizen@example.com", "citizen")

	w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
		Type:        "pollution",
		Description: "spill",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.request(t, http.MethodPost,
		"/api/v3/incidents/"+created.Incident.ID+"/verify", citizen,
		map[string]interface{}{"approve": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerifyIncidentAwardsPoints(t *testing.T) {
	env := newTestEnv(t)
	reporter := env.registerUser(t, "reporter@example.com", "citizen")
	admin := env.registerUser(t, "admin@example.com", "admin")

	w := env.request(t, http.MethodPost, "/api/v3/incidents", reporter, models.CreateIncidentRequest{
		Type:        "dumping",
		Description: "trash pile",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.request(t, http.MethodPost,
		"/api/v3/incidents/"+created.Incident.ID+"/verify", admin,
		map[string]interface{}{"approve": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var verified struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.Equal(t, models.StatusVerified, verified.Incident.Status)
	assert.Equal(t, defaultVerificationPoints, verified.Incident.PointsAwarded)

	// Reporter profile reflects the award.
	w = env.request(t, http.MethodGet, "/api/v3/users/me", reporter, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		User models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, defaultVerificationPoints, me.User.Points)
}

func TestRejectIncident(t *testing.T) {
	env := newTestEnv(t)
	admin := env.registerUser(t, "gov@example.com", "government")

	w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
		Type:        "pollution",
		Description: "spill",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.request(t, http.MethodPost,
		"/api/v3/incidents/"+created.Incident.ID+"/verify", admin,
		map[string]interface{}{"approve": false})
	require.Equal(t, http.StatusOK, w.Code)

	var rejected struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Equal(t, models.StatusRejected, rejected.Incident.Status)
	assert.Zero(t, rejected.Incident.PointsAwarded)
}

func TestUpdateIncidentStatusRequiresVerifierRole(t *testing.T) {
	env := newTestEnv(t)
	citizen := env.registerUser(t, "c@example.com", "citizen")

	w := env.request(t, http.MethodPost, "/api/v3/incidents", citizen, models.CreateIncidentRequest{
		Type:        "pollution",
		Description: "spill",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	status := "verified"
	w = env.request(t, http.MethodPut, "/api/v3/incidents/"+created.Incident.ID, citizen,
		models.UpdateIncidentRequest{Status: &status})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Non-status fields are fine.
	title := "updated title"
	w = env.request(t, http.MethodPut, "/api/v3/incidents/"+created.Incident.ID, citizen,
		models.UpdateIncidentRequest{Title: &title})
	require.Equal(t, http.StatusOK, w.Code)

	var updated struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, title, updated.Incident.Title)
}

func TestPredictMangrove(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v3/predict-mangrove", "",
		map[string]float64{"latitude": -2.0, "longitude": -44.5})
	require.Equal(t, http.StatusOK, w.Code)

	var pred ml.Prediction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pred))
	assert.Equal(t, "stub", pred.ModelType)
}

func TestPredictMangroveOfflineFallsBack(t *testing.T) {
	env := newTestEnv(t)
	env.ml.Available = false

	w := env.request(t, http.MethodPost, "/api/v3/predict-mangrove", "",
		map[string]float64{"latitude": -2.0, "longitude": -44.5})
	require.Equal(t, http.StatusOK, w.Code)

	var est estimator.Estimate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &est))
	assert.Equal(t, estimator.ModelType, est.ModelType)
	assert.GreaterOrEqual(t, est.Confidence, 0.0)
	assert.LessOrEqual(t, est.Confidence, 1.0)
}

func TestPredictMangroveRejectsBadCoordinates(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodPost, "/api/v3/predict-mangrove", "",
		map[string]float64{"latitude": 123.0, "longitude": -44.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictMangroveAcceptsZeroCoordinates(t *testing.T) {
	env := newTestEnv(t)

	// The equator and the prime meridian are valid coordinates.
	w := env.request(t, http.MethodPost, "/api/v3/predict-mangrove", "",
		map[string]float64{"latitude": 0, "longitude": 9.45})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var pred ml.Prediction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pred))
	assert.Equal(t, "stub", pred.ModelType)

	// Missing fields are still rejected.
	w = env.request(t, http.MethodPost, "/api/v3/predict-mangrove", "",
		map[string]float64{"longitude": 9.45})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := ws.NewHub()
	h := New(config.Load(), database.NewMemoryStore(), nil, ml.NewStubClient(),
		estimator.NewStatic(), nil, hub, nil, nil)

	router := gin.New()
	router.GET("/api/v3/ws/stats", h.FeedStats)

	req := httptest.NewRequest(http.MethodGet, "/api/v3/ws/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		ConnectedClients int `json:"connected_clients"`
		Broadcasts       int `json:"broadcasts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.ConnectedClients)
	assert.Equal(t, 0, stats.Broadcasts)
}

func TestIncidentEventsArePublished(t *testing.T) {
	env := newTestEnv(t)
	admin := env.registerUser(t, "moderator@example.com", "admin")

	w := env.request(t, http.MethodPost, "/api/v3/incidents", "", models.CreateIncidentRequest{
		Type:        "pollution",
		Description: "oil sheen near the roots",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Incident models.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	require.Eventually(t, func() bool {
		return len(env.events.published()) == 1
	}, time.Second, 10*time.Millisecond, "creation event published")
	assert.Equal(t, rabbitmq.EventIncidentCreated, env.events.published()[0])

	w = env.request(t, http.MethodPost, "/api/v3/incidents/"+created.Incident.ID+"/verify", admin,
		map[string]interface{}{"approve": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		return len(env.events.published()) == 2
	}, time.Second, 10*time.Millisecond, "verification event published")
	assert.Equal(t, rabbitmq.EventIncidentVerified, env.events.published()[1])
}

func TestLeaderboardOrder(t *testing.T) {
	env := newTestEnv(t)
	admin := env.registerUser(t, "admin@example.com", "admin")
	alice := env.registerUser(t, "alice@example.com", "citizen")
	_ = env.registerUser(t, "bob@example.com", "citizen")

	for i := 0; i < 2; i++ {
		w := env.request(t, http.MethodPost, "/api/v3/incidents", alice, models.CreateIncidentRequest{
			Type:        "pollution",
			Description: fmt.Sprintf("report %d", i),
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var created struct {
			Incident models.Incident `json:"incident"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

		w = env.request(t, http.MethodPost,
			"/api/v3/incidents/"+created.Incident.ID+"/verify", admin,
			map[string]interface{}{"approve": true})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.request(t, http.MethodGet, "/api/v3/leaderboard", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Leaderboard)
	assert.Equal(t, 1, resp.Leaderboard[0].Rank)
	assert.Equal(t, "Test User", resp.Leaderboard[0].Name)
	assert.Equal(t, 2*defaultVerificationPoints, resp.Leaderboard[0].Points)
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodGet, "/api/v3/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(t, http.MethodGet, "/api/v3/users/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
