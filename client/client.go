// Package client is the Go client for the mangrove watch API. It discovers
// a live backend among candidate base URLs, caches the winner, and retries
// requests with exponential backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"mangrovewatch/ml"
	"mangrovewatch/models"
)

const (
	// cacheTTL is how long a discovered base URL stays trusted before the
	// candidates are probed again.
	cacheTTL = 5 * time.Minute

	// maxAttempts bounds retries per request.
	maxAttempts = 3

	// baseBackoff is the first retry delay; it doubles per attempt.
	baseBackoff = time.Second

	probeTimeout = 2 * time.Second
)

// DiscoveryError reports that no candidate backend answered its health
// probe. Attempted lists every URL tried, in order.
type DiscoveryError struct {
	Attempted []string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("no backend available, attempted: %s", strings.Join(e.Attempted, ", "))
}

// cachedURL pairs a discovered base URL with when it was discovered.
type cachedURL struct {
	url       string
	timestamp time.Time
}

// Client talks to the first reachable backend among its candidates.
type Client struct {
	candidates []string
	http       *http.Client

	mu     sync.Mutex
	cached *cachedURL
	token  string

	// injected for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a client over the given candidate base URLs, tried in order.
func New(candidates ...string) *Client {
	return &Client{
		candidates: candidates,
		http:       &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// SetToken attaches a bearer token to subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// resolveBaseURL returns the cached base URL when it is still fresh,
// otherwise probes the candidates in order and caches the first one whose
// health endpoint answers. Remaining candidates are not probed.
func (c *Client) resolveBaseURL(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cached != nil && c.now().Sub(c.cached.timestamp) < cacheTTL {
		url := c.cached.url
		c.mu.Unlock()
		return url, nil
	}
	c.mu.Unlock()

	attempted := make([]string, 0, len(c.candidates))
	for _, candidate := range c.candidates {
		attempted = append(attempted, candidate)
		if c.probe(ctx, candidate) {
			c.mu.Lock()
			c.cached = &cachedURL{url: candidate, timestamp: c.now()}
			c.mu.Unlock()
			log.Infof("Backend discovered at %s", candidate)
			return candidate, nil
		}
	}

	return "", &DiscoveryError{Attempted: attempted}
}

// probe checks one candidate's health endpoint. Any error means down.
func (c *Client) probe(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// invalidate drops the cached URL so the next request re-runs discovery.
func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

// do runs one API request with retries. Network failures invalidate the
// cached URL so the next attempt may land on a different backend.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseBackoff << (attempt - 1)
			log.Debugf("Retrying %s %s in %s (attempt %d/%d)", method, path, delay, attempt+1, maxAttempts)
			c.sleep(delay)
		}

		baseURL, err := c.resolveBaseURL(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		err = c.doOnce(ctx, baseURL, method, path, body, contentType, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if isNetworkErr(err) {
			c.invalidate()
			continue
		}
		// HTTP-level errors are not transient; do not retry.
		return err
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, baseURL, method, path string, body []byte, contentType string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// isNetworkErr classifies failures worth a retry against a rediscovered
// backend: timeouts, refused connections, and discovery failures.
func isNetworkErr(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var discErr *DiscoveryError
	if errors.As(err, &discErr) {
		return true
	}
	// url.Error wrapping a closed connection or DNS failure.
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") ||
		errors.Is(err, io.EOF)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, body, "application/json", out)
}

// AuthResponse is the register/login response.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates an account and stores the returned token on the client.
func (c *Client) Register(ctx context.Context, req *models.RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.postJSON(ctx, "/api/v3/auth/register", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	req := models.LoginRequest{Email: email, Password: password}
	if err := c.postJSON(ctx, "/api/v3/auth/login", &req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

type incidentResponse struct {
	Incident *models.Incident `json:"incident"`
}

// CreateIncident submits a new report.
func (c *Client) CreateIncident(ctx context.Context, req *models.CreateIncidentRequest) (*models.Incident, error) {
	var out incidentResponse
	if err := c.postJSON(ctx, "/api/v3/incidents", req, &out); err != nil {
		return nil, err
	}
	return out.Incident, nil
}

// GetIncident fetches one incident by id.
func (c *Client) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	var out incidentResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/incidents/"+id, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Incident, nil
}

type incidentListResponse struct {
	Incidents []*models.Incident `json:"incidents"`
	Count     int                `json:"count"`
}

// ListIncidents fetches incidents with an optional raw query string
// (e.g. "status=pending&limit=10").
func (c *Client) ListIncidents(ctx context.Context, query string) ([]*models.Incident, error) {
	path := "/api/v3/incidents"
	if query != "" {
		path += "?" + query
	}
	var out incidentListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Incidents, nil
}

// PredictMangrove asks for a coverage prediction at a coordinate.
func (c *Client) PredictMangrove(ctx context.Context, latitude, longitude float64) (*ml.Prediction, error) {
	req := map[string]float64{"latitude": latitude, "longitude": longitude}
	var out ml.Prediction
	if err := c.postJSON(ctx, "/api/v3/predict-mangrove", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMangroveImage uploads one photo for strict verification.
func (c *Client) VerifyMangroveImage(ctx context.Context, image []byte, filename string) (*models.ImageVerification, error) {
	body, contentType, err := multipartImage(image, filename)
	if err != nil {
		return nil, err
	}

	var out struct {
		MangroveDetected bool    `json:"mangrove_detected"`
		Confidence       float64 `json:"confidence"`
		ModelType        string  `json:"model_type"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v3/verify-mangrove-image", body, contentType, &out); err != nil {
		return nil, err
	}
	return &models.ImageVerification{
		Image:            filename,
		MangroveDetected: out.MangroveDetected,
		Confidence:       out.Confidence,
		ModelType:        out.ModelType,
	}, nil
}

func multipartImage(image []byte, filename string) (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
