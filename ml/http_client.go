package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/apex/log"
)

// Timeouts holds the per-operation deadlines. Every outbound call is bounded;
// no call may block indefinitely.
type Timeouts struct {
	Health  time.Duration
	Verify  time.Duration
	Analyze time.Duration
	Predict time.Duration
}

// DefaultTimeouts matches the documented values: 2s health probes, 15s
// per-image verification, 30s analysis, 10s coordinate prediction.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Health:  2 * time.Second,
		Verify:  15 * time.Second,
		Analyze: 30 * time.Second,
		Predict: 10 * time.Second,
	}
}

// HTTPClient is the real inference endpoint client.
type HTTPClient struct {
	baseURL  string
	timeouts Timeouts
	client   *http.Client
}

func NewHTTPClient(baseURL string, timeouts Timeouts) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		timeouts: timeouts,
		client:   &http.Client{},
	}
}

func (c *HTTPClient) SourceName() string {
	return "ml_endpoint"
}

// Ping probes GET /health. It swallows every error: the caller only needs a
// yes/no answer, and the result is deliberately not cached so a recovering
// endpoint is picked up on the next request.
func (c *HTTPClient) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Health)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.WithError(err).Debug("ML health probe failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// verifyResponse is the wire shape of POST /verify-mangrove-image.
type verifyResponse struct {
	MangroveDetected bool    `json:"mangrove_detected"`
	Confidence       float64 `json:"confidence"`
	ModelType        string  `json:"model_type"`
}

func (c *HTTPClient) VerifyImage(ctx context.Context, image []byte, filename string, strict bool) (*ImageVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Verify)
	defer cancel()

	url := c.baseURL + "/verify-mangrove-image"
	if strict {
		url += "?strict=true"
	}

	resp, err := c.postImage(ctx, url, image, filename, nil)
	if err != nil {
		return nil, err
	}

	var vr verifyResponse
	if err := json.Unmarshal(resp, &vr); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}

	return &ImageVerdict{
		MangroveDetected: vr.MangroveDetected,
		Confidence:       vr.Confidence,
		ModelType:        vr.ModelType,
	}, nil
}

// analyzeResponse is the wire shape of POST /analyze-image.
type analyzeResponse struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details"`
}

func (c *HTTPClient) AnalyzeImage(ctx context.Context, image []byte, filename string) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Analyze)
	defer cancel()

	resp, err := c.postImage(ctx, c.baseURL+"/analyze-image", image, filename, nil)
	if err != nil {
		return nil, err
	}

	var ar analyzeResponse
	if err := json.Unmarshal(resp, &ar); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}

	return &Analysis{
		Prediction: ar.Prediction,
		Confidence: ar.Confidence,
		Details:    ar.Details,
	}, nil
}

// predictRequest / predictResponse are the wire shapes of POST /predict-mangrove.
type predictRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type predictResponse struct {
	PredictedCoverage float64 `json:"predicted_coverage"`
	Confidence        float64 `json:"confidence"`
	NDVIValue         float64 `json:"ndvi_value"`
	HealthScore       float64 `json:"health_score"`
	ModelType         string  `json:"model_type"`
}

func (c *HTTPClient) PredictCoverage(ctx context.Context, latitude, longitude float64) (*Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Predict)
	defer cancel()

	body, err := json.Marshal(predictRequest{Latitude: latitude, Longitude: longitude})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict-mangrove", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("failed to decode predict response: %w", err)
	}

	return &Prediction{
		Coverage:    pr.PredictedCoverage,
		NDVI:        pr.NDVIValue,
		Confidence:  pr.Confidence,
		HealthScore: pr.HealthScore,
		ModelType:   pr.ModelType,
	}, nil
}

// postImage uploads one image as a multipart form along with optional extra
// string fields.
func (c *HTTPClient) postImage(ctx context.Context, url string, image []byte, filename string, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
