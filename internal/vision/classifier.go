package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edusense/backend/internal/affect"
)

// Result is one classifier output for one frame.
type Result struct {
	// FaceDetected is false when the model found no usable face; the
	// distribution and centre are meaningless in that case.
	FaceDetected bool
	// FaceCenterX/Y is the face centroid normalized to the frame (0..1).
	FaceCenterX  float64
	FaceCenterY  float64
	Distribution affect.Distribution
	// Degraded marks the designated low-confidence fallback substituted when
	// the model answered with an unusable distribution.
	Degraded     bool
	ModelVersion string
}

// Classifier maps a preprocessed frame to an expression probability
// distribution. Implementations must be deterministic given the same model
// weights and input, and hold no session state.
type Classifier interface {
	Classify(ctx context.Context, frame *Frame) (*Result, error)
}

// HTTPClassifier calls the out-of-process vision model service. Face
// detection and expression inference run in one round trip; the model side
// owns the weights, this side owns the contract.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClassifier creates a classifier client for the model service.
func NewHTTPClassifier(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 300 * time.Millisecond // must stay under the polling cadence
	}
	return &HTTPClassifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type classifyRequest struct {
	ImageBase64 string `json:"image_base64"`
	Format      string `json:"format"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type classifyResponse struct {
	FaceDetected  bool               `json:"face_detected"`
	FaceCenterX   float64            `json:"face_center_x"`
	FaceCenterY   float64            `json:"face_center_y"`
	Probabilities map[string]float64 `json:"probabilities"`
	ModelVersion  string             `json:"model_version"`
}

// Classify sends the frame to the model service. Transport failures and
// timeouts surface as errors so the caller can treat them as "no new
// evidence"; a malformed distribution in an otherwise successful response is
// replaced by the uniform fallback and flagged Degraded.
func (c *HTTPClassifier) Classify(ctx context.Context, frame *Frame) (*Result, error) {
	body, err := json.Marshal(classifyRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(frame.Data),
		Format:      frame.Format,
		Width:       frame.Width,
		Height:      frame.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model service status %d: %s", resp.StatusCode, raw)
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode classify response: %w", err)
	}

	if !out.FaceDetected {
		return &Result{FaceDetected: false, ModelVersion: out.ModelVersion}, nil
	}

	dist := make(affect.Distribution, len(out.Probabilities))
	for label, p := range out.Probabilities {
		dist[affect.Expression(label)] = p
	}
	res := &Result{
		FaceDetected: true,
		FaceCenterX:  clampUnit(out.FaceCenterX),
		FaceCenterY:  clampUnit(out.FaceCenterY),
		Distribution: dist,
		ModelVersion: out.ModelVersion,
	}
	if err := dist.Validate(); err != nil {
		// The model answered but the distribution is unusable: degrade to
		// the uniform fallback instead of failing the request.
		c.logger.Warn("model returned invalid distribution, using fallback",
			zap.Error(err), zap.String("model_version", out.ModelVersion))
		res.Distribution = affect.Uniform()
		res.Degraded = true
	}
	return res, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
