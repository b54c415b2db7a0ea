package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusense/backend/internal/affect"
)

func testFrame(t *testing.T) *Frame {
	t.Helper()
	p := NewPreprocessor(0, 0)
	frame, err := p.Decode(encodePNG(t, 160, 120))
	require.NoError(t, err)
	return frame
}

func modelServer(t *testing.T, resp classifyResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/classify", r.URL.Path)

		var req classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.ImageBase64)
		assert.Equal(t, 160, req.Width)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClassifierHappyPath(t *testing.T) {
	srv := modelServer(t, classifyResponse{
		FaceDetected: true,
		FaceCenterX:  0.52,
		FaceCenterY:  0.41,
		Probabilities: map[string]float64{
			"calm": 0.5, "focused": 0.3, "confused": 0.1, "stressed": 0.05, "neutral": 0.05,
		},
		ModelVersion: "fer-2.1",
	})

	c := NewHTTPClassifier(srv.URL, time.Second, nil)
	res, err := c.Classify(context.Background(), testFrame(t))
	require.NoError(t, err)

	assert.True(t, res.FaceDetected)
	assert.False(t, res.Degraded)
	assert.InDelta(t, 0.52, res.FaceCenterX, 1e-9)
	assert.InDelta(t, 0.5, res.Distribution[affect.ExprCalm], 1e-9)
	assert.Equal(t, "fer-2.1", res.ModelVersion)
	assert.NoError(t, res.Distribution.Validate())
}

func TestHTTPClassifierNoFace(t *testing.T) {
	srv := modelServer(t, classifyResponse{FaceDetected: false, ModelVersion: "fer-2.1"})

	c := NewHTTPClassifier(srv.URL, time.Second, nil)
	res, err := c.Classify(context.Background(), testFrame(t))
	require.NoError(t, err)
	assert.False(t, res.FaceDetected)
	assert.Nil(t, res.Distribution)
}

func TestHTTPClassifierDegradesOnBadDistribution(t *testing.T) {
	srv := modelServer(t, classifyResponse{
		FaceDetected:  true,
		Probabilities: map[string]float64{"calm": 0.9, "stressed": 0.9},
	})

	c := NewHTTPClassifier(srv.URL, time.Second, nil)
	res, err := c.Classify(context.Background(), testFrame(t))
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, affect.Uniform(), res.Distribution)
}

func TestHTTPClassifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClassifier(srv.URL, time.Second, nil)
	_, err := c.Classify(context.Background(), testFrame(t))
	assert.Error(t, err)
}

func TestHTTPClassifierTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClassifier(srv.URL, 20*time.Millisecond, nil)
	_, err := c.Classify(context.Background(), testFrame(t))
	assert.Error(t, err, "slow inference must surface as a transient error, not block")
}
