package risk

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func predictRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, NewScorer())
	r := gin.New()
	r.POST("/risk/predict", h.Predict)
	return r
}

func doPredict(t *testing.T, router *gin.Engine, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/risk/predict", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPredictScoresFullPayload(t *testing.T) {
	router := predictRouter()
	w := doPredict(t, router, `{
		"avg_score": 45,
		"stress_level": 0.8,
		"confidence_level": 0.3,
		"login_count": 2,
		"avg_session_time": 10
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Risk Score `json:"risk"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, BandHigh, body.Data.Risk.Band)
	assert.GreaterOrEqual(t, body.Data.Risk.Score, HighThreshold)
}

func TestPredictDefaultsMissingFields(t *testing.T) {
	router := predictRouter()
	w := doPredict(t, router, `{"avg_score": 90, "confidence_level": 0.9}`)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Features FeatureVector `json:"features"`
			Risk     Score         `json:"risk"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Zero(t, body.Data.Features.StressLevel)
	assert.Zero(t, body.Data.Features.LoginCount)
	assert.Zero(t, body.Data.Features.AvgSessionTime)
}

func TestPredictRejectsOutOfDomainNamingField(t *testing.T) {
	router := predictRouter()
	cases := []struct {
		name    string
		payload string
		field   string
	}{
		{"score above range", `{"avg_score": 120}`, "avg_score"},
		{"negative logins", `{"login_count": -1}`, "login_count"},
		{"stress above one", `{"stress_level": 1.5}`, "stress_level"},
		{"negative session time", `{"avg_session_time": -3}`, "avg_session_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doPredict(t, router, tc.payload)
			require.Equal(t, http.StatusBadRequest, w.Code)
			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body.Error, tc.field)
		})
	}
}

func TestPredictRejectsMalformedJSON(t *testing.T) {
	router := predictRouter()
	w := doPredict(t, router, `{"avg_score": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
