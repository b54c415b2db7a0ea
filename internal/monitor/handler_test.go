package monitor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlerFixture(t *testing.T) (*gin.Engine, *serviceFixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newServiceFixture(t)
	h := NewHandler(f.svc)
	r := gin.New()
	r.POST("/monitor/sessions", h.StartSession)
	r.POST("/monitor/sessions/:id/frames", h.AnalyzeFrame)
	r.GET("/monitor/sessions/:id/status", h.Status)
	r.DELETE("/monitor/sessions/:id", h.EndSession)
	return r, f
}

func doJSON(router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func startSession(t *testing.T, router *gin.Engine) uuid.UUID {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/monitor/sessions",
		gin.H{"student_id": uuid.New().String()})
	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Data struct {
			SessionID uuid.UUID `json:"session_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data.SessionID
}

func TestHandlerAnalyzeFrameHappyPath(t *testing.T) {
	router, _ := handlerFixture(t)
	id := startSession(t, router)

	w := doJSON(router, http.MethodPost, "/monitor/sessions/"+id.String()+"/frames",
		gin.H{"image_base64": base64.StdEncoding.EncodeToString(validPNG(t))})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Reading *struct {
				State      string  `json:"state"`
				Stress     float64 `json:"stress_score"`
				Confidence float64 `json:"confidence"`
			} `json:"reading"`
			NoData bool `json:"no_data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.NotNil(t, body.Data.Reading)
	assert.Equal(t, "Calm", body.Data.Reading.State)
	assert.False(t, body.Data.NoData)
}

func TestHandlerAnalyzeFrameRejectsBadInput(t *testing.T) {
	router, _ := handlerFixture(t)
	id := startSession(t, router)

	// Not base64 at all.
	w := doJSON(router, http.MethodPost, "/monitor/sessions/"+id.String()+"/frames",
		gin.H{"image_base64": "%%%"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Valid base64, not an image.
	w = doJSON(router, http.MethodPost, "/monitor/sessions/"+id.String()+"/frames",
		gin.H{"image_base64": base64.StdEncoding.EncodeToString([]byte("plain text"))})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad session id in the path.
	w = doJSON(router, http.MethodPost, "/monitor/sessions/not-a-uuid/frames",
		gin.H{"image_base64": base64.StdEncoding.EncodeToString(validPNG(t))})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerUnknownSessionIs404(t *testing.T) {
	router, _ := handlerFixture(t)
	w := doJSON(router, http.MethodPost, "/monitor/sessions/"+uuid.NewString()+"/frames",
		gin.H{"image_base64": base64.StdEncoding.EncodeToString(validPNG(t))})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/monitor/sessions/"+uuid.NewString()+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerEndThenFrameIsConflict(t *testing.T) {
	router, _ := handlerFixture(t)
	id := startSession(t, router)

	w := doJSON(router, http.MethodDelete, "/monitor/sessions/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/monitor/sessions/"+id.String()+"/frames",
		gin.H{"image_base64": base64.StdEncoding.EncodeToString(validPNG(t))})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandlerStatusNoDataForFreshSession(t *testing.T) {
	router, _ := handlerFixture(t)
	id := startSession(t, router)

	w := doJSON(router, http.MethodGet, "/monitor/sessions/"+id.String()+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			NoData bool `json:"no_data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.NoData)
}
