package monitor

import (
	"encoding/base64"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edusense/backend/internal/vision"
	"github.com/edusense/backend/pkg/response"
)

// Handler exposes the monitoring session endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a monitoring handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type startSessionRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

type analyzeFrameRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

// StartSession handles POST /monitor/sessions.
func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "student_id is required")
		return
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return
	}
	sess, err := h.svc.StartSession(c.Request.Context(), studentID)
	if err != nil {
		response.Internal(c, "failed to start session")
		return
	}
	response.Created(c, gin.H{
		"session_id": sess.ID,
		"student_id": sess.StudentID,
		"started_at": sess.StartedAt,
	})
}

// AnalyzeFrame handles POST /monitor/sessions/:id/frames.
func (h *Handler) AnalyzeFrame(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req analyzeFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "image_base64 is required")
		return
	}
	imageData, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		response.BadRequest(c, "image_base64 is not valid base64")
		return
	}

	res, err := h.svc.AnalyzeFrame(c.Request.Context(), sessionID, imageData)
	if err != nil {
		switch {
		case errors.Is(err, vision.ErrUndecodable),
			errors.Is(err, vision.ErrFrameTooLarge),
			errors.Is(err, vision.ErrFrameTooSmall):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrSessionNotFound):
			response.NotFound(c, "session not found")
		case errors.Is(err, ErrSessionEnded):
			response.Conflict(c, "session already ended")
		case errors.Is(err, ErrNoReading):
			response.ServiceUnavailable(c, "inference unavailable and no previous reading exists")
		default:
			response.Internal(c, "failed to analyze frame")
		}
		return
	}
	response.OK(c, frameResultBody(res))
}

// Status handles GET /monitor/sessions/:id/status.
func (h *Handler) Status(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	res, err := h.svc.Status(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		response.Internal(c, "failed to get session status")
		return
	}
	response.OK(c, frameResultBody(res))
}

// EndSession handles DELETE /monitor/sessions/:id.
func (h *Handler) EndSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if err := h.svc.EndSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		response.Internal(c, "failed to end session")
		return
	}
	response.OK(c, gin.H{"ended": true})
}

func frameResultBody(res *FrameResult) gin.H {
	body := gin.H{
		"no_data": res.NoData,
	}
	if res.NoFace {
		body["no_face"] = true
	}
	if res.Degraded {
		body["degraded"] = true
	}
	if res.Reading != nil {
		body["reading"] = res.Reading
	}
	return body
}
